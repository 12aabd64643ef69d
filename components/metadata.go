package components

// FieldDescriptor describes an agent field for text rendering.
type FieldDescriptor struct {
	ID     string // Unique identifier
	Label  string // Display name
	Format string // Printf format (e.g., "%.2f")
	Group  string // Logical grouping
}

// String returns the display name for a Role.
func (r Role) String() string {
	names := RoleNames()
	if int(r) < len(names) {
		return names[r]
	}
	return "unknown"
}

// RoleNames returns the display names for all roles.
// The order matches the Role constants.
func RoleNames() []string {
	return []string{"worker", "scout"}
}

// String returns the display name for a Behavior.
func (b Behavior) String() string {
	if b == BehaviorAlert {
		return "alert"
	}
	return "idle"
}

// AgentFieldDescriptors returns metadata for the fields an agent exposes to
// external runtimes, in the order they are rendered.
func AgentFieldDescriptors() []FieldDescriptor {
	return []FieldDescriptor{
		{ID: "id", Label: "Agent", Format: "%d", Group: "identity"},
		{ID: "role", Label: "Role", Format: "%s", Group: "identity"},
		{ID: "position", Label: "Position", Format: "(%.1f, %.1f)", Group: "motion"},
		{ID: "velocity", Label: "Velocity", Format: "(%.2f, %.2f)", Group: "motion"},
		{ID: "health", Label: "Health", Format: "%.2f", Group: "stats"},
		{ID: "surprise", Label: "Surprise", Format: "%.2f", Group: "stats"},
		{ID: "resources", Label: "Resources", Format: "%.0f", Group: "stats"},
		{ID: "share_prob", Label: "Share probability", Format: "%.2f", Group: "social"},
		{ID: "sources", Label: "Recent sources", Format: "%d", Group: "social"},
	}
}

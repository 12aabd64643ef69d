// Package components defines the data shapes shared by the store, kernel and tier scheduler.
package components

// Role distinguishes agent jobs in the economic variant.
type Role uint8

const (
	RoleWorker Role = iota // Harvests at villages, sells at cities
	RoleScout              // Marks unexplored ground on the novelty channel
)

// Status marks a slot in the full-fidelity pool.
type Status uint8

const (
	StatusFull         Status = iota // Updated by the kernel every tick
	StatusHeavyPending               // Frozen while an external runtime owns the agent
)

// Behavior is the coarse state carried by reduced-fidelity agents.
type Behavior uint8

const (
	BehaviorIdle Behavior = iota
	BehaviorAlert
)

// Trigger bits. A dormant agent wakes when its mask shares a bit with the
// scheduler's global trigger set.
const (
	TriggerDanger uint64 = 1 << iota
	TriggerMarket
	TriggerNovelty
	TriggerShock
)

// Position represents an agent's world position.
type Position struct {
	X, Y float32
}

// Velocity represents an agent's velocity in world units per tick.
type Velocity struct {
	X, Y float32
}

// AgentRecord is a by-value copy of one full-fidelity agent, used when an
// agent moves between pools or is read out for an external caller.
type AgentRecord struct {
	ID        uint32
	Pos       Position
	Vel       Velocity
	Surprise  float32
	Health    float32
	Resources float32
	Role      Role
	Status    Status
	Share     ShareState
}

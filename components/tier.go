package components

import "github.com/google/uuid"

// Tier is an agent's fidelity level.
type Tier uint8

const (
	TierDormant Tier = iota
	TierSimplified
	TierFull
	TierHeavyPending
	NumTiers
)

// String returns the display name for a Tier.
func (t Tier) String() string {
	switch t {
	case TierDormant:
		return "dormant"
	case TierSimplified:
		return "simplified"
	case TierFull:
		return "full"
	case TierHeavyPending:
		return "heavy_pending"
	}
	return "unknown"
}

// Membership is an agent's tier together with the data that tier keeps.
// Exactly one of the concrete types below describes any agent.
type Membership interface {
	Tier() Tier
	AgentID() uint32
}

// Dormant is an agent reduced to a wake condition. It is stored as an ECS
// component in the dormant world.
type Dormant struct {
	ID             uint32
	PredictedState Behavior
	WakeMask       uint64
}

// Simplified is an agent under coarse kinematics.
type Simplified struct {
	ID    uint32
	Pos   Position
	Vel   Velocity
	State Behavior
}

// Full is an agent in the columnar pool.
type Full struct {
	ID   uint32
	Slot uint32
}

// HeavyPending is a full-pool agent frozen while an external runtime owns it.
type HeavyPending struct {
	ID     uint32
	Slot   uint32
	Ticket uuid.UUID
}

func (d Dormant) Tier() Tier      { return TierDormant }
func (d Dormant) AgentID() uint32 { return d.ID }

func (s Simplified) Tier() Tier      { return TierSimplified }
func (s Simplified) AgentID() uint32 { return s.ID }

func (f Full) Tier() Tier      { return TierFull }
func (f Full) AgentID() uint32 { return f.ID }

func (h HeavyPending) Tier() Tier      { return TierHeavyPending }
func (h HeavyPending) AgentID() uint32 { return h.ID }

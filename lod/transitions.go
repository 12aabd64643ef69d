// Package lod schedules agents across four fidelity tiers: dormant agents
// reduced to a wake mask, simplified agents under coarse kinematics, full
// agents in the columnar pool, and heavy-pending agents handed to an
// external reasoning runtime.
package lod

import "github.com/pthm-cable/swarm/components"

// transitions is the tier state machine. Moves not listed are rejected.
var transitions = [components.NumTiers][components.NumTiers]bool{
	components.TierDormant: {
		components.TierSimplified: true, // wake trigger
	},
	components.TierSimplified: {
		components.TierFull:    true, // signal hotspot
		components.TierDormant: true, // idle
	},
	components.TierFull: {
		components.TierHeavyPending: true, // density or economic flag
		components.TierSimplified:   true, // calm
	},
	components.TierHeavyPending: {
		components.TierFull: true, // returned by the caller
	},
}

// CanTransition reports whether an agent may move directly between tiers.
func CanTransition(from, to components.Tier) bool {
	if from >= components.NumTiers || to >= components.NumTiers {
		return false
	}
	return transitions[from][to]
}

// Locator packing: tier in the top two bits, slot below.
const (
	slotBits = 30
	slotMask = 1<<slotBits - 1

	// MaxAgents bounds the slot a locator can address.
	MaxAgents = slotMask + 1
)

func pack(t components.Tier, slot int) uint32 {
	return uint32(t)<<slotBits | uint32(slot)
}

func unpack(v uint32) (components.Tier, int) {
	return components.Tier(v >> slotBits), int(v & slotMask)
}

package lod

import (
	"fmt"
	"strings"

	"github.com/pthm-cable/swarm/components"
)

// Describe renders agent id as labelled lines for the heavy runtime's
// prompt context. Fields a tier does not keep are left out.
func (sc *Scheduler) Describe(id uint32) (string, bool) {
	rec, tier, ok := sc.AgentState(id)
	if !ok {
		return "", false
	}
	economic := sc.sim.Pool().Economic() && (tier == components.TierFull || tier == components.TierHeavyPending)

	var b strings.Builder
	fmt.Fprintf(&b, "Tier: %s\n", tier)
	for _, f := range components.AgentFieldDescriptors() {
		if tier == components.TierDormant && f.Group != "identity" {
			continue
		}
		if !economic && (f.ID == "resources" || f.Group == "social") {
			continue
		}

		var v string
		switch f.ID {
		case "id":
			v = fmt.Sprintf(f.Format, rec.ID)
		case "role":
			if tier == components.TierDormant {
				continue
			}
			v = fmt.Sprintf(f.Format, rec.Role)
		case "position":
			v = fmt.Sprintf(f.Format, rec.Pos.X, rec.Pos.Y)
		case "velocity":
			v = fmt.Sprintf(f.Format, rec.Vel.X, rec.Vel.Y)
		case "health":
			v = fmt.Sprintf(f.Format, rec.Health)
		case "surprise":
			if tier == components.TierSimplified {
				continue
			}
			v = fmt.Sprintf(f.Format, rec.Surprise)
		case "resources":
			v = fmt.Sprintf(f.Format, rec.Resources)
		case "share_prob":
			v = fmt.Sprintf(f.Format, rec.Share.Prob)
		case "sources":
			v = fmt.Sprintf(f.Format, rec.Share.Len())
		default:
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Label, v)
	}

	if m, ok := sc.Lookup(id); ok {
		switch m := m.(type) {
		case components.Dormant:
			fmt.Fprintf(&b, "Predicted state: %s\n", m.PredictedState)
		case components.Simplified:
			fmt.Fprintf(&b, "State: %s\n", m.State)
		}
	}
	return b.String(), true
}

package lod

import (
	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/systems"
	"github.com/pthm-cable/swarm/workers"
)

// simplifiedPool holds simplified agents as parallel columns. Health and
// role are carried so a full agent keeps them across a round trip.
type simplifiedPool struct {
	n, cap int

	ID     *store.Column[uint32]
	X      *store.Column[float32]
	Y      *store.Column[float32]
	VX     *store.Column[float32]
	VY     *store.Column[float32]
	Health *store.Column[float32]
	Role   *store.Column[components.Role]
	State  *store.Column[components.Behavior]
	Idle   *store.Column[uint32] // Updates since the agent was last alert
	Shock  *store.Column[bool]   // Shocked since the last update
}

// simplifiedRecord is a by-value copy of one simplified agent.
type simplifiedRecord struct {
	components.Simplified
	Health float32
	Role   components.Role
}

func newSimplifiedPool(capacity int) *simplifiedPool {
	return &simplifiedPool{
		cap:    capacity,
		ID:     store.Allocate[uint32](capacity),
		X:      store.Allocate[float32](capacity),
		Y:      store.Allocate[float32](capacity),
		VX:     store.Allocate[float32](capacity),
		VY:     store.Allocate[float32](capacity),
		Health: store.Allocate[float32](capacity),
		Role:   store.Allocate[components.Role](capacity),
		State:  store.Allocate[components.Behavior](capacity),
		Idle:   store.Allocate[uint32](capacity),
		Shock:  store.Allocate[bool](capacity),
	}
}

func (sp *simplifiedPool) Len() int { return sp.n }

func (sp *simplifiedPool) record(i int) simplifiedRecord {
	return simplifiedRecord{
		Simplified: components.Simplified{
			ID:    sp.ID.At(i),
			Pos:   components.Position{X: sp.X.At(i), Y: sp.Y.At(i)},
			Vel:   components.Velocity{X: sp.VX.At(i), Y: sp.VY.At(i)},
			State: sp.State.At(i),
		},
		Health: sp.Health.At(i),
		Role:   sp.Role.At(i),
	}
}

func (sp *simplifiedPool) set(i int, r simplifiedRecord) {
	sp.ID.Set(i, r.ID)
	sp.X.Set(i, r.Pos.X)
	sp.Y.Set(i, r.Pos.Y)
	sp.VX.Set(i, r.Vel.X)
	sp.VY.Set(i, r.Vel.Y)
	sp.Health.Set(i, r.Health)
	sp.Role.Set(i, r.Role)
	sp.State.Set(i, r.State)
}

// append adds r and returns its slot, or false when full.
func (sp *simplifiedPool) append(r simplifiedRecord) (int, bool) {
	if sp.n >= sp.cap {
		return -1, false
	}
	slot := sp.n
	sp.set(slot, r)
	sp.Idle.Set(slot, 0)
	sp.Shock.Set(slot, false)
	sp.n++
	return slot, true
}

// swapRemove removes slot i by moving the last agent into it. It returns the
// ID now at slot i, and false when nothing moved.
func (sp *simplifiedPool) swapRemove(i int) (uint32, bool) {
	last := sp.n - 1
	sp.n--
	if i == last {
		return 0, false
	}
	sp.set(i, sp.record(last))
	sp.Idle.Set(i, sp.Idle.At(last))
	sp.Shock.Set(i, sp.Shock.At(last))
	return sp.ID.At(i), true
}

// simplifiedParams holds the coarse update constants.
type simplifiedParams struct {
	worldW, worldH float32
	damping        float32
	hotspot        float32
}

// update advances every agent one coarse step and classifies it: alert
// agents sit on a danger or novelty hotspot or were shocked since the last
// update. Reads the field only; consumes the shock marks.
func (sp *simplifiedPool) update(prm simplifiedParams, field *systems.SignalField, r workers.Runner) {
	n := sp.n
	xs, ys := sp.X.Head(n), sp.Y.Head(n)
	vxs, vys := sp.VX.Head(n), sp.VY.Head(n)
	states := sp.State.Head(n)
	idle := sp.Idle.Head(n)
	shocked := sp.Shock.Head(n)

	r.Run(n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			x := min(max(xs[i]+vxs[i], 0), prm.worldW)
			y := min(max(ys[i]+vys[i], 0), prm.worldH)
			xs[i], ys[i] = x, y
			vxs[i] *= prm.damping
			vys[i] *= prm.damping

			if shocked[i] ||
				field.Sample(x, y, systems.ChannelDanger) > prm.hotspot ||
				field.Sample(x, y, systems.ChannelNovelty) > prm.hotspot {
				states[i] = components.BehaviorAlert
				idle[i] = 0
			} else {
				states[i] = components.BehaviorIdle
				idle[i]++
			}
			shocked[i] = false
		}
	})
}

func (sp *simplifiedPool) Bytes() int64 {
	return sp.ID.Bytes() + sp.X.Bytes() + sp.Y.Bytes() + sp.VX.Bytes() + sp.VY.Bytes() +
		sp.Health.Bytes() + sp.Role.Bytes() + sp.State.Bytes() + sp.Idle.Bytes() + sp.Shock.Bytes()
}

func (sp *simplifiedPool) Close() {
	sp.ID.Free()
	sp.X.Free()
	sp.Y.Free()
	sp.VX.Free()
	sp.VY.Free()
	sp.Health.Free()
	sp.Role.Free()
	sp.State.Free()
	sp.Idle.Free()
	sp.Shock.Free()
	sp.n = 0
}

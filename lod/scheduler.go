package lod

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/sim"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/systems"
	"github.com/pthm-cable/swarm/telemetry"
)

// Scheduler owns every agent and moves them between tiers around the
// full-fidelity pipeline. Agent IDs are dense: the initial full population
// takes the lowest IDs, then simplified, then dormant.
//
// Apart from DrainPromotions, Return and the trigger setters, methods must
// not be called while a tick is running.
type Scheduler struct {
	cfg     *config.Config
	sim     *sim.Simulation
	dormant *dormantWorld
	simple  *simplifiedPool
	density *systems.DensityGrid
	queue   *promotionQueue
	locator *store.Column[uint32] // By agent ID: tier and slot
	agents  int

	triggers atomic.Uint64 // Persistent global triggers
	pulse    atomic.Uint64 // Triggers for the next wake pass only

	simpleParams simplifiedParams
	heavy        int // Agents frozen for the heavy runtime
	cursor       int // Density sampling position in the full pool
	budget       int // Heavy promotions left this tick
	returns      []uint32
	last         telemetry.MacroState
}

// New builds the full pipeline and populates every tier from the config.
func New(cfg *config.Config, opts sim.Options) (*Scheduler, error) {
	pop := cfg.Population
	total := pop.Full + pop.Simplified + pop.Dormant
	if total > MaxAgents {
		return nil, fmt.Errorf("population %d exceeds the %d agent limit", total, MaxAgents)
	}

	opts.Populate = true
	s, err := sim.New(cfg, opts)
	if err != nil {
		return nil, err
	}

	sc := &Scheduler{
		cfg:     cfg,
		sim:     s,
		dormant: newDormantWorld(total),
		simple:  newSimplifiedPool(total),
		density: systems.NewDensityGrid(cfg.Derived.WorldW32, cfg.Derived.WorldH32, float32(cfg.Tiers.DensityCellSize)),
		queue:   newPromotionQueue(),
		locator: store.Allocate[uint32](total),
		agents:  total,
		simpleParams: simplifiedParams{
			worldW:  cfg.Derived.WorldW32,
			worldH:  cfg.Derived.WorldH32,
			damping: float32(cfg.Tiers.SimplifiedDamping),
			hotspot: float32(cfg.Tiers.HotspotThreshold),
		},
	}
	sc.triggers.Store(cfg.Tiers.GlobalTriggers)

	sc.relocateFull()
	rng := s.RNG()
	next := uint32(pop.Full)
	for i := 0; i < pop.Simplified; i++ {
		rec := s.Spawner().Record(next, rng)
		slot, _ := sc.simple.append(simplifiedRecord{
			Simplified: components.Simplified{ID: rec.ID, Pos: rec.Pos, Vel: rec.Vel},
			Health:     rec.Health,
			Role:       rec.Role,
		})
		sc.locator.Set(int(next), pack(components.TierSimplified, slot))
		next++
	}
	for i := 0; i < pop.Dormant; i++ {
		sc.dormant.add(components.Dormant{ID: next, WakeMask: cfg.Tiers.WakeMask})
		sc.locator.Set(int(next), pack(components.TierDormant, 0))
		next++
	}
	sc.rebuildDensity()

	slog.Info("tiers ready",
		"full", s.Pool().Len(),
		"simplified", sc.simple.Len(),
		"dormant", sc.dormant.count,
		"virtual", humanize.IBytes(uint64(sc.VirtualBytes())),
	)
	return sc, nil
}

// Tick runs one scheduled tick: returns and wakes, the coarse simplified
// update, the full pipeline, then promotions and demotions.
func (sc *Scheduler) Tick() telemetry.MacroState {
	perf := sc.sim.Perf()
	tiers := sc.cfg.Tiers
	perf.StartTick()
	tick := sc.sim.CurrentTick() + 1

	perf.StartPhase(telemetry.PhaseTiers)
	sc.applyReturns()
	sc.wakeDormant()
	if tick%uint64(tiers.SimplifiedInterval) == 0 {
		sc.updateSimplified()
	}

	rep := sc.sim.Step()

	perf.StartPhase(telemetry.PhaseTiers)
	if rep.Resorted {
		sc.relocateFull()
	}
	sc.budget = tiers.MaxPromotionsPerTick
	if sc.budget <= 0 {
		sc.budget = sc.agents
	}
	promoted := sc.promoteFlagged(rep.Promoted, tick)
	if tick%uint64(tiers.DensityInterval) == 0 {
		sc.rebuildDensity()
	}
	promoted += sc.promoteDense(tick)
	if tick%uint64(tiers.DemoteInterval) == 0 {
		sc.sim.Collector().RecordDemotions(sc.demoteCalm())
	}

	m := rep.Macro
	m.Promotions = promoted
	sc.fillCounts(&m)

	perf.StartPhase(telemetry.PhaseTelemetry)
	d := perf.EndTick()
	sc.sim.Observe(m, d)
	sc.last = m
	return m
}

// Run ticks until ctx is done or maxTicks have run (0 = unlimited).
// Cancellation is only checked between ticks.
func (sc *Scheduler) Run(ctx context.Context, maxTicks int) error {
	for i := 0; maxTicks <= 0 || i < maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc.Tick()
	}
	return nil
}

func (sc *Scheduler) fillCounts(m *telemetry.MacroState) {
	m.Full = sc.sim.Pool().Len()
	m.Simplified = sc.simple.Len()
	m.Dormant = sc.dormant.count
	m.ActiveThinkers = sc.heavy
	m.Agents = m.Full + m.Simplified + m.Dormant
	m.VirtualBytes = sc.VirtualBytes()
}

// relocateFull rewrites the locator for every full-pool agent after slots
// were reordered.
func (sc *Scheduler) relocateFull() {
	pool := sc.sim.Pool()
	n := pool.Len()
	ids := pool.ID.Head(n)
	status := pool.Status.Head(n)
	loc := sc.locator.Slice()
	sc.sim.Runner().Run(n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			t := components.TierFull
			if status[i] == components.StatusHeavyPending {
				t = components.TierHeavyPending
			}
			loc[ids[i]] = pack(t, i)
		}
	})
}

func (sc *Scheduler) rebuildDensity() {
	pool := sc.sim.Pool()
	n := pool.Len()
	sc.density.Rebuild(pool.X.Head(n), pool.Y.Head(n), sc.sim.Runner())
}

// applyReturns unfreezes agents the heavy runtime handed back.
func (sc *Scheduler) applyReturns() {
	sc.returns = sc.queue.takeReturns(sc.returns[:0])
	returned := 0
	for _, id := range sc.returns {
		if sc.heavyToFull(id) {
			returned++
		}
	}
	sc.sim.Collector().RecordReturns(returned)
}

// wakeDormant moves dormant agents whose wake mask matches the current
// triggers into the simplified tier.
func (sc *Scheduler) wakeDormant() {
	triggers := sc.triggers.Load() | sc.pulse.Swap(0)
	limit := sc.simple.cap - sc.simple.Len()
	if m := sc.cfg.Tiers.MaxWakesPerTick; m > 0 {
		limit = min(limit, m)
	}
	woken := sc.dormant.wake(triggers, limit)
	for _, d := range woken {
		sc.addSimplified(d)
	}
	sc.sim.Collector().RecordWakes(len(woken))
}

// addSimplified places a woken agent at a fresh spawn point.
func (sc *Scheduler) addSimplified(d components.Dormant) {
	rec := sc.sim.Spawner().Record(d.ID, sc.sim.RNG())
	slot, _ := sc.simple.append(simplifiedRecord{
		Simplified: components.Simplified{ID: d.ID, Pos: rec.Pos, Vel: rec.Vel, State: d.PredictedState},
		Health:     rec.Health,
		Role:       rec.Role,
	})
	sc.locator.Set(int(d.ID), pack(components.TierSimplified, slot))
}

// updateSimplified runs the coarse update, then promotes alert agents while
// the full pool has room and sends long-idle agents dormant. Agents are
// walked from the end so swap-removes only move agents already visited.
func (sc *Scheduler) updateSimplified() {
	sc.simple.update(sc.simpleParams, sc.sim.Field(), sc.sim.Runner())

	tiers := sc.cfg.Tiers
	pool := sc.sim.Pool()
	maxDemote := tiers.MaxDemotionsPerPass
	if maxDemote <= 0 {
		maxDemote = sc.agents
	}
	demoted := 0
	for i := sc.simple.Len() - 1; i >= 0; i-- {
		switch {
		case sc.simple.State.At(i) == components.BehaviorAlert && pool.Len() < pool.Cap():
			sc.simplifiedToFull(i)
		case tiers.IdleUpdates > 0 && int(sc.simple.Idle.At(i)) >= tiers.IdleUpdates && demoted < maxDemote:
			sc.simplifiedToDormant(i)
			demoted++
		}
	}
	sc.sim.Collector().RecordDemotions(demoted)
}

func (sc *Scheduler) removeSimplified(i int) {
	if moved, ok := sc.simple.swapRemove(i); ok {
		sc.locator.Set(int(moved), pack(components.TierSimplified, i))
	}
}

func (sc *Scheduler) simplifiedToFull(i int) bool {
	r := sc.simple.record(i)
	slot, ok := sc.sim.Pool().Append(components.AgentRecord{
		ID:     r.ID,
		Pos:    r.Pos,
		Vel:    r.Vel,
		Health: r.Health,
		Role:   r.Role,
		Share:  components.ShareState{Prob: 0.5},
	})
	if !ok {
		return false
	}
	sc.removeSimplified(i)
	sc.locator.Set(int(r.ID), pack(components.TierFull, slot))
	return true
}

func (sc *Scheduler) simplifiedToDormant(i int) {
	r := sc.simple.record(i)
	sc.removeSimplified(i)
	sc.dormant.add(components.Dormant{ID: r.ID, PredictedState: r.State, WakeMask: sc.cfg.Tiers.WakeMask})
	sc.locator.Set(int(r.ID), pack(components.TierDormant, 0))
}

func (sc *Scheduler) dormantToSimplified(id uint32) bool {
	if sc.simple.Len() >= sc.simple.cap {
		return false
	}
	sc.addSimplified(sc.dormant.remove(id))
	return true
}

// promoteFlagged freezes the agents the economy flagged this tick.
func (sc *Scheduler) promoteFlagged(slots []uint32, tick uint64) int {
	promoted := 0
	for _, slot := range slots {
		if sc.budget <= 0 {
			break
		}
		if sc.fullToHeavy(int(slot), ReasonEconomic, tick) {
			sc.budget--
			promoted++
		}
	}
	return promoted
}

// promoteDense samples a rotating window of the full pool and freezes agents
// standing in crowded density cells.
func (sc *Scheduler) promoteDense(tick uint64) int {
	tiers := sc.cfg.Tiers
	pool := sc.sim.Pool()
	n := pool.Len()
	if n == 0 || tiers.DensityThreshold <= 0 {
		return 0
	}
	samples := min(max(tiers.DensitySamplesPerTick, 0), n)

	promoted := 0
	for k := 0; k < samples && sc.budget > 0; k++ {
		if sc.cursor >= n {
			sc.cursor = 0
		}
		i := sc.cursor
		sc.cursor++
		if sc.density.At(pool.X.At(i), pool.Y.At(i)) > tiers.DensityThreshold &&
			sc.fullToHeavy(i, ReasonDensity, tick) {
			sc.budget--
			promoted++
		}
	}
	return promoted
}

func (sc *Scheduler) fullToHeavy(slot int, reason Reason, tick uint64) bool {
	pool := sc.sim.Pool()
	if slot >= pool.Len() || pool.Status.At(slot) != components.StatusFull {
		return false
	}
	id := pool.ID.At(slot)
	pool.Status.Set(slot, components.StatusHeavyPending)
	sc.locator.Set(int(id), pack(components.TierHeavyPending, slot))
	sc.heavy++

	p := Promotion{AgentID: id, Ticket: uuid.New(), Reason: reason, Tick: tick}
	sc.queue.push(p)
	slog.Debug("promoted", "promotion", p)
	return true
}

func (sc *Scheduler) heavyToFull(id uint32) bool {
	tier, slot := unpack(sc.locator.At(int(id)))
	if tier != components.TierHeavyPending {
		return false
	}
	sc.sim.Pool().Status.Set(slot, components.StatusFull)
	sc.locator.Set(int(id), pack(components.TierFull, slot))
	sc.heavy--
	return true
}

// demoteCalm moves calm, uncrowded full agents to the simplified tier,
// keeping at least MinFull in the pool. Returns how many moved.
func (sc *Scheduler) demoteCalm() int {
	tiers := sc.cfg.Tiers
	pool := sc.sim.Pool()
	calm := float32(tiers.CalmSurprise)
	maxDemote := tiers.MaxDemotionsPerPass
	if maxDemote <= 0 {
		maxDemote = sc.agents
	}

	demoted := 0
	for i := pool.Len() - 1; i >= 0 && demoted < maxDemote && pool.Len() > tiers.MinFull; i-- {
		if pool.Status.At(i) != components.StatusFull || pool.Surprise.At(i) >= calm {
			continue
		}
		if sc.density.At(pool.X.At(i), pool.Y.At(i)) > tiers.CalmDensity {
			continue
		}
		if !sc.fullToSimplified(i) {
			break
		}
		demoted++
	}
	return demoted
}

func (sc *Scheduler) fullToSimplified(slot int) bool {
	pool := sc.sim.Pool()
	if pool.Status.At(slot) != components.StatusFull {
		return false
	}
	rec := pool.Record(slot)
	simpleSlot, ok := sc.simple.append(simplifiedRecord{
		Simplified: components.Simplified{ID: rec.ID, Pos: rec.Pos, Vel: rec.Vel},
		Health:     rec.Health,
		Role:       rec.Role,
	})
	if !ok {
		return false
	}
	if moved, ok := pool.SwapRemove(slot); ok {
		t := components.TierFull
		if pool.Status.At(slot) == components.StatusHeavyPending {
			t = components.TierHeavyPending
		}
		sc.locator.Set(int(moved), pack(t, slot))
	}
	if sc.cursor > pool.Len() {
		sc.cursor = 0
	}
	sc.locator.Set(int(rec.ID), pack(components.TierSimplified, simpleSlot))
	return true
}

// Transition moves agent id directly to tier to. Moves outside the state
// machine, or that lack room in the target tier, return false and change
// nothing. Heavy promotions made this way carry ReasonManual.
func (sc *Scheduler) Transition(id uint32, to components.Tier) bool {
	if int(id) >= sc.agents {
		return false
	}
	from, slot := unpack(sc.locator.At(int(id)))
	if !CanTransition(from, to) {
		return false
	}

	switch {
	case from == components.TierDormant:
		return sc.dormantToSimplified(id)
	case from == components.TierSimplified && to == components.TierFull:
		return sc.simplifiedToFull(slot)
	case from == components.TierSimplified && to == components.TierDormant:
		sc.simplifiedToDormant(slot)
		return true
	case from == components.TierFull && to == components.TierHeavyPending:
		return sc.fullToHeavy(slot, ReasonManual, sc.sim.CurrentTick())
	case from == components.TierFull && to == components.TierSimplified:
		return sc.fullToSimplified(slot)
	case from == components.TierHeavyPending:
		return sc.queue.release(id) && sc.heavyToFull(id)
	}
	return false
}

// DrainPromotions returns every agent promoted since the last drain and
// empties the queue. Safe to call from any goroutine.
func (sc *Scheduler) DrainPromotions() []Promotion {
	return sc.queue.drain()
}

// Return hands a heavy-pending agent back to the full tier at the start of
// the next tick. It returns false when id holds no outstanding ticket.
// Safe to call from any goroutine.
func (sc *Scheduler) Return(id uint32) bool {
	return sc.queue.ret(id)
}

// SetGlobalTriggers replaces the persistent trigger set.
func (sc *Scheduler) SetGlobalTriggers(mask uint64) {
	sc.triggers.Store(mask)
}

// RaiseTriggers adds bits to the persistent trigger set.
func (sc *Scheduler) RaiseTriggers(mask uint64) {
	sc.triggers.Or(mask)
}

// ClearTriggers removes bits from the persistent trigger set.
func (sc *Scheduler) ClearTriggers(mask uint64) {
	sc.triggers.And(^mask)
}

// GlobalTriggers returns the persistent trigger set.
func (sc *Scheduler) GlobalTriggers() uint64 {
	return sc.triggers.Load()
}

// SetWakeMask replaces the wake mask of a dormant agent.
func (sc *Scheduler) SetWakeMask(id uint32, mask uint64) bool {
	if int(id) >= sc.agents {
		return false
	}
	if tier, _ := unpack(sc.locator.At(int(id))); tier != components.TierDormant {
		return false
	}
	sc.dormant.setMask(id, mask)
	return true
}

// InjectPheromone deposits an external signal into the field.
func (sc *Scheduler) InjectPheromone(x, y float32, ch systems.Channel, amount float32) {
	sc.sim.InjectPheromone(x, y, ch, amount)
}

// ApplyShock surprises full agents within radius, alerts simplified agents
// in the same area so the next coarse update promotes them, and pulses the
// shock trigger for the next wake pass. Returns the number of agents affected.
func (sc *Scheduler) ApplyShock(x, y, radius, intensity float32) int {
	hit := sc.sim.ApplyShock(x, y, radius, intensity)

	r2 := radius * radius
	for i := 0; i < sc.simple.Len(); i++ {
		dx, dy := sc.simple.X.At(i)-x, sc.simple.Y.At(i)-y
		if dx*dx+dy*dy <= r2 {
			sc.simple.State.Set(i, components.BehaviorAlert)
			sc.simple.Idle.Set(i, 0)
			sc.simple.Shock.Set(i, true)
			hit++
		}
	}
	sc.pulse.Or(components.TriggerShock)
	return hit
}

// Lookup returns agent id's tier membership.
func (sc *Scheduler) Lookup(id uint32) (components.Membership, bool) {
	if int(id) >= sc.agents {
		return nil, false
	}
	tier, slot := unpack(sc.locator.At(int(id)))
	switch tier {
	case components.TierDormant:
		return sc.dormant.get(id), true
	case components.TierSimplified:
		return sc.simple.record(slot).Simplified, true
	case components.TierFull:
		return components.Full{ID: id, Slot: uint32(slot)}, true
	case components.TierHeavyPending:
		return components.HeavyPending{ID: id, Slot: uint32(slot), Ticket: sc.queue.ticket(id)}, true
	}
	return nil, false
}

// AgentState returns what is known of agent id in its current tier.
// Dormant agents carry only their ID.
func (sc *Scheduler) AgentState(id uint32) (components.AgentRecord, components.Tier, bool) {
	if int(id) >= sc.agents {
		return components.AgentRecord{}, 0, false
	}
	tier, slot := unpack(sc.locator.At(int(id)))
	switch tier {
	case components.TierFull, components.TierHeavyPending:
		return sc.sim.Pool().Record(slot), tier, true
	case components.TierSimplified:
		r := sc.simple.record(slot)
		return components.AgentRecord{ID: id, Pos: r.Pos, Vel: r.Vel, Health: r.Health, Role: r.Role}, tier, true
	}
	return components.AgentRecord{ID: id}, tier, true
}

// Counts returns the number of agents in each tier.
func (sc *Scheduler) Counts() [components.NumTiers]int {
	var c [components.NumTiers]int
	c[components.TierDormant] = sc.dormant.count
	c[components.TierSimplified] = sc.simple.Len()
	c[components.TierFull] = sc.sim.Pool().Len() - sc.heavy
	c[components.TierHeavyPending] = sc.heavy
	return c
}

// Agents returns the total population across tiers.
func (sc *Scheduler) Agents() int { return sc.agents }

// Last returns the macro state of the most recent tick.
func (sc *Scheduler) Last() telemetry.MacroState { return sc.last }

// Sim returns the full-fidelity pipeline.
func (sc *Scheduler) Sim() *sim.Simulation { return sc.sim }

// VirtualBytes estimates the memory mapped by every tier.
func (sc *Scheduler) VirtualBytes() int64 {
	return sc.sim.VirtualBytes() + sc.simple.Bytes() + sc.density.Bytes() + sc.locator.Bytes()
}

// Close releases every tier.
func (sc *Scheduler) Close() {
	sc.sim.Close()
	sc.simple.Close()
	sc.density.Close()
	sc.locator.Free()
}

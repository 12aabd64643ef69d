package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/workers"
)

type testWorld struct {
	pool *store.Pool
	next *store.Kinematics
	k    *Kernel
	r    workers.Runner
}

func newTestWorld(t *testing.T, capacity int, econ bool) *testWorld {
	t.Helper()
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height = 200, 200
	cfg.Field.Width, cfg.Field.Height = 20, 20
	if err := cfg.Finalize(); err != nil {
		t.Fatal(err)
	}

	params := NewKernelParams(cfg)
	field := NewSignalField(20, 20, cfg.Derived.FieldCellSize, cfg.Derived.Decay, cfg.Derived.Diffusion)
	index := NewSpatialHash(TableSizeFor(capacity), capacity, float32(cfg.Index.CellSize))
	var economy *Economy
	if econ {
		economy = NewEconomy(cfg.Economy)
	}
	r := workers.NewPool(2, 8)
	w := &testWorld{
		pool: store.NewPool(capacity, econ),
		next: store.NewKinematics(capacity),
		k:    NewKernel(params, index, field, economy, NewSharePolicy(cfg.Pollination), capacity, r.Workers(), 1),
		r:    r,
	}
	t.Cleanup(func() {
		w.k.Close()
		field.Close()
		index.Close()
		w.next.Free()
		w.pool.Close()
		r.Close()
	})
	return w
}

func (w *testWorld) add(x, y, vx, vy, surprise float32) int {
	slot, _ := w.pool.Append(components.AgentRecord{
		ID:       uint32(w.pool.Len()),
		Pos:      components.Position{X: x, Y: y},
		Vel:      components.Velocity{X: vx, Y: vy},
		Surprise: surprise,
		Health:   1,
	})
	return slot
}

func (w *testWorld) step(tick uint64) {
	n := w.pool.Len()
	w.k.Index.Rebuild(w.pool.X.Head(n), w.pool.Y.Head(n), w.r)
	w.k.Step(w.pool, w.next, tick, w.r)
}

func TestKernel_SpeedAndBoundsInvariant(t *testing.T) {
	w := newTestWorld(t, 500, false)
	for i := 0; i < 500; i++ {
		w.add(float32(i%25)*8, float32(i/25)*10, 50, -50, float32(i%7)/7)
	}

	for tick := uint64(1); tick <= 20; tick++ {
		w.step(tick)
		w.k.Deposit(w.pool, tick)
		w.k.Field.Tick(w.r)
	}

	maxSpeed := w.k.Params.MaxSpeed
	for i := 0; i < w.pool.Len(); i++ {
		vx, vy := w.pool.VX.At(i), w.pool.VY.At(i)
		if speed := velocityMagnitude(vx, vy); speed > maxSpeed*1.0001 {
			t.Fatalf("agent %d speed %v exceeds %v", i, speed, maxSpeed)
		}
		x, y := w.pool.X.At(i), w.pool.Y.At(i)
		if x < 0 || x > 200 || y < 0 || y > 200 {
			t.Fatalf("agent %d out of bounds at (%v,%v)", i, x, y)
		}
		if s := w.pool.Surprise.At(i); s < 0 || s > 1 {
			t.Fatalf("agent %d surprise %v outside [0,1]", i, s)
		}
	}
}

func TestKernel_SurpriseContagion(t *testing.T) {
	w := newTestWorld(t, 4, false)
	a := w.add(100, 100, 0, 0, 1)
	b := w.add(103, 100, 0, 0, 0)
	lone := w.add(10, 10, 0, 0, 0.5)

	w.step(1)

	if got := w.pool.Surprise.At(a); math.Abs(float64(got)-0.95) > 1e-6 {
		t.Errorf("source surprise = %v, want 0.95", got)
	}
	if got := w.pool.Surprise.At(b); math.Abs(float64(got)-0.8) > 1e-6 {
		t.Errorf("neighbour surprise = %v, want 0.8", got)
	}
	if got := w.pool.Surprise.At(lone); math.Abs(float64(got)-0.475) > 1e-6 {
		t.Errorf("isolated surprise = %v, want 0.475", got)
	}
}

func TestKernel_DefaultConsidersEveryNeighbour(t *testing.T) {
	w := newTestWorld(t, 102, false)
	if w.k.Params.MaxNeighbors != 0 {
		t.Fatalf("default max neighbours = %d, want 0 (all in radius)", w.k.Params.MaxNeighbors)
	}
	target := w.add(100, 100, 0, 0, 0)
	for i := 0; i < 100; i++ {
		angle := float64(i) * 2 * math.Pi / 100
		r := 2 + 3*float64(i%10)/10
		w.add(100+float32(r*math.Cos(angle)), 100+float32(r*math.Sin(angle)), 0, 0, 0)
	}
	// Highest slot, so it comes last in bucket order.
	w.add(101, 100, 0, 0, 1)

	w.step(1)

	if got := w.pool.Surprise.At(target); math.Abs(float64(got)-0.8) > 1e-6 {
		t.Errorf("target surprise = %v, want 0.8 from the surprised neighbour", got)
	}
}

func TestKernel_HeavyPendingFrozen(t *testing.T) {
	w := newTestWorld(t, 4, false)
	frozen := w.add(50, 50, 1, 1, 0.3)
	w.add(52, 50, 0, 0, 1)
	w.pool.Status.Set(frozen, components.StatusHeavyPending)

	w.step(1)

	if w.pool.X.At(frozen) != 50 || w.pool.Y.At(frozen) != 50 {
		t.Errorf("frozen agent moved to (%v,%v)", w.pool.X.At(frozen), w.pool.Y.At(frozen))
	}
	if w.pool.VX.At(frozen) != 1 || w.pool.Surprise.At(frozen) != 0.3 {
		t.Error("frozen agent state changed")
	}
}

func TestKernel_SeparationPushesApart(t *testing.T) {
	w := newTestWorld(t, 2, false)
	w.k.Params.Jitter = 0
	w.k.Params.Cohesion = 0
	a := w.add(100, 100, 0, 0, 0)
	b := w.add(101, 100, 0, 0, 0)

	w.step(1)

	if w.pool.X.At(a) >= 100 || w.pool.X.At(b) <= 101 {
		t.Errorf("agents did not separate: a=%v b=%v", w.pool.X.At(a), w.pool.X.At(b))
	}
}

func TestKernel_DangerRepels(t *testing.T) {
	w := newTestWorld(t, 1, false)
	w.k.Params.Jitter = 0
	a := w.add(90, 100, 0, 0, 0)
	w.k.Field.Deposit(100, 100, ChannelDanger, 50)

	w.step(1)

	if w.pool.X.At(a) >= 90 {
		t.Errorf("agent moved toward danger: x=%v", w.pool.X.At(a))
	}
}

func TestKernel_DepositStride(t *testing.T) {
	w := newTestWorld(t, 100, false)
	w.k.Params.DepositStride = 10
	for i := 0; i < 100; i++ {
		w.add(float32(i), 50, 0, 0, 0)
	}
	w.k.Deposit(w.pool, 3)

	want := 10 * float64(w.k.Params.TrailDeposit)
	if got := w.k.Field.Total(ChannelTrail); math.Abs(got-want) > 1e-4 {
		t.Errorf("trail total = %v, want %v", got, want)
	}
	if w.k.Field.Total(ChannelDanger) != 0 {
		t.Error("calm agents should not deposit danger")
	}
}

func TestKernel_EconomyTradeAndPromotion(t *testing.T) {
	w := newTestWorld(t, 4, true)
	w.k.Economy.PromotionChance = 1
	w.k.Economy.RegisterLocations(
		[]Location{{X: 20, Y: 20}},
		[]Location{{X: 150, Y: 150}},
		nil,
	)
	w.k.Params.Jitter = 0

	harvester := w.add(20, 20, 0, 0, 0)
	seller := w.add(150, 150, 0, 0, 0)
	w.pool.Resources.Set(seller, 2)
	w.pool.Health.Set(seller, 0.3)

	w.step(1)

	if got := w.pool.Resources.At(harvester); got != 1 {
		t.Errorf("harvester resources = %v, want 1", got)
	}
	if got := w.pool.Resources.At(seller); got != 1 {
		t.Errorf("seller resources = %v, want 1", got)
	}
	if got := w.pool.Health.At(seller); math.Abs(float64(got)-0.8) > 1e-6 {
		t.Errorf("seller health = %v, want 0.8", got)
	}
	promos := w.k.Promotions(nil)
	if len(promos) != 1 || int(promos[0]) != seller {
		t.Errorf("promotions = %v, want [%d]", promos, seller)
	}
	if w.k.Trades() != 1 {
		t.Errorf("trades = %d, want 1", w.k.Trades())
	}
}

func TestKernel_BroadcastIsHeard(t *testing.T) {
	w := newTestWorld(t, 4, true)
	w.k.Policy.BroadcastWeight = 1
	w.k.Params.Jitter = 0
	speaker := w.add(100, 100, 0, 0, 1)
	listener := w.add(102, 100, 0, 0, 0)
	far := w.add(180, 180, 0, 0, 0)

	w.step(1)

	heard := w.pool.Share.At(listener)
	if heard.Find(uint32(speaker)) < 0 {
		t.Error("listener did not record the speaker")
	}
	if farShare := w.pool.Share.At(far); farShare.Len() != 0 {
		t.Error("distant agent should hear nothing")
	}

	// Next tick credits the speaker entry and forgets it
	w.step(2)
	if w.pool.Share.At(listener).Raw == 0 {
		t.Error("listener's share value should have been updated")
	}
}

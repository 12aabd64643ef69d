package store

import (
	"math"
	"testing"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/workers"
)

func TestAllocate_ZeroFilled(t *testing.T) {
	c := Allocate[float32](1 << 16)
	defer c.Free()

	if c.Len() != 1<<16 {
		t.Fatalf("len = %d", c.Len())
	}
	for i, v := range c.Slice() {
		if v != 0 {
			t.Fatalf("element %d = %v, want 0", i, v)
		}
	}
	if c.Bytes() != 4<<16 {
		t.Errorf("bytes = %d, want %d", c.Bytes(), 4<<16)
	}
}

func TestColumn_FillAndParallelFill(t *testing.T) {
	c := Allocate[uint32](5000)
	defer c.Free()

	c.Fill(7)
	if c.At(4999) != 7 {
		t.Errorf("Fill: last = %d", c.At(4999))
	}

	pool := workers.NewPool(4, 16)
	defer pool.Close()
	c.ParallelFill(9, pool)
	for i, v := range c.Slice() {
		if v != 9 {
			t.Fatalf("ParallelFill: element %d = %d", i, v)
		}
	}
}

func TestAllocate_StructColumn(t *testing.T) {
	c := Allocate[components.ShareState](10)
	defer c.Free()

	c.Slice()[3].Put(42, 1)
	if s := c.At(3); s.Find(42) != 0 {
		t.Error("share state write did not persist")
	}
}

func TestAllocate_PointerTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for pointer element type")
		}
	}()
	Allocate[*int](4)
}

func TestAllocate_FailureIsFatal(t *testing.T) {
	orig := Fatal
	defer func() { Fatal = orig }()

	var called bool
	Fatal = func(msg string, args ...any) { called = true }

	c := Allocate[uint64](math.MaxInt / 4)
	if !called {
		t.Fatal("expected Fatal to be called")
	}
	if c.Len() != 0 {
		t.Errorf("failed column len = %d, want 0", c.Len())
	}
}

func TestColumn_FreeIsIdempotent(t *testing.T) {
	c := Allocate[float32](100)
	c.Free()
	c.Free()
	if c.Len() != 0 {
		t.Errorf("len after free = %d", c.Len())
	}
	var nilCol *Column[float32]
	nilCol.Free()
}

func newTestPool(t *testing.T, n int, economic bool) *Pool {
	t.Helper()
	p := NewPool(n*2, economic)
	t.Cleanup(p.Close)
	for i := 0; i < n; i++ {
		r := components.AgentRecord{
			ID:       uint32(i),
			Pos:      components.Position{X: float32((i * 37) % 100), Y: float32((i * 91) % 100)},
			Vel:      components.Velocity{X: float32(i), Y: -float32(i)},
			Surprise: float32(i%10) / 10,
			Health:   1,
		}
		if _, ok := p.Append(r); !ok {
			t.Fatalf("append %d failed", i)
		}
	}
	return p
}

func TestPool_Defaults(t *testing.T) {
	p := NewPool(8, true)
	defer p.Close()

	if p.Len() != 0 || p.Cap() != 8 {
		t.Fatalf("len/cap = %d/%d", p.Len(), p.Cap())
	}
	for i := 0; i < 8; i++ {
		if p.Health.At(i) != 1 {
			t.Errorf("slot %d health = %v, want 1", i, p.Health.At(i))
		}
		if p.Share.At(i).Prob != 0.5 {
			t.Errorf("slot %d share prob = %v, want 0.5", i, p.Share.At(i).Prob)
		}
	}
}

func TestPool_AppendFull(t *testing.T) {
	p := NewPool(2, false)
	defer p.Close()

	p.Append(components.AgentRecord{ID: 1})
	p.Append(components.AgentRecord{ID: 2})
	if _, ok := p.Append(components.AgentRecord{ID: 3}); ok {
		t.Error("append beyond capacity should fail")
	}
}

func TestPool_SwapRemove(t *testing.T) {
	p := newTestPool(t, 5, true)

	moved, ok := p.SwapRemove(1)
	if !ok || moved != 4 {
		t.Fatalf("SwapRemove(1) = %d, %v; want 4, true", moved, ok)
	}
	if p.Len() != 4 {
		t.Errorf("len = %d, want 4", p.Len())
	}
	if p.ID.At(1) != 4 || p.VX.At(1) != 4 {
		t.Errorf("slot 1 holds id %d vx %v", p.ID.At(1), p.VX.At(1))
	}

	if _, ok := p.SwapRemove(3); ok {
		t.Error("removing the last slot should not move anything")
	}
}

func TestPool_ResortKeepsRowsTogether(t *testing.T) {
	const n = 2000
	p := newTestPool(t, n, true)
	p.Share.Slice()[17].Put(99, 5)

	before := make(map[uint32]components.AgentRecord, n)
	for i := 0; i < n; i++ {
		before[p.ID.At(i)] = p.Record(i)
	}

	pool := workers.NewPool(4, 64)
	defer pool.Close()

	const cellSize, cols, rows = 10, 10, 10
	p.UpdateCellIDs(cellSize, cols, rows, pool)
	p.Resort(cols*rows, pool)

	if p.Len() != n {
		t.Fatalf("len = %d after resort", p.Len())
	}
	seen := make(map[uint32]bool, n)
	for i := 0; i < n; i++ {
		id := p.ID.At(i)
		if seen[id] {
			t.Fatalf("id %d appears twice", id)
		}
		seen[id] = true

		got, want := p.Record(i), before[id]
		got.Status, want.Status = 0, 0
		if got.Pos != want.Pos || got.Vel != want.Vel || got.Surprise != want.Surprise || got.Share != want.Share {
			t.Fatalf("slot %d (id %d) row mismatch: %+v vs %+v", i, id, got, want)
		}
		if i > 0 && p.Cell.At(i) < p.Cell.At(i-1) {
			t.Fatalf("cells not sorted at slot %d", i)
		}
	}
	if len(seen) != n {
		t.Errorf("saw %d ids, want %d", len(seen), n)
	}
}

func TestPool_UpdateCellIDsClamps(t *testing.T) {
	p := NewPool(3, false)
	defer p.Close()
	p.Append(components.AgentRecord{Pos: components.Position{X: -5, Y: -5}})
	p.Append(components.AgentRecord{Pos: components.Position{X: 1e6, Y: 1e6}})
	p.Append(components.AgentRecord{Pos: components.Position{X: 25, Y: 15}})

	p.UpdateCellIDs(10, 4, 4, workers.Serial{})

	want := []uint32{0, 15, 1*4 + 2}
	for i, w := range want {
		if p.Cell.At(i) != w {
			t.Errorf("slot %d cell = %d, want %d", i, p.Cell.At(i), w)
		}
	}
}

func TestPool_SwapKinematics(t *testing.T) {
	p := newTestPool(t, 4, false)
	k := NewKinematics(p.Cap())
	defer k.Free()

	k.X.Set(0, 123)
	p.SwapKinematics(k)
	if p.X.At(0) != 123 {
		t.Errorf("x after swap = %v, want 123", p.X.At(0))
	}
	if k.X.At(0) != 0 {
		t.Errorf("old buffer x = %v, want 0", k.X.At(0))
	}
}

func TestPool_VirtualBytes(t *testing.T) {
	plain := NewPool(1000, false)
	defer plain.Close()
	econ := NewPool(1000, true)
	defer econ.Close()

	if plain.VirtualBytes() <= 0 {
		t.Fatal("virtual bytes should be positive")
	}
	if econ.VirtualBytes() <= plain.VirtualBytes() {
		t.Error("economic pool should map more memory")
	}
}

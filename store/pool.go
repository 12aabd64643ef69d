package store

import (
	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/workers"
)

// Pool holds the full-fidelity agents as parallel columns. Slot i refers to
// the same agent in every column. Capacity is fixed at construction; the
// live population Len changes only through Append and SwapRemove.
type Pool struct {
	cap      int
	n        int
	economic bool

	ID       *Column[uint32]
	X        *Column[float32]
	Y        *Column[float32]
	VX       *Column[float32]
	VY       *Column[float32]
	Surprise *Column[float32]
	Health   *Column[float32]
	Cell     *Column[uint32]
	Status   *Column[components.Status]
	Role     *Column[components.Role]

	// Economic columns, nil unless the pool was built with economic=true.
	Resources *Column[float32]
	Share     *Column[components.ShareState]

	// Resort scratch, allocated on first use.
	perm   *Column[uint32]
	counts *Column[uint32]
}

// NewPool maps every column at capacity. Health starts at 1 and share
// probability at 0.5 for all slots.
func NewPool(capacity int, economic bool) *Pool {
	p := &Pool{
		cap:      capacity,
		economic: economic,
		ID:       Allocate[uint32](capacity),
		X:        Allocate[float32](capacity),
		Y:        Allocate[float32](capacity),
		VX:       Allocate[float32](capacity),
		VY:       Allocate[float32](capacity),
		Surprise: Allocate[float32](capacity),
		Health:   Allocate[float32](capacity),
		Cell:     Allocate[uint32](capacity),
		Status:   Allocate[components.Status](capacity),
		Role:     Allocate[components.Role](capacity),
	}
	p.Health.Fill(1)
	if economic {
		p.Resources = Allocate[float32](capacity)
		p.Share = Allocate[components.ShareState](capacity)
		share := p.Share.Slice()
		for i := range share {
			share[i].Prob = 0.5
		}
	}
	return p
}

// Len returns the live population.
func (p *Pool) Len() int { return p.n }

// Cap returns the fixed capacity.
func (p *Pool) Cap() int { return p.cap }

// Economic reports whether the economic columns exist.
func (p *Pool) Economic() bool { return p.economic }

// SetLen sets the live population directly. Used when columns are filled
// in bulk at startup.
func (p *Pool) SetLen(n int) {
	if n < 0 || n > p.cap {
		panic("store: SetLen out of range")
	}
	p.n = n
}

// Record copies slot i out of the columns.
func (p *Pool) Record(i int) components.AgentRecord {
	r := components.AgentRecord{
		ID:       p.ID.At(i),
		Pos:      components.Position{X: p.X.At(i), Y: p.Y.At(i)},
		Vel:      components.Velocity{X: p.VX.At(i), Y: p.VY.At(i)},
		Surprise: p.Surprise.At(i),
		Health:   p.Health.At(i),
		Role:     p.Role.At(i),
		Status:   p.Status.At(i),
	}
	if p.economic {
		r.Resources = p.Resources.At(i)
		r.Share = p.Share.At(i)
	}
	return r
}

// SetRecord writes r into slot i.
func (p *Pool) SetRecord(i int, r components.AgentRecord) {
	p.ID.Set(i, r.ID)
	p.X.Set(i, r.Pos.X)
	p.Y.Set(i, r.Pos.Y)
	p.VX.Set(i, r.Vel.X)
	p.VY.Set(i, r.Vel.Y)
	p.Surprise.Set(i, r.Surprise)
	p.Health.Set(i, r.Health)
	p.Role.Set(i, r.Role)
	p.Status.Set(i, r.Status)
	p.Cell.Set(i, 0)
	if p.economic {
		p.Resources.Set(i, r.Resources)
		p.Share.Set(i, r.Share)
	}
}

// Append adds r at the end of the live range. Returns false when full.
func (p *Pool) Append(r components.AgentRecord) (int, bool) {
	if p.n >= p.cap {
		return -1, false
	}
	slot := p.n
	p.SetRecord(slot, r)
	p.n++
	return slot, true
}

// SwapRemove removes slot i by moving the last live agent into it.
// It returns the ID of the agent now occupying slot i, and false when no
// agent moved (i was the last slot).
func (p *Pool) SwapRemove(i int) (uint32, bool) {
	last := p.n - 1
	p.n--
	if i == last {
		return 0, false
	}
	p.SetRecord(i, p.Record(last))
	return p.ID.At(i), true
}

// UpdateCellIDs recomputes the coarse cell of every live agent as
// cy*cols + cx, clamped to the grid.
func (p *Pool) UpdateCellIDs(cellSize float32, cols, rows int, r workers.Runner) {
	xs, ys := p.X.Head(p.n), p.Y.Head(p.n)
	cells := p.Cell.Head(p.n)
	inv := 1 / cellSize
	r.Run(p.n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			cx := clampCell(int(xs[i]*inv), cols)
			cy := clampCell(int(ys[i]*inv), rows)
			cells[i] = uint32(cy*cols + cx)
		}
	})
}

func clampCell(c, n int) int {
	if c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

// Resort reorders live agents by cell so that spatial neighbours sit near
// each other in memory. Cell ids must be current and below numCells.
// Columns are gathered one at a time into fresh mappings; the old mappings
// are released as each new one is swapped in.
func (p *Pool) Resort(numCells int, r workers.Runner) {
	n := p.n
	if n < 2 {
		return
	}
	if p.perm == nil {
		p.perm = Allocate[uint32](p.cap)
	}
	if p.counts == nil || p.counts.Len() < numCells+1 {
		p.counts.Free()
		p.counts = Allocate[uint32](numCells + 1)
	}

	// Stable counting sort of slots by cell id
	counts := p.counts.Head(numCells + 1)
	clear(counts)
	cells := p.Cell.Head(n)
	for _, c := range cells {
		counts[c+1]++
	}
	for c := 1; c <= numCells; c++ {
		counts[c] += counts[c-1]
	}
	perm := p.perm.Head(n)
	for i, c := range cells {
		perm[counts[c]] = uint32(i)
		counts[c]++
	}

	gather(&p.ID, perm, p.cap, r)
	gather(&p.X, perm, p.cap, r)
	gather(&p.Y, perm, p.cap, r)
	gather(&p.VX, perm, p.cap, r)
	gather(&p.VY, perm, p.cap, r)
	gather(&p.Surprise, perm, p.cap, r)
	gather(&p.Health, perm, p.cap, r)
	gather(&p.Cell, perm, p.cap, r)
	gather(&p.Status, perm, p.cap, r)
	gather(&p.Role, perm, p.cap, r)
	if p.economic {
		gather(&p.Resources, perm, p.cap, r)
		gather(&p.Share, perm, p.cap, r)
	}
}

// gather replaces *col with a fresh column where slot i holds old[perm[i]].
func gather[T any](col **Column[T], perm []uint32, capacity int, r workers.Runner) {
	old := (*col).Slice()
	fresh := Allocate[T](capacity)
	dst := fresh.Slice()
	r.Run(len(perm), func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			dst[i] = old[perm[i]]
		}
	})
	(*col).Free()
	*col = fresh
}

// Kinematics is the write side of the kernel's double buffer.
type Kinematics struct {
	X        *Column[float32]
	Y        *Column[float32]
	VX       *Column[float32]
	VY       *Column[float32]
	Surprise *Column[float32]
}

// NewKinematics maps a write buffer with the given capacity.
func NewKinematics(capacity int) *Kinematics {
	return &Kinematics{
		X:        Allocate[float32](capacity),
		Y:        Allocate[float32](capacity),
		VX:       Allocate[float32](capacity),
		VY:       Allocate[float32](capacity),
		Surprise: Allocate[float32](capacity),
	}
}

// SwapKinematics exchanges the pool's kinematic columns with k, publishing
// the values the kernel just wrote.
func (p *Pool) SwapKinematics(k *Kinematics) {
	p.X, k.X = k.X, p.X
	p.Y, k.Y = k.Y, p.Y
	p.VX, k.VX = k.VX, p.VX
	p.VY, k.VY = k.VY, p.VY
	p.Surprise, k.Surprise = k.Surprise, p.Surprise
}

// Bytes returns the virtual size of the buffer.
func (k *Kinematics) Bytes() int64 {
	return k.X.Bytes() + k.Y.Bytes() + k.VX.Bytes() + k.VY.Bytes() + k.Surprise.Bytes()
}

// Free releases every column.
func (k *Kinematics) Free() {
	k.X.Free()
	k.Y.Free()
	k.VX.Free()
	k.VY.Free()
	k.Surprise.Free()
}

// VirtualBytes returns the mapped size of all pool columns.
func (p *Pool) VirtualBytes() int64 {
	total := p.ID.Bytes() + p.X.Bytes() + p.Y.Bytes() + p.VX.Bytes() + p.VY.Bytes() +
		p.Surprise.Bytes() + p.Health.Bytes() + p.Cell.Bytes() + p.Status.Bytes() + p.Role.Bytes()
	if p.economic {
		total += p.Resources.Bytes() + p.Share.Bytes()
	}
	if p.perm != nil {
		total += p.perm.Bytes()
	}
	if p.counts != nil {
		total += p.counts.Bytes()
	}
	return total
}

// Close releases every column.
func (p *Pool) Close() {
	for _, c := range []*Column[float32]{p.X, p.Y, p.VX, p.VY, p.Surprise, p.Health} {
		c.Free()
	}
	p.ID.Free()
	p.Cell.Free()
	p.Status.Free()
	p.Role.Free()
	p.Resources.Free()
	p.Share.Free()
	p.perm.Free()
	p.counts.Free()
	p.n = 0
}

package systems

import (
	"sync/atomic"

	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/workers"
)

// DensityGrid counts agents per coarse cell over the whole world.
type DensityGrid struct {
	cellSize float32
	inv      float32
	cols     int
	rows     int
	counts   *store.Column[uint32]
}

// NewDensityGrid creates a grid covering worldW x worldH.
func NewDensityGrid(worldW, worldH, cellSize float32) *DensityGrid {
	cols := int(worldW/cellSize) + 1
	rows := int(worldH/cellSize) + 1
	return &DensityGrid{
		cellSize: cellSize,
		inv:      1 / cellSize,
		cols:     cols,
		rows:     rows,
		counts:   store.Allocate[uint32](cols * rows),
	}
}

func (g *DensityGrid) cellIndex(x, y float32) int {
	cx := int(clampFloat(x*g.inv, 0, float32(g.cols-1)))
	cy := int(clampFloat(y*g.inv, 0, float32(g.rows-1)))
	return cy*g.cols + cx
}

// Rebuild recounts from positions (xs[i], ys[i]).
func (g *DensityGrid) Rebuild(xs, ys []float32, r workers.Runner) {
	counts := g.counts.Slice()
	r.Run(len(counts), func(lo, hi, _ int) {
		clear(counts[lo:hi])
	})
	r.Run(len(xs), func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			atomic.AddUint32(&counts[g.cellIndex(xs[i], ys[i])], 1)
		}
	})
}

// At returns the count in the cell containing (x, y).
func (g *DensityGrid) At(x, y float32) int {
	return int(g.counts.At(g.cellIndex(x, y)))
}

// Peak returns the largest cell count.
func (g *DensityGrid) Peak() int {
	var peak uint32
	for _, c := range g.counts.Slice() {
		peak = max(peak, c)
	}
	return int(peak)
}

// Bytes returns the mapped size of the grid.
func (g *DensityGrid) Bytes() int64 {
	return g.counts.Bytes()
}

// Close releases the grid memory.
func (g *DensityGrid) Close() {
	g.counts.Free()
}

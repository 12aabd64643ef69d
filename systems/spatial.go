// Package systems implements the per-tick simulation stages: the spatial
// index, the signal field, the movement kernel and the sharing policy.
package systems

import (
	"math/bits"
	"sync/atomic"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/workers"
)

// Hash multipliers. The cell key mixes both coordinates with large odd
// constants, then Fibonacci hashing takes the top bits.
const (
	hashPrimeX   = 2654435761
	hashPrimeY   = 2246822519
	fibonacci64  = 11400714819323198485
	maxQueryCell = 64 // Buckets deduplicated on the stack before spilling
)

// SpatialHash is a bucketed index over point positions, rebuilt from
// scratch every tick. Several cells can share a bucket, so queries return
// a superset of the true neighbours and callers re-check distance.
type SpatialHash struct {
	cellSize float32
	inv      float32
	shift    uint
	size     int

	counts  *store.Column[uint32] // per-bucket population, then scatter cursor
	offsets *store.Column[uint32] // bucket b occupies packed[offsets[b]:offsets[b+1]]
	packed  *store.Column[uint32] // slot indices grouped by bucket
	n       int
}

// TableSizeFor returns the bucket count used for n points: the smallest
// power of two >= 2n.
func TableSizeFor(n int) int {
	return config.NextPow2(2 * n)
}

// NewSpatialHash creates an index with tableSize buckets (rounded up to a
// power of two) able to hold capacity points.
func NewSpatialHash(tableSize, capacity int, cellSize float32) *SpatialHash {
	tableSize = config.NextPow2(tableSize)
	if tableSize < 2 {
		tableSize = 2
	}
	return &SpatialHash{
		cellSize: cellSize,
		inv:      1 / cellSize,
		shift:    uint(64 - bits.TrailingZeros(uint(tableSize))),
		size:     tableSize,
		counts:   store.Allocate[uint32](tableSize),
		offsets:  store.Allocate[uint32](tableSize + 1),
		packed:   store.Allocate[uint32](max(capacity, 1)),
	}
}

// CellHash maps cell coordinates to a bucket in a table of 2^(64-shift) entries.
func CellHash(cx, cy int32, shift uint) uint32 {
	key := uint64(int64(cx))*hashPrimeX ^ uint64(int64(cy))*hashPrimeY
	return uint32((key * fibonacci64) >> shift)
}

// CellSize returns the cell edge length.
func (h *SpatialHash) CellSize() float32 { return h.cellSize }

// TableSize returns the bucket count.
func (h *SpatialHash) TableSize() int { return h.size }

// Len returns the number of indexed points.
func (h *SpatialHash) Len() int { return h.n }

func (h *SpatialHash) bucketOf(x, y float32) uint32 {
	return CellHash(floorInt(x*h.inv), floorInt(y*h.inv), h.shift)
}

// Rebuild indexes points (xs[i], ys[i]) for i < len(xs). The count and
// scatter passes run on r; the prefix sum between them is sequential.
func (h *SpatialHash) Rebuild(xs, ys []float32, r workers.Runner) {
	n := len(xs)
	if n > h.packed.Len() {
		h.packed.Free()
		h.packed = store.Allocate[uint32](n)
	}
	h.n = n

	counts := h.counts.Slice()
	offsets := h.offsets.Slice()
	packed := h.packed.Slice()

	r.Run(len(counts), func(lo, hi, _ int) {
		clear(counts[lo:hi])
	})

	// Count
	r.Run(n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			atomic.AddUint32(&counts[h.bucketOf(xs[i], ys[i])], 1)
		}
	})

	// Prefix sum; counts become scatter cursors
	var sum uint32
	for b, c := range counts {
		offsets[b] = sum
		counts[b] = sum
		sum += c
	}
	offsets[len(counts)] = sum

	// Scatter
	r.Run(n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			b := h.bucketOf(xs[i], ys[i])
			pos := atomic.AddUint32(&counts[b], 1) - 1
			packed[pos] = uint32(i)
		}
	})
}

// Bucket returns the packed indices stored in bucket b.
func (h *SpatialHash) Bucket(b uint32) []uint32 {
	offsets := h.offsets.Slice()
	return h.packed.Slice()[offsets[b]:offsets[b+1]]
}

// QueryRadiusInto appends to dst every indexed point whose bucket overlaps
// the square around (x, y) with half-extent radius, and returns dst. Each
// bucket is visited once per query. Reuse dst across calls to avoid
// allocations.
func (h *SpatialHash) QueryRadiusInto(dst []uint32, x, y, radius float32) []uint32 {
	return h.query(dst, x, y, radius, -1)
}

// QueryNeighborsInto is QueryRadiusInto without index self.
func (h *SpatialHash) QueryNeighborsInto(dst []uint32, self int, x, y, radius float32) []uint32 {
	return h.query(dst, x, y, radius, self)
}

func (h *SpatialHash) query(dst []uint32, x, y, radius float32, self int) []uint32 {
	if h.n == 0 {
		return dst
	}
	cx0 := floorInt((x - radius) * h.inv)
	cx1 := floorInt((x + radius) * h.inv)
	cy0 := floorInt((y - radius) * h.inv)
	cy1 := floorInt((y + radius) * h.inv)

	var stack [maxQueryCell]uint32
	seen := stack[:0]

	offsets := h.offsets.Slice()
	packed := h.packed.Slice()

	for cy := cy0; cy <= cy1; cy++ {
		for cx := cx0; cx <= cx1; cx++ {
			b := CellHash(cx, cy, h.shift)
			if containsBucket(seen, b) {
				continue
			}
			seen = append(seen, b)

			for _, idx := range packed[offsets[b]:offsets[b+1]] {
				if int(idx) == self {
					continue
				}
				dst = append(dst, idx)
			}
		}
	}
	return dst
}

func containsBucket(seen []uint32, b uint32) bool {
	for _, s := range seen {
		if s == b {
			return true
		}
	}
	return false
}

// Bytes returns the mapped size of the index.
func (h *SpatialHash) Bytes() int64 {
	return h.counts.Bytes() + h.offsets.Bytes() + h.packed.Bytes()
}

// Close releases the index memory.
func (h *SpatialHash) Close() {
	h.counts.Free()
	h.offsets.Free()
	h.packed.Free()
}

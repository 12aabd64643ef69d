package systems

import (
	"math/rand"
	"testing"

	"github.com/pthm-cable/swarm/workers"
)

func randomPoints(n int, w, h float32, seed int64) ([]float32, []float32) {
	rng := rand.New(rand.NewSource(seed))
	xs := make([]float32, n)
	ys := make([]float32, n)
	for i := range xs {
		xs[i] = rng.Float32() * w
		ys[i] = rng.Float32() * h
	}
	return xs, ys
}

func TestTableSizeFor(t *testing.T) {
	cases := []struct{ n, want int }{{1, 2}, {3, 8}, {1000, 2048}, {1024, 2048}}
	for _, c := range cases {
		if got := TableSizeFor(c.n); got != c.want {
			t.Errorf("TableSizeFor(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestCellHash_InRange(t *testing.T) {
	h := NewSpatialHash(1024, 1, 10)
	defer h.Close()
	for cx := int32(-50); cx < 50; cx++ {
		for cy := int32(-50); cy < 50; cy++ {
			if b := CellHash(cx, cy, h.shift); int(b) >= h.TableSize() {
				t.Fatalf("bucket %d out of range for (%d,%d)", b, cx, cy)
			}
		}
	}
}

func TestSpatialHash_EveryPointIndexedOnce(t *testing.T) {
	const n = 5000
	xs, ys := randomPoints(n, 1000, 1000, 1)
	h := NewSpatialHash(TableSizeFor(n), n, 10)
	defer h.Close()

	pool := workers.NewPool(4, 64)
	defer pool.Close()
	h.Rebuild(xs, ys, pool)

	seen := make([]int, n)
	for b := 0; b < h.TableSize(); b++ {
		for _, idx := range h.Bucket(uint32(b)) {
			seen[idx]++
		}
	}
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("point %d indexed %d times", i, c)
		}
	}
}

func TestSpatialHash_NoFalseNegatives(t *testing.T) {
	const n = 5000
	xs, ys := randomPoints(n, 1000, 1000, 2)
	h := NewSpatialHash(TableSizeFor(n), n, 10)
	defer h.Close()
	h.Rebuild(xs, ys, workers.Serial{})

	rng := rand.New(rand.NewSource(3))
	var dst []uint32
	for q := 0; q < 200; q++ {
		qx, qy := rng.Float32()*1000, rng.Float32()*1000
		for _, r := range []float32{5, 10, 25} {
			dst = h.QueryRadiusInto(dst[:0], qx, qy, r)
			got := make(map[uint32]bool, len(dst))
			for _, idx := range dst {
				if got[idx] {
					t.Fatalf("query returned %d twice", idx)
				}
				got[idx] = true
			}
			for i := 0; i < n; i++ {
				if distanceSq(qx, qy, xs[i], ys[i]) <= r*r && !got[uint32(i)] {
					t.Fatalf("query (%.1f,%.1f) r=%.0f missed point %d", qx, qy, r, i)
				}
			}
		}
	}
}

func TestSpatialHash_QueryNeighborsExcludesSelf(t *testing.T) {
	xs := []float32{50, 51, 52}
	ys := []float32{50, 50, 50}
	h := NewSpatialHash(8, 3, 10)
	defer h.Close()
	h.Rebuild(xs, ys, workers.Serial{})

	got := h.QueryNeighborsInto(nil, 1, 51, 50, 5)
	for _, idx := range got {
		if idx == 1 {
			t.Fatal("self returned by QueryNeighborsInto")
		}
	}
	if len(got) != 2 {
		t.Errorf("got %d neighbours, want 2", len(got))
	}
}

func TestSpatialHash_NegativeCoordinates(t *testing.T) {
	xs := []float32{-15, -5, 5}
	ys := []float32{-15, -5, 5}
	h := NewSpatialHash(16, 3, 10)
	defer h.Close()
	h.Rebuild(xs, ys, workers.Serial{})

	got := h.QueryRadiusInto(nil, -10, -10, 8)
	found := map[uint32]bool{}
	for _, idx := range got {
		found[idx] = true
	}
	if !found[0] || !found[1] {
		t.Errorf("expected points 0 and 1 near (-10,-10), got %v", got)
	}
}

func TestSpatialHash_RebuildGrowsAndShrinks(t *testing.T) {
	h := NewSpatialHash(64, 4, 10)
	defer h.Close()

	xs, ys := randomPoints(100, 200, 200, 4)
	h.Rebuild(xs, ys, workers.Serial{})
	if h.Len() != 100 {
		t.Fatalf("len = %d, want 100", h.Len())
	}

	h.Rebuild(xs[:10], ys[:10], workers.Serial{})
	total := 0
	for b := 0; b < h.TableSize(); b++ {
		total += len(h.Bucket(uint32(b)))
	}
	if total != 10 {
		t.Errorf("indexed %d points after shrink, want 10", total)
	}
}

func TestSpatialHash_EmptyQuery(t *testing.T) {
	h := NewSpatialHash(16, 1, 10)
	defer h.Close()
	if got := h.QueryRadiusInto(nil, 0, 0, 100); len(got) != 0 {
		t.Errorf("empty index returned %v", got)
	}
}

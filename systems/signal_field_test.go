package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/swarm/workers"
)

func newTestField(decay, diffusion float32) *SignalField {
	var d, k [NumChannels]float32
	for i := range d {
		d[i] = decay
		k[i] = diffusion
	}
	return NewSignalField(16, 16, 10, d, k)
}

func TestSignalField_DepositThenSampleIncreases(t *testing.T) {
	f := newTestField(0, 0)
	defer f.Close()

	points := [][2]float32{{50, 50}, {55, 57}, {0, 0}, {159, 159}, {-20, 300}, {149.9, 3}}
	for _, p := range points {
		before := f.Sample(p[0], p[1], ChannelTrail)
		f.Deposit(p[0], p[1], ChannelTrail, 1)
		after := f.Sample(p[0], p[1], ChannelTrail)
		if after <= before {
			t.Errorf("sample at (%v,%v) did not increase: %v -> %v", p[0], p[1], before, after)
		}
	}
}

func TestSignalField_SampleFallsWithDistance(t *testing.T) {
	f := newTestField(0, 0)
	defer f.Close()

	const ox, oy = 52, 53
	f.Deposit(ox, oy, ChannelDanger, 1)
	peak := f.Sample(ox, oy, ChannelDanger)

	dirs := [][2]float32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	for _, d := range dirs {
		prev := peak
		for step := float32(0.5); step <= 40; step += 0.5 {
			v := f.Sample(ox+d[0]*step, oy+d[1]*step, ChannelDanger)
			if v > prev {
				t.Fatalf("direction %v: sample rose from %v to %v at distance %v", d, prev, v, step)
			}
			prev = v
		}
		if prev >= peak {
			t.Errorf("direction %v: sample 40 units away %v, not below the deposit point %v", d, prev, peak)
		}
	}
}

func TestSignalField_DepositConservesAmount(t *testing.T) {
	f := newTestField(0, 0)
	defer f.Close()

	f.Deposit(43.7, 81.2, ChannelResource, 2)
	f.Deposit(500, -500, ChannelResource, 3)
	if total := f.Total(ChannelResource); math.Abs(total-5) > 1e-5 {
		t.Errorf("total = %v, want 5", total)
	}
}

func TestSignalField_ZeroDecayZeroDiffusionIsFixedPoint(t *testing.T) {
	f := newTestField(0, 0)
	defer f.Close()

	f.Deposit(50, 50, ChannelDanger, 4)
	f.Deposit(10, 140, ChannelNovelty, 1)
	snapshot := append([]float32(nil), f.Data(ChannelDanger)...)

	for i := 0; i < 5; i++ {
		f.Tick(workers.Serial{})
	}
	for i, v := range f.Data(ChannelDanger) {
		if v != snapshot[i] {
			t.Fatalf("node %d changed: %v -> %v", i, snapshot[i], v)
		}
	}
}

func TestSignalField_FullDecayZeroesChannel(t *testing.T) {
	var decay, diffusion [NumChannels]float32
	decay[ChannelTrail] = 1
	diffusion[ChannelTrail] = 0.2
	f := NewSignalField(16, 16, 10, decay, diffusion)
	defer f.Close()

	f.Deposit(0, 0, ChannelTrail, 5) // border
	f.Deposit(80, 80, ChannelTrail, 5)
	f.Deposit(80, 80, ChannelResource, 5)
	f.Tick(workers.Serial{})

	for i, v := range f.Data(ChannelTrail) {
		if v != 0 {
			t.Fatalf("node %d = %v after full decay", i, v)
		}
	}
	if f.Total(ChannelResource) == 0 {
		t.Error("other channels must be unaffected")
	}
}

func TestSignalField_DiffusionSpreadsAndStaysNonNegative(t *testing.T) {
	f := newTestField(0.01, 0.25)
	defer f.Close()

	f.Deposit(80, 80, ChannelTrail, 10)
	centre := f.Sample(80, 80, ChannelTrail)

	pool := workers.NewPool(4, 1)
	defer pool.Close()
	for i := 0; i < 20; i++ {
		f.Tick(pool)
	}

	if f.Sample(80, 80, ChannelTrail) >= centre {
		t.Error("centre should lose intensity to diffusion")
	}
	if f.Sample(90, 80, ChannelTrail) <= 0 {
		t.Error("neighbour should receive intensity")
	}
	for i, v := range f.Data(ChannelTrail) {
		if v < 0 || math.IsNaN(float64(v)) {
			t.Fatalf("node %d = %v", i, v)
		}
	}
	if f.Total(ChannelTrail) > 10 {
		t.Errorf("mass grew to %v", f.Total(ChannelTrail))
	}
}

func TestSignalField_InvalidChannelIsNoop(t *testing.T) {
	f := newTestField(0, 0)
	defer f.Close()

	f.Deposit(50, 50, Channel(-1), 1)
	f.Deposit(50, 50, Channel(NumChannels), 1)
	if v := f.Sample(50, 50, Channel(42)); v != 0 {
		t.Errorf("invalid sample = %v", v)
	}
	if gx, gy := f.Gradient(50, 50, Channel(7)); gx != 0 || gy != 0 {
		t.Errorf("invalid gradient = (%v,%v)", gx, gy)
	}
	for ch := Channel(0); ch < NumChannels; ch++ {
		if f.Total(ch) != 0 {
			t.Errorf("channel %v total = %v", ch, f.Total(ch))
		}
	}
}

func TestSignalField_GradientPointsUphill(t *testing.T) {
	f := newTestField(0, 0)
	defer f.Close()

	f.Deposit(80, 80, ChannelDanger, 1)
	gx, gy := f.Gradient(70, 80, ChannelDanger)
	if gx <= 0 || gy != 0 {
		t.Errorf("gradient left of peak = (%v,%v), want (+,0)", gx, gy)
	}
	gx, gy = f.Gradient(80, 90, ChannelDanger)
	if gy >= 0 || gx != 0 {
		t.Errorf("gradient below peak = (%v,%v), want (0,-)", gx, gy)
	}
}

func TestChannel_String(t *testing.T) {
	if ChannelNovelty.String() != "novelty" || Channel(9).String() != "invalid" {
		t.Error("unexpected channel names")
	}
}

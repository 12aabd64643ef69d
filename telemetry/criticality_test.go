package telemetry

import (
	"math"
	"testing"
)

func TestMeasureFront(t *testing.T) {
	xs := []float32{3, 0, 10, 50}
	ys := []float32{4, 5, 0, 50}
	surprise := []float32{0.9, 0.5, 0.05, 0.1}

	f := MeasureFront(xs, ys, surprise, 0, 0, SurprisedThreshold)
	if f.Count != 2 {
		t.Fatalf("count = %d, want 2", f.Count)
	}
	if math.Abs(f.MeanDist-5) > 1e-6 || f.DistStd != 0 {
		t.Errorf("distance mean/std = %v/%v, want 5/0", f.MeanDist, f.DistStd)
	}
	if math.Abs(f.Peak-0.9) > 1e-6 || f.Fraction != 0.5 {
		t.Errorf("peak/fraction = %v/%v", f.Peak, f.Fraction)
	}
}

func TestCriticalityProbe_GrowthAndVerdict(t *testing.T) {
	p := NewCriticalityProbe(0, 0)
	xs := make([]float32, 10)
	ys := make([]float32, 10)
	surprise := make([]float32, 10)

	counts := []int{1, 3, 7, 8}
	for tick, c := range counts {
		for i := range surprise {
			surprise[i] = 0
			if i < c {
				surprise[i] = 1
			}
		}
		p.Observe(uint64(tick), xs, ys, surprise)
	}

	trace := p.Trace()
	if len(trace) != 4 {
		t.Fatalf("trace length %d", len(trace))
	}
	if !math.IsNaN(trace[0].Growth) || !math.IsNaN(trace[1].Growth) {
		t.Error("growth undefined for the first two observations")
	}
	if trace[2].Delta != 4 || trace[2].Growth != 2 {
		t.Errorf("third observation delta/growth = %d/%v, want 4/2", trace[2].Delta, trace[2].Growth)
	}
	if p.Verdict() != VerdictSupercritical {
		t.Errorf("80%% surprised should be supercritical, got %s", p.Verdict())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		front SurpriseFront
		want  Verdict
	}{
		{"runaway", SurpriseFront{Count: 60, Fraction: 0.6, Peak: 1}, VerdictSupercritical},
		{"steady", SurpriseFront{Count: 10, Fraction: 0.1, Peak: 0.3}, VerdictCritical},
		{"fading", SurpriseFront{Count: 10, Fraction: 0.1, Peak: 0.04}, VerdictSubcritical},
		{"gone", SurpriseFront{}, VerdictSubcritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.front); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

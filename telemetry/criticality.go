package telemetry

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Verdict classifies how an injected surprise wave evolved.
type Verdict string

const (
	VerdictSupercritical Verdict = "supercritical"
	VerdictCritical      Verdict = "critical"
	VerdictSubcritical   Verdict = "subcritical"
)

// Defaults used by the criticality probe.
const (
	SurprisedThreshold = 0.1  // Agents above this count as surprised
	CascadeFraction    = 0.5  // Surprised fraction marking a runaway cascade
	LivePeak           = 0.05 // Peak surprise below this means the wave died
)

// SurpriseFront describes the surprised part of the population relative to
// an origin.
type SurpriseFront struct {
	Tick     uint64  `csv:"tick"`
	Count    int     `csv:"count"`
	Fraction float64 `csv:"fraction"`
	Delta    int     `csv:"delta"`
	Growth   float64 `csv:"growth"` // Delta over the previous delta, NaN when undefined
	MeanDist float64 `csv:"mean_dist"`
	DistStd  float64 `csv:"dist_std"`
	Peak     float64 `csv:"peak"`
}

// MeasureFront scans the columns and summarises agents whose surprise
// exceeds threshold.
func MeasureFront(xs, ys, surprise []float32, originX, originY, threshold float32) SurpriseFront {
	var f SurpriseFront
	dists := make([]float64, 0, 1024)
	var peak float32
	for i, s := range surprise {
		if s <= threshold {
			continue
		}
		dx := float64(xs[i] - originX)
		dy := float64(ys[i] - originY)
		dists = append(dists, math.Sqrt(dx*dx+dy*dy))
		if s > peak {
			peak = s
		}
	}

	f.Count = len(dists)
	f.Peak = float64(peak)
	if len(surprise) > 0 {
		f.Fraction = float64(f.Count) / float64(len(surprise))
	}
	switch len(dists) {
	case 0:
	case 1:
		f.MeanDist = dists[0]
	default:
		f.MeanDist, f.DistStd = stat.MeanStdDev(dists, nil)
	}
	return f
}

// CriticalityProbe tracks a surprise wave tick by tick.
type CriticalityProbe struct {
	OriginX, OriginY float32
	Threshold        float32

	trace     []SurpriseFront
	prevDelta int
}

// NewCriticalityProbe creates a probe around an origin.
func NewCriticalityProbe(originX, originY float32) *CriticalityProbe {
	return &CriticalityProbe{
		OriginX:   originX,
		OriginY:   originY,
		Threshold: SurprisedThreshold,
	}
}

// Observe measures the current columns and appends the front to the trace.
func (p *CriticalityProbe) Observe(tick uint64, xs, ys, surprise []float32) SurpriseFront {
	f := MeasureFront(xs, ys, surprise, p.OriginX, p.OriginY, p.Threshold)
	f.Tick = tick
	f.Growth = math.NaN()
	if n := len(p.trace); n > 0 {
		f.Delta = f.Count - p.trace[n-1].Count
		if p.prevDelta != 0 {
			f.Growth = float64(f.Delta) / float64(p.prevDelta)
		}
		p.prevDelta = f.Delta
	}
	p.trace = append(p.trace, f)
	return f
}

// Trace returns every observation so far.
func (p *CriticalityProbe) Trace() []SurpriseFront {
	return p.trace
}

// Verdict classifies the last observation.
func (p *CriticalityProbe) Verdict() Verdict {
	if len(p.trace) == 0 {
		return VerdictSubcritical
	}
	return Classify(p.trace[len(p.trace)-1])
}

// Classify labels a front: more than half the population surprised is a
// cascade, a surviving wave is critical, anything else collapsed.
func Classify(f SurpriseFront) Verdict {
	switch {
	case f.Fraction > CascadeFraction:
		return VerdictSupercritical
	case f.Count > 0 && f.Peak > LivePeak:
		return VerdictCritical
	default:
		return VerdictSubcritical
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (f SurpriseFront) LogValue() slog.Value {
	growth := "-"
	if !math.IsNaN(f.Growth) {
		growth = fmt.Sprintf("%.3f", f.Growth)
	}
	return slog.GroupValue(
		slog.Uint64("tick", f.Tick),
		slog.Int("count", f.Count),
		slog.Int("delta", f.Delta),
		slog.String("growth", growth),
		slog.Float64("fraction", f.Fraction),
		slog.Float64("mean_dist", f.MeanDist),
		slog.Float64("peak", f.Peak),
	)
}

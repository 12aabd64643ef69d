package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`

	// Tier occupancy at window end
	Agents         int `csv:"agents"`
	Full           int `csv:"full"`
	Simplified     int `csv:"simplified"`
	Dormant        int `csv:"dormant"`
	ActiveThinkers int `csv:"active_thinkers"`

	// Events during window
	Trades     int `csv:"trades"`
	Promotions int `csv:"promotions"`
	Returns    int `csv:"returns"`
	Wakes      int `csv:"wakes"`
	Demotions  int `csv:"demotions"`
	Shocks     int `csv:"shocks"`

	// Mean surprise per tick over the window
	MeanSurprise float64 `csv:"mean_surprise"`
	PeakSurprise float64 `csv:"peak_surprise"`

	// Surprise distribution sampled at window end
	SurpriseStd float64 `csv:"surprise_std"`
	SurpriseP10 float64 `csv:"surprise_p10"`
	SurpriseP50 float64 `csv:"surprise_p50"`
	SurpriseP90 float64 `csv:"surprise_p90"`

	// Health distribution sampled at window end
	HealthMean float64 `csv:"health_mean"`
	HealthP10  float64 `csv:"health_p10"`
	HealthP50  float64 `csv:"health_p50"`

	// Signal field mass at window end
	TrailMass   float64 `csv:"trail_mass"`
	DangerMass  float64 `csv:"danger_mass"`
	NoveltyMass float64 `csv:"novelty_mass"`

	VirtualBytes int64 `csv:"virtual_bytes"`
}

// Distribution summarises a sample. Quantiles use the empirical CDF.
type Distribution struct {
	Mean float64
	Std  float64
	P10  float64
	P50  float64
	P90  float64
}

// Describe computes mean, standard deviation and quantiles of values.
// values is left untouched. Returns the zero Distribution when empty.
func Describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var d Distribution
	if len(sorted) == 1 {
		d.Mean = sorted[0]
	} else {
		d.Mean, d.Std = stat.MeanStdDev(sorted, nil)
	}
	d.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	d.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Int("agents", s.Agents),
		slog.Int("full", s.Full),
		slog.Int("simplified", s.Simplified),
		slog.Int("dormant", s.Dormant),
		slog.Int("active_thinkers", s.ActiveThinkers),
		slog.Int("trades", s.Trades),
		slog.Int("promotions", s.Promotions),
		slog.Int("returns", s.Returns),
		slog.Int("wakes", s.Wakes),
		slog.Int("demotions", s.Demotions),
		slog.Int("shocks", s.Shocks),
		slog.Float64("mean_surprise", s.MeanSurprise),
		slog.Float64("peak_surprise", s.PeakSurprise),
		slog.Float64("surprise_std", s.SurpriseStd),
		slog.Float64("surprise_p10", s.SurpriseP10),
		slog.Float64("surprise_p50", s.SurpriseP50),
		slog.Float64("surprise_p90", s.SurpriseP90),
		slog.Float64("health_mean", s.HealthMean),
		slog.Float64("health_p10", s.HealthP10),
		slog.Float64("health_p50", s.HealthP50),
		slog.Float64("trail_mass", s.TrailMass),
		slog.Float64("danger_mass", s.DangerMass),
		slog.Float64("novelty_mass", s.NoveltyMass),
		slog.Int64("virtual_bytes", s.VirtualBytes),
	)
}

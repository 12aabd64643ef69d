// Package telemetry provides macro-state snapshots, windowed statistics,
// regime detection, criticality probing and experiment output.
package telemetry

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// MacroState is the per-tick summary handed to external consumers.
// Means are taken over the full-fidelity population.
type MacroState struct {
	Tick uint64 `csv:"tick"`

	Agents         int `csv:"agents"` // Every tier
	Full           int `csv:"full"`   // Full pool occupancy, heavy-pending included
	Simplified     int `csv:"simplified"`
	Dormant        int `csv:"dormant"`
	ActiveThinkers int `csv:"active_thinkers"` // Agents waiting on the heavy runtime

	MeanSurprise float64 `csv:"mean_surprise"`
	MeanHealth   float64 `csv:"mean_health"`

	Trades     int `csv:"trades"`
	Promotions int `csv:"promotions"`

	VirtualBytes int64 `csv:"virtual_bytes"`
}

// LogValue implements slog.LogValuer for structured logging.
func (m MacroState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("tick", m.Tick),
		slog.Int("agents", m.Agents),
		slog.Int("full", m.Full),
		slog.Int("simplified", m.Simplified),
		slog.Int("dormant", m.Dormant),
		slog.Int("active_thinkers", m.ActiveThinkers),
		slog.Float64("mean_surprise", m.MeanSurprise),
		slog.Float64("mean_health", m.MeanHealth),
		slog.Int("trades", m.Trades),
		slog.Int("promotions", m.Promotions),
		slog.String("virtual", humanize.IBytes(uint64(max(m.VirtualBytes, 0)))),
	)
}

package sim

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/swarm/systems"
	"github.com/pthm-cable/swarm/telemetry"
)

// maxFlushSamples caps the per-agent samples taken for window distributions.
const maxFlushSamples = 10000

// Observe records one tick's macro state and, at window boundaries, flushes
// window stats, perf stats and regime changes to every configured sink.
// The scheduler calls it after filling in tier counts.
func (s *Simulation) Observe(m telemetry.MacroState, d time.Duration) {
	s.collector.RecordTick(m)
	s.metrics.Observe(m, d)
	if err := s.output.WriteMacro(m); err != nil {
		slog.Error("failed to write macro", "error", err)
	}

	if !s.collector.ShouldFlush(m.Tick) {
		return
	}

	s.sampleColumns()
	stats := s.collector.Flush(m, s.surprise, s.health, telemetry.FieldMass{
		Trail:   s.field.Total(systems.ChannelTrail),
		Danger:  s.field.Total(systems.ChannelDanger),
		Novelty: s.field.Total(systems.ChannelNovelty),
	})
	perf := s.perf.Stats()

	if s.logStats {
		slog.Info("stats", "window", stats)
		slog.Info("perf", "stats", perf)
	}
	if err := s.output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := s.output.WritePerf(perf, m.Tick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, r := range s.regimes.Check(stats) {
		r.LogRegime()
		s.metrics.ObserveRegime(r)
		if err := s.output.WriteRegime(r); err != nil {
			slog.Error("failed to write regime", "error", err)
		}
	}
}

// sampleColumns copies a strided sample of surprise and health into the
// reusable flush buffers.
func (s *Simulation) sampleColumns() {
	n := s.pool.Len()
	stride := max(1, (n+maxFlushSamples-1)/maxFlushSamples)
	surprise := s.pool.Surprise.Head(n)
	health := s.pool.Health.Head(n)

	s.surprise = s.surprise[:0]
	s.health = s.health[:0]
	for i := 0; i < n; i += stride {
		s.surprise = append(s.surprise, float64(surprise[i]))
		s.health = append(s.health, float64(health[i]))
	}
}

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pthm-cable/swarm/components"
)

// Metrics exports macro state to Prometheus. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	agents       *prometheus.GaugeVec
	meanSurprise prometheus.Gauge
	meanHealth   prometheus.Gauge
	virtualBytes prometheus.Gauge
	tick         prometheus.Gauge
	tickDuration prometheus.Histogram
	trades       prometheus.Counter
	promotions   prometheus.Counter
	regimes      *prometheus.CounterVec
}

// NewMetrics registers the swarm metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		agents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "agents",
			Help:      "Agents per fidelity tier",
		}, []string{"tier"}),
		meanSurprise: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "mean_surprise",
			Help:      "Mean surprise over the full-fidelity population",
		}),
		meanHealth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "mean_health",
			Help:      "Mean health over the full-fidelity population",
		}),
		virtualBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "virtual_bytes",
			Help:      "Estimated virtual memory mapped by agent and field storage",
		}),
		tick: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarm",
			Name:      "tick",
			Help:      "Current simulation tick",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swarm",
			Name:      "tick_duration_seconds",
			Help:      "Wall time per tick",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		trades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "trades_total",
			Help:      "Completed city trades",
		}),
		promotions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "promotions_total",
			Help:      "Agents handed to the heavy runtime",
		}),
		regimes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swarm",
			Name:      "regimes_total",
			Help:      "Detected regime changes by type",
		}, []string{"type"}),
	}
}

// Registry returns the registry to serve, e.g. with promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Observe records one tick.
func (m *Metrics) Observe(s MacroState, d time.Duration) {
	if m == nil {
		return
	}
	m.agents.WithLabelValues(components.TierFull.String()).Set(float64(s.Full - s.ActiveThinkers))
	m.agents.WithLabelValues(components.TierHeavyPending.String()).Set(float64(s.ActiveThinkers))
	m.agents.WithLabelValues(components.TierSimplified.String()).Set(float64(s.Simplified))
	m.agents.WithLabelValues(components.TierDormant.String()).Set(float64(s.Dormant))
	m.meanSurprise.Set(s.MeanSurprise)
	m.meanHealth.Set(s.MeanHealth)
	m.virtualBytes.Set(float64(s.VirtualBytes))
	m.tick.Set(float64(s.Tick))
	m.tickDuration.Observe(d.Seconds())
	m.trades.Add(float64(s.Trades))
	m.promotions.Add(float64(s.Promotions))
}

// ObserveRegime counts a detected regime change.
func (m *Metrics) ObserveRegime(r Regime) {
	if m == nil {
		return
	}
	m.regimes.WithLabelValues(string(r.Type)).Inc()
}

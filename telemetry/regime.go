package telemetry

import (
	"fmt"
	"log/slog"
)

// RegimeType identifies a detected regime change.
type RegimeType string

const (
	RegimeCascade         RegimeType = "cascade"
	RegimeCollapse        RegimeType = "collapse"
	RegimePromotionSurge  RegimeType = "promotion_surge"
	RegimeCascadeRecovery RegimeType = "cascade_recovery"
	RegimeQuiescent       RegimeType = "quiescent"
)

// Regime is a detected change in the swarm's macro behaviour.
type Regime struct {
	Type        RegimeType `csv:"type"`
	Tick        uint64     `csv:"tick"`
	Description string     `csv:"description"`
}

// LogRegime logs the regime using slog.
func (r Regime) LogRegime() {
	slog.Info("regime",
		"type", string(r.Type),
		"tick", r.Tick,
		"description", r.Description,
	)
}

// RegimeThresholds configures the detector.
type RegimeThresholds struct {
	CascadeSurprise float64 // Window mean surprise above this is a cascade
	CollapseHealth  float64 // Window health mean below this is a collapse
	PromotionSurge  float64 // Promotions above this multiple of the rolling mean
}

// RegimeDetector watches window stats for cascades, collapses and bursts
// of promotions.
type RegimeDetector struct {
	thresholds RegimeThresholds

	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	inCascade   bool
	collapsed   bool
	quietCount  int
	cascadeTick uint64
}

// NewRegimeDetector creates a detector with the given history size.
func NewRegimeDetector(historySize int, thresholds RegimeThresholds) *RegimeDetector {
	if historySize < 5 {
		historySize = 5 // minimum for quiescence detection
	}
	return &RegimeDetector{
		thresholds:  thresholds,
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any regime changes.
func (rd *RegimeDetector) Check(stats WindowStats) []Regime {
	var regimes []Regime

	if r := rd.checkCascade(stats); r != nil {
		regimes = append(regimes, *r)
	}
	if r := rd.checkCollapse(stats); r != nil {
		regimes = append(regimes, *r)
	}
	if rd.historyFull || rd.historyIdx > 0 {
		if r := rd.checkPromotionSurge(stats); r != nil {
			regimes = append(regimes, *r)
		}
		if r := rd.checkQuiescent(stats); r != nil {
			regimes = append(regimes, *r)
		}
	}

	rd.addToHistory(stats)
	return regimes
}

func (rd *RegimeDetector) addToHistory(stats WindowStats) {
	rd.history[rd.historyIdx] = stats
	rd.historyIdx = (rd.historyIdx + 1) % rd.historySize
	if rd.historyIdx == 0 {
		rd.historyFull = true
	}
}

func (rd *RegimeDetector) getHistory() []WindowStats {
	if rd.historyFull {
		return rd.history
	}
	return rd.history[:rd.historyIdx]
}

// recent returns up to n of the newest history entries, oldest first.
func (rd *RegimeDetector) recent(n int) []WindowStats {
	count := rd.historyIdx
	if rd.historyFull {
		count = rd.historySize
	}
	n = min(n, count)
	out := make([]WindowStats, n)
	for i := 0; i < n; i++ {
		out[i] = rd.history[(rd.historyIdx-n+i+rd.historySize)%rd.historySize]
	}
	return out
}

// checkCascade fires once on entering a cascade and once on leaving it.
// Leaving requires mean surprise to fall below half the threshold.
func (rd *RegimeDetector) checkCascade(stats WindowStats) *Regime {
	th := rd.thresholds.CascadeSurprise
	if th <= 0 {
		return nil
	}

	if !rd.inCascade && stats.MeanSurprise > th {
		rd.inCascade = true
		rd.cascadeTick = stats.WindowEndTick
		return &Regime{
			Type:        RegimeCascade,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean surprise %.3f above %.3f (p90 %.3f)", stats.MeanSurprise, th, stats.SurpriseP90),
		}
	}
	if rd.inCascade && stats.MeanSurprise < th/2 {
		rd.inCascade = false
		return &Regime{
			Type:        RegimeCascadeRecovery,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Surprise settled to %.3f after %d ticks", stats.MeanSurprise, stats.WindowEndTick-rd.cascadeTick),
		}
	}
	return nil
}

func (rd *RegimeDetector) checkCollapse(stats WindowStats) *Regime {
	th := rd.thresholds.CollapseHealth
	if th <= 0 || stats.Full == 0 {
		return nil
	}

	if stats.HealthMean >= th {
		rd.collapsed = false
		return nil
	}
	if rd.collapsed {
		return nil
	}
	rd.collapsed = true
	return &Regime{
		Type:        RegimeCollapse,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Mean health %.3f below %.3f", stats.HealthMean, th),
	}
}

func (rd *RegimeDetector) checkPromotionSurge(stats WindowStats) *Regime {
	history := rd.getHistory()
	if len(history) < 3 || rd.thresholds.PromotionSurge <= 0 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.Promotions
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 {
		return nil
	}

	if float64(stats.Promotions) > avg*rd.thresholds.PromotionSurge && stats.Promotions >= 10 {
		return &Regime{
			Type:        RegimePromotionSurge,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Promotions %d are %.1fx average (%.1f)", stats.Promotions, float64(stats.Promotions)/avg, avg),
		}
	}
	return nil
}

// checkQuiescent fires once after five consecutive low-variance windows
// with negligible surprise.
func (rd *RegimeDetector) checkQuiescent(stats WindowStats) *Regime {
	recent := rd.recent(4)
	if len(recent) < 4 {
		return nil
	}

	var sum float64
	for _, h := range recent {
		sum += h.MeanSurprise
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.MeanSurprise - mean
		variance += d * d
	}
	variance /= 4

	if stats.MeanSurprise < 0.01 && variance < 1e-6 {
		rd.quietCount++
	} else {
		rd.quietCount = 0
	}

	if rd.quietCount == 5 {
		return &Regime{
			Type:        RegimeQuiescent,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Surprise below 0.01 for 5 windows (%d full agents)", stats.Full),
		}
	}
	return nil
}

package telemetry

// FieldMass holds signal field totals for the channels tracked in stats.
type FieldMass struct {
	Trail   float64
	Danger  float64
	Novelty float64
}

// Collector accumulates per-tick events within windows and produces WindowStats.
type Collector struct {
	windowTicks     uint64
	windowStartTick uint64

	// Event counters for current window
	trades     int
	promotions int
	returns    int
	wakes      int
	demotions  int
	shocks     int

	surpriseSum  float64
	surprisePeak float64
	ticks        int
}

// NewCollector creates a collector flushing every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: uint64(windowTicks)}
}

// RecordTick folds one tick's macro state into the window.
func (c *Collector) RecordTick(m MacroState) {
	c.trades += m.Trades
	c.promotions += m.Promotions
	c.surpriseSum += m.MeanSurprise
	if m.MeanSurprise > c.surprisePeak {
		c.surprisePeak = m.MeanSurprise
	}
	c.ticks++
}

// RecordReturns records agents handed back from the heavy runtime.
func (c *Collector) RecordReturns(n int) {
	c.returns += n
}

// RecordWakes records dormant agents moved to the simplified tier.
func (c *Collector) RecordWakes(n int) {
	c.wakes += n
}

// RecordDemotions records agents moved down a tier.
func (c *Collector) RecordDemotions(n int) {
	c.demotions += n
}

// RecordShock records an environmental shock.
func (c *Collector) RecordShock() {
	c.shocks++
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() uint64 {
	return c.windowTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// The caller provides:
// - m: the macro state of the last tick in the window
// - surprise, health: per-agent samples for the distribution columns
// - mass: signal field totals
func (c *Collector) Flush(m MacroState, surprise, health []float64, mass FieldMass) WindowStats {
	sd := Describe(surprise)
	hd := Describe(health)

	var meanSurprise float64
	if c.ticks > 0 {
		meanSurprise = c.surpriseSum / float64(c.ticks)
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   m.Tick,

		Agents:         m.Agents,
		Full:           m.Full,
		Simplified:     m.Simplified,
		Dormant:        m.Dormant,
		ActiveThinkers: m.ActiveThinkers,

		Trades:     c.trades,
		Promotions: c.promotions,
		Returns:    c.returns,
		Wakes:      c.wakes,
		Demotions:  c.demotions,
		Shocks:     c.shocks,

		MeanSurprise: meanSurprise,
		PeakSurprise: c.surprisePeak,
		SurpriseStd:  sd.Std,
		SurpriseP10:  sd.P10,
		SurpriseP50:  sd.P50,
		SurpriseP90:  sd.P90,

		HealthMean: hd.Mean,
		HealthP10:  hd.P10,
		HealthP50:  hd.P50,

		TrailMass:   mass.Trail,
		DangerMass:  mass.Danger,
		NoveltyMass: mass.Novelty,

		VirtualBytes: m.VirtualBytes,
	}

	c.windowStartTick = m.Tick
	c.trades = 0
	c.promotions = 0
	c.returns = 0
	c.wakes = 0
	c.demotions = 0
	c.shocks = 0
	c.surpriseSum = 0
	c.surprisePeak = 0
	c.ticks = 0

	return stats
}

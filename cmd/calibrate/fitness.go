package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/sim"
	"github.com/pthm-cable/swarm/telemetry"
)

// Shock describes the surprise injected at the world centre before a run.
type Shock struct {
	Radius    float32
	Intensity float32
}

// FitnessEvaluator runs shocked simulations and scores how close the
// resulting surprise wave is to critical.
type FitnessEvaluator struct {
	params     *ParamVector
	ticks      int
	seeds      []int64
	baseConfig *config.Config
	shock      Shock

	// Best run tracking
	mu          sync.Mutex
	bestFitness float64
	bestTrace   []telemetry.SurpriseFront
	last        evalSummary
}

// evalSummary describes the most recent evaluation across seeds.
type evalSummary struct {
	critical      int
	supercritical int
	subcritical   int
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	verdict telemetry.Verdict
	trace   []telemetry.SurpriseFront
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, ticks int, seeds []int64, baseCfg *config.Config, shock Shock) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		ticks:       ticks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		shock:       shock,
		bestFitness: math.Inf(1),
	}
}

// BestTrace returns the surprise trace of the best seed of the best
// evaluation so far.
func (fe *FitnessEvaluator) BestTrace() []telemetry.SurpriseFront {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestTrace
}

// LastSummary returns verdict counts from the most recent evaluation.
func (fe *FitnessEvaluator) LastSummary() evalSummary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

// Evaluate computes fitness for raw parameter values (lower = better). All
// seeds run concurrently; the first failing seed cancels the rest.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	cfg, err := fe.configFor(x)
	if err != nil {
		return math.Inf(1), err
	}

	results := make([]seedResult, len(fe.seeds))
	g, ctx := errgroup.WithContext(ctx)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			trace, err := fe.runSimulation(ctx, cfg, seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			results[i] = seedResult{
				fitness: computeFitness(trace),
				verdict: telemetry.Classify(trace[len(trace)-1]),
				trace:   trace,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return math.Inf(1), err
	}

	var total float64
	var summary evalSummary
	best := 0
	for i, r := range results {
		total += r.fitness
		if r.fitness < results[best].fitness {
			best = i
		}
		switch r.verdict {
		case telemetry.VerdictCritical:
			summary.critical++
		case telemetry.VerdictSupercritical:
			summary.supercritical++
		default:
			summary.subcritical++
		}
	}
	avg := total / float64(len(results))

	fe.mu.Lock()
	if avg < fe.bestFitness {
		fe.bestFitness = avg
		fe.bestTrace = results[best].trace
	}
	fe.last = summary
	fe.mu.Unlock()

	return avg, nil
}

// configFor copies the base config and applies x.
func (fe *FitnessEvaluator) configFor(x []float64) (*config.Config, error) {
	cfg := *fe.baseConfig
	fe.params.ApplyToConfig(&cfg, x)
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// runSimulation shocks the world centre and records the surprise front
// after every tick. The returned trace is never empty.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, cfg *config.Config, seed int64) ([]telemetry.SurpriseFront, error) {
	s, err := sim.New(cfg, sim.Options{Seed: seed, Populate: true})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	cx, cy := cfg.Derived.WorldW32/2, cfg.Derived.WorldH32/2
	s.ApplyShock(cx, cy, fe.shock.Radius, fe.shock.Intensity)

	probe := telemetry.NewCriticalityProbe(cx, cy)
	pool := s.Pool()
	observe := func() {
		n := pool.Len()
		probe.Observe(s.CurrentTick(), pool.X.Head(n), pool.Y.Head(n), pool.Surprise.Head(n))
	}

	observe()
	for range fe.ticks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.Step()
		observe()
	}
	return probe.Trace(), nil
}

// computeFitness scores a trace (lower = better). A critical wave scores in
// [0, 1) by how far its surprised count drifts per tick over the second half
// of the run. Collapsed and runaway waves always score at least 1.
func computeFitness(trace []telemetry.SurpriseFront) float64 {
	last := trace[len(trace)-1]
	switch telemetry.Classify(last) {
	case telemetry.VerdictSupercritical:
		return 1 + last.Fraction
	case telemetry.VerdictSubcritical:
		return 1 + clamp01(1-last.Peak/telemetry.LivePeak)
	}

	var logRatios []float64
	for i := max(len(trace)/2, 1); i < len(trace); i++ {
		prev, cur := trace[i-1].Count, trace[i].Count
		if prev == 0 || cur == 0 {
			continue
		}
		logRatios = append(logRatios, math.Log(float64(cur)/float64(prev)))
	}
	if len(logRatios) == 0 {
		return 0
	}
	drift := math.Abs(stat.Mean(logRatios, nil))
	return 1 - math.Exp(-drift)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}

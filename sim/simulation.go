// Package sim runs the full-fidelity tick pipeline: locality resort, index
// rebuild, kernel, field deposit and diffusion, and health decay.
package sim

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/dustin/go-humanize"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/systems"
	"github.com/pthm-cable/swarm/telemetry"
	"github.com/pthm-cable/swarm/workers"
)

// Options configures a simulation beyond the loaded config.
type Options struct {
	Seed      int64
	Populate  bool   // Spawn the configured full population with IDs from 0
	LogStats  bool   // Log window and perf stats via slog
	OutputDir string // CSV output directory (empty = disabled)
	Metrics   *telemetry.Metrics
}

// TickReport is what one pipeline step produced.
type TickReport struct {
	Macro    telemetry.MacroState
	Resorted bool     // Slots were reordered; slot-keyed references are stale
	Promoted []uint32 // Slots the economy flagged this tick, valid until the next Step
}

// partial is one worker's share of the macro reduction.
type partial struct {
	surprise float64
	health   float64
	pending  int
	_        [40]byte // keep workers off each other's cache lines
}

// Simulation owns the full-fidelity pool and everything that updates it.
type Simulation struct {
	cfg     *config.Config
	rng     *rand.Rand
	runner  *workers.Pool
	spawner *Spawner

	pool    *store.Pool
	next    *store.Kinematics
	index   *systems.SpatialHash
	field   *systems.SignalField
	economy *systems.Economy
	kernel  *systems.Kernel

	tick        uint64
	resortCols  int
	resortRows  int
	healthDecay float32
	partials    []partial
	promoted    []uint32
	closed      bool

	// Telemetry
	perf      *telemetry.PerfCollector
	collector *telemetry.Collector
	regimes   *telemetry.RegimeDetector
	output    *telemetry.OutputManager
	metrics   *telemetry.Metrics
	logStats  bool
	surprise  []float64 // Flush samples, reused
	health    []float64
}

// New builds a simulation from a finalized config.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	capacity := cfg.Derived.FullCapacity
	runner := workers.NewPool(cfg.Workers.Count, cfg.Workers.ParallelThreshold)

	s := &Simulation{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(opts.Seed)),
		runner:      runner,
		spawner:     NewSpawner(cfg, opts.Seed),
		pool:        store.NewPool(capacity, cfg.Economy.Enabled),
		next:        store.NewKinematics(capacity),
		index:       systems.NewSpatialHash(cfg.Derived.TableSize, capacity, float32(cfg.Index.CellSize)),
		field:       systems.NewSignalField(cfg.Field.Width, cfg.Field.Height, cfg.Derived.FieldCellSize, cfg.Derived.Decay, cfg.Derived.Diffusion),
		resortCols:  int(math.Ceil(cfg.World.Width / cfg.Index.CellSize)),
		resortRows:  int(math.Ceil(cfg.World.Height / cfg.Index.CellSize)),
		healthDecay: float32(cfg.Physics.HealthDecay),
		partials:    make([]partial, runner.Workers()),
		perf:        telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector:   telemetry.NewCollector(cfg.Telemetry.StatsWindow),
		regimes: telemetry.NewRegimeDetector(cfg.Telemetry.HistorySize, telemetry.RegimeThresholds{
			CascadeSurprise: cfg.Telemetry.CascadeSurprise,
			CollapseHealth:  cfg.Telemetry.CollapseHealth,
			PromotionSurge:  cfg.Telemetry.PromotionSurge,
		}),
		metrics:  opts.Metrics,
		logStats: opts.LogStats,
	}

	if cfg.Economy.Enabled {
		s.economy = systems.NewEconomy(cfg.Economy)
		s.generateLocations()
	}
	s.kernel = systems.NewKernel(systems.NewKernelParams(cfg), s.index, s.field, s.economy,
		systems.NewSharePolicy(cfg.Pollination), capacity, runner.Workers(), opts.Seed+1)

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.output = output
	if err := output.WriteConfig(cfg); err != nil {
		s.Close()
		return nil, err
	}

	if opts.Populate {
		s.SpawnFull(cfg.Population.Full, 0)
	}

	slog.Info("simulation ready",
		"full", s.pool.Len(),
		"capacity", capacity,
		"workers", runner.Workers(),
		"economy", cfg.Economy.Enabled,
		"mapped", store.Mapped,
		"virtual", humanize.IBytes(uint64(s.VirtualBytes())),
	)
	return s, nil
}

// Step runs one pipeline tick without perf bracketing or telemetry.
// Phases run strictly in order; each parallel phase ends at a barrier.
func (s *Simulation) Step() TickReport {
	s.tick++
	tick := s.tick
	var rep TickReport

	// 1. Locality resort
	if ri := s.cfg.Index.ResortInterval; ri > 0 && tick%uint64(ri) == 0 {
		s.perf.StartPhase(telemetry.PhaseResort)
		s.pool.UpdateCellIDs(float32(s.cfg.Index.CellSize), s.resortCols, s.resortRows, s.runner)
		s.pool.Resort(s.resortCols*s.resortRows, s.runner)
		rep.Resorted = true
	}

	// 2. Index rebuild
	s.perf.StartPhase(telemetry.PhaseIndex)
	n := s.pool.Len()
	s.index.Rebuild(s.pool.X.Head(n), s.pool.Y.Head(n), s.runner)

	// 3. Kernel
	s.perf.StartPhase(telemetry.PhaseKernel)
	s.kernel.Step(s.pool, s.next, tick, s.runner)

	// 4. Field deposits
	s.perf.StartPhase(telemetry.PhaseDeposit)
	s.kernel.Deposit(s.pool, tick)

	// 5. Diffusion and decay
	s.perf.StartPhase(telemetry.PhaseField)
	s.field.Tick(s.runner)

	// 6. Health decay, folded with the macro reduction
	s.perf.StartPhase(telemetry.PhaseDecay)
	rep.Macro = s.decayAndMeasure()

	s.promoted = s.kernel.Promotions(s.promoted[:0])
	rep.Promoted = s.promoted
	rep.Macro.Promotions = len(s.promoted)
	rep.Macro.Trades = s.kernel.Trades()
	return rep
}

// decayAndMeasure applies health decay to every unfrozen agent and sums
// the columns the macro state needs.
func (s *Simulation) decayAndMeasure() telemetry.MacroState {
	n := s.pool.Len()
	surprise := s.pool.Surprise.Head(n)
	health := s.pool.Health.Head(n)
	status := s.pool.Status.Head(n)
	decay := s.healthDecay

	for i := range s.partials {
		s.partials[i] = partial{}
	}
	s.runner.Run(n, func(lo, hi, worker int) {
		var sumS, sumH float64
		pending := 0
		for i := lo; i < hi; i++ {
			if status[i] == components.StatusHeavyPending {
				pending++
			} else {
				health[i] *= decay
			}
			sumS += float64(surprise[i])
			sumH += float64(health[i])
		}
		p := &s.partials[worker]
		p.surprise += sumS
		p.health += sumH
		p.pending += pending
	})

	m := telemetry.MacroState{
		Tick:         s.tick,
		Agents:       n,
		Full:         n,
		VirtualBytes: s.VirtualBytes(),
	}
	var sumS, sumH float64
	for _, p := range s.partials {
		sumS += p.surprise
		sumH += p.health
		m.ActiveThinkers += p.pending
	}
	if n > 0 {
		m.MeanSurprise = sumS / float64(n)
		m.MeanHealth = sumH / float64(n)
	}
	return m
}

// Tick runs one step with perf timing and records telemetry.
func (s *Simulation) Tick() TickReport {
	s.perf.StartTick()
	rep := s.Step()
	s.perf.StartPhase(telemetry.PhaseTelemetry)
	d := s.perf.EndTick()
	s.Observe(rep.Macro, d)
	return rep
}

// Run ticks until ctx is done or maxTicks have run (0 = unlimited).
// Cancellation is only checked between ticks.
func (s *Simulation) Run(ctx context.Context, maxTicks int) error {
	for i := 0; maxTicks <= 0 || i < maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Tick()
	}
	return nil
}

// Close releases every mapping and stops the workers. Later calls are no-ops.
func (s *Simulation) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.output.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	s.runner.Close()
	if s.kernel != nil {
		s.kernel.Close()
	}
	s.field.Close()
	s.index.Close()
	s.next.Free()
	s.pool.Close()
}

// VirtualBytes estimates the memory mapped by the pool, double buffer,
// index, field and kernel buffers.
func (s *Simulation) VirtualBytes() int64 {
	total := s.pool.VirtualBytes() + s.next.Bytes() + s.index.Bytes() + s.field.Bytes()
	if s.kernel != nil {
		total += s.kernel.Bytes()
	}
	return total
}

// CurrentTick returns the number of completed ticks.
func (s *Simulation) CurrentTick() uint64 { return s.tick }

// Config returns the simulation's config.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Pool returns the full-fidelity pool. Callers may move agents in or out
// only between ticks.
func (s *Simulation) Pool() *store.Pool { return s.pool }

// Field returns the signal field.
func (s *Simulation) Field() *systems.SignalField { return s.field }

// Economy returns the economy, or nil when disabled.
func (s *Simulation) Economy() *systems.Economy { return s.economy }

// Kernel returns the physics kernel.
func (s *Simulation) Kernel() *systems.Kernel { return s.kernel }

// Runner returns the worker pool shared by every phase.
func (s *Simulation) Runner() workers.Runner { return s.runner }

// Spawner returns the agent placer.
func (s *Simulation) Spawner() *Spawner { return s.spawner }

// Perf returns the phase timer.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Collector returns the windowed stats collector.
func (s *Simulation) Collector() *telemetry.Collector { return s.collector }

// RNG returns the pipeline-goroutine random source.
func (s *Simulation) RNG() *rand.Rand { return s.rng }

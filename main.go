package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/lod"
	"github.com/pthm-cable/swarm/sim"
	"github.com/pthm-cable/swarm/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = disabled)")
	heavyLatency := flag.Duration("heavy-latency", 0, "Hand promoted agents back after this delay (0 = never)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	var metrics *telemetry.Metrics
	if *metricsAddr != "" {
		metrics = telemetry.NewMetrics()
	}

	sc, err := lod.New(cfg, sim.Options{
		Seed:      rngSeed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
		Metrics:   metrics,
	})
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}
	defer sc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting simulation",
		"seed", rngSeed,
		"max_ticks", *maxTicks,
		"agents", sc.Agents(),
	)

	g, ctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(ctx)

	g.Go(func() error {
		defer finish()
		err := sc.Run(runCtx, *maxTicks)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if metrics != nil {
		srv := &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			slog.Info("serving metrics", "addr", *metricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if *heavyLatency > 0 {
		g.Go(func() error {
			echoHeavy(runCtx, sc, *heavyLatency)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("simulation stopped", "error", err)
		os.Exit(1)
	}

	last := sc.Last()
	slog.Info("simulation finished", "tick", last.Tick, "state", last)
}

// echoHeavy stands in for a heavy runtime: it drains promoted agents and
// returns each one after latency.
func echoHeavy(ctx context.Context, sc *lod.Scheduler, latency time.Duration) {
	type held struct {
		id  uint32
		due time.Time
	}
	var waiting []held

	ticker := time.NewTicker(max(latency/4, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range sc.DrainPromotions() {
				slog.Debug("heavy agent received", "promotion", p)
				waiting = append(waiting, held{id: p.AgentID, due: now.Add(latency)})
			}
			kept := waiting[:0]
			for _, h := range waiting {
				if now.Before(h.due) {
					kept = append(kept, h)
					continue
				}
				sc.Return(h.id)
			}
			waiting = kept
		}
	}
}

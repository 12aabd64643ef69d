// Package main provides CMA-ES calibration of the surprise contagion
// parameters, searching for a swarm where an injected shock neither dies
// out nor sweeps the whole population.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/telemetry"
)

// evalRecord is one row of calibrate_log.csv. Parameter columns follow
// ParamVector order.
type evalRecord struct {
	Eval             int     `csv:"eval"`
	Fitness          float64 `csv:"fitness"`
	Critical         int     `csv:"critical_seeds"`
	Supercritical    int     `csv:"supercritical_seeds"`
	Subcritical      int     `csv:"subcritical_seeds"`
	SurpriseDecay    float64 `csv:"surprise_decay"`
	Contagion        float64 `csv:"contagion"`
	PerceptionRadius float64 `csv:"perception_radius"`
	Jitter           float64 `csv:"jitter"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	ticks := flag.Int("ticks", 30, "Ticks simulated after the shock")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	agents := flag.Int("agents", 0, "Full-fidelity agents per run (0 = use config)")
	worldSize := flag.Float64("world", 0, "Square world edge length (0 = use config)")
	shockRadius := flag.Float64("shock-radius", 50, "Radius of the injected shock")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	// Load base config
	baseCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *agents > 0 {
		baseCfg.Population.Full = *agents
		baseCfg.Population.FullCapacity = 0
	}
	if *worldSize > 0 {
		baseCfg.World.Width = *worldSize
		baseCfg.World.Height = *worldSize
	}
	baseCfg.Economy.Enabled = false
	if err := baseCfg.Finalize(); err != nil {
		log.Fatalf("invalid base config: %v", err)
	}

	params := NewParamVector()

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, *ticks, evalSeeds, baseCfg,
		Shock{Radius: float32(*shockRadius), Intensity: 1})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dim := params.Dim()
	initX := params.Normalize(params.Clamp(params.FromConfig(baseCfg)))

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Seeds already run in parallel
	}

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	headerWritten := false

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			clamped := params.Clamp(params.Denormalize(x))
			fitness, err := evaluator.Evaluate(ctx, clamped)
			if err != nil {
				// Infinite fitness steers CMA-ES away; cancellation ends the run below.
				if ctx.Err() == nil {
					log.Printf("evaluation failed: %v", err)
				}
				return fitness
			}
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			summary := evaluator.LastSummary()
			rec := []evalRecord{{
				Eval:             evalCount,
				Fitness:          fitness,
				Critical:         summary.critical,
				Supercritical:    summary.supercritical,
				Subcritical:      summary.subcritical,
				SurpriseDecay:    clamped[0],
				Contagion:        clamped[1],
				PerceptionRadius: clamped[2],
				Jitter:           clamped[3],
			}}
			var werr error
			if headerWritten {
				werr = gocsv.MarshalWithoutHeaders(&rec, logFile)
			} else {
				werr = gocsv.Marshal(&rec, logFile)
				headerWritten = werr == nil
			}
			if werr != nil {
				log.Printf("failed to write log row: %v", werr)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %d/%d: fitness=%.4f critical=%d/%d (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, fitness, summary.critical, len(evalSeeds), bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	fmt.Printf("Starting CMA-ES calibration with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, agents: %d, ticks per run: %d\n",
		*seeds, baseCfg.Population.Full, *ticks)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("calibration ended: %v", err)
	}
	if bestParams == nil {
		if result == nil {
			log.Fatal("no evaluation completed")
		}
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.4f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, bestParams[i])
	}

	bestCfg := *baseCfg
	params.ApplyToConfig(&bestCfg, bestParams)
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}

	if trace := evaluator.BestTrace(); len(trace) > 0 {
		tracePath := filepath.Join(*outputDir, "best_trace.csv")
		if err := writeTrace(tracePath, trace); err != nil {
			log.Printf("failed to write best trace: %v", err)
		} else {
			fmt.Printf("Best surprise trace saved to: %s\n", tracePath)
		}
	}
}

func writeTrace(path string, trace []telemetry.SurpriseFront) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.Marshal(&trace, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

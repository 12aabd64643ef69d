// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math/bits"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// NumChannels is the number of signal field channels.
const NumChannels = 6

// MaxStableDiffusion is the largest diffusion coefficient for which the
// explicit five-point update stays bounded.
const MaxStableDiffusion = 0.25

// Config holds all simulation configuration parameters.
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Population  PopulationConfig  `yaml:"population"`
	Physics     PhysicsConfig     `yaml:"physics"`
	Index       IndexConfig       `yaml:"index"`
	Field       FieldConfig       `yaml:"field"`
	Economy     EconomyConfig     `yaml:"economy"`
	Pollination PollinationConfig `yaml:"pollination"`
	Tiers       TiersConfig       `yaml:"tiers"`
	Workers     WorkersConfig     `yaml:"workers"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds world bounds and initial placement.
type WorldConfig struct {
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	Spawn      string  `yaml:"spawn"`       // "uniform" or "clustered"
	NoiseScale float64 `yaml:"noise_scale"` // Feature size for clustered spawn, in world units
}

// PopulationConfig holds per-tier population sizes.
type PopulationConfig struct {
	Full         int     `yaml:"full"`          // Initial full-fidelity agents
	FullCapacity int     `yaml:"full_capacity"` // Column capacity (0 = 2x full)
	Simplified   int     `yaml:"simplified"`
	Dormant      int     `yaml:"dormant"`
	ScoutFrac    float64 `yaml:"scout_frac"` // Fraction of agents spawned as scouts
}

// PhysicsConfig holds kernel weights and constants.
type PhysicsConfig struct {
	PerceptionRadius float64 `yaml:"perception_radius"`
	MaxSpeed         float64 `yaml:"max_speed"`
	Momentum         float64 `yaml:"momentum"`
	Cohesion         float64 `yaml:"cohesion"`
	Separation       float64 `yaml:"separation"`
	TrailWeight      float64 `yaml:"trail_weight"`
	DangerWeight     float64 `yaml:"danger_weight"`
	Jitter           float64 `yaml:"jitter"`
	SurpriseDecay    float64 `yaml:"surprise_decay"` // Per-tick retention of own surprise
	Contagion        float64 `yaml:"contagion"`      // Fraction of neighbour max surprise adopted
	HealthDecay      float64 `yaml:"health_decay"`   // Per-tick health multiplier
	MaxNeighbors     int     `yaml:"max_neighbors"`  // Opt-in cap on neighbours per agent (0 = all in radius)

	DepositStride           int     `yaml:"deposit_stride"` // 1-in-N agents deposit per tick
	TrailDeposit            float64 `yaml:"trail_deposit"`
	DangerDeposit           float64 `yaml:"danger_deposit"`
	NoveltyDeposit          float64 `yaml:"novelty_deposit"`
	DangerSurpriseThreshold float64 `yaml:"danger_surprise_threshold"`
}

// IndexConfig holds spatial hash and memory layout parameters.
type IndexConfig struct {
	CellSize       float64 `yaml:"cell_size"`
	TableSize      int     `yaml:"table_size"`      // Buckets (0 = next pow2 >= 2*capacity)
	ResortInterval int     `yaml:"resort_interval"` // Ticks between locality resorts (0 = never)
}

// FieldConfig holds signal field parameters.
type FieldConfig struct {
	Width     int       `yaml:"width"`
	Height    int       `yaml:"height"`
	Decay     []float64 `yaml:"decay"`
	Diffusion []float64 `yaml:"diffusion"`
}

// EconomyConfig holds the harvest/trade extension parameters.
type EconomyConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Villages          int     `yaml:"villages"` // Generated when no locations are registered
	Cities            int     `yaml:"cities"`
	AmbushZones       int     `yaml:"ambush_zones"`
	InteractRadius    float64 `yaml:"interact_radius"`
	HearingRadius     float64 `yaml:"hearing_radius"`
	HarvestAmount     float64 `yaml:"harvest_amount"`
	SellHeal          float64 `yaml:"sell_heal"`
	PromotionChance   float64 `yaml:"promotion_chance"`
	TradeReward       float64 `yaml:"trade_reward"`
	IdlePenalty       float64 `yaml:"idle_penalty"`
	SalienceThreshold float64 `yaml:"salience_threshold"`
	AmbushDeposit     float64 `yaml:"ambush_deposit"`
}

// PollinationConfig holds the information-sharing policy parameters.
type PollinationConfig struct {
	RecencyWindow   int     `yaml:"recency_window"`
	BroadcastWeight float64 `yaml:"broadcast_weight"`
	Temperature     float64 `yaml:"temperature"`
	Alpha           float64 `yaml:"alpha"`
	Gamma           float64 `yaml:"gamma"`
}

// TiersConfig holds level-of-detail scheduling parameters.
type TiersConfig struct {
	SimplifiedInterval int     `yaml:"simplified_interval"`
	SimplifiedDamping  float64 `yaml:"simplified_damping"`
	WakeMask           uint64  `yaml:"wake_mask"` // Default trigger mask for dormant agents
	GlobalTriggers     uint64  `yaml:"global_triggers"`

	DensityCellSize       float64 `yaml:"density_cell_size"`
	DensityInterval       int     `yaml:"density_interval"`
	DensityThreshold      int     `yaml:"density_threshold"`
	DensitySamplesPerTick int     `yaml:"density_samples_per_tick"`
	MaxPromotionsPerTick  int     `yaml:"max_promotions_per_tick"`

	HotspotThreshold    float64 `yaml:"hotspot_threshold"`
	MaxWakesPerTick     int     `yaml:"max_wakes_per_tick"`
	DemoteInterval      int     `yaml:"demote_interval"`
	CalmSurprise        float64 `yaml:"calm_surprise"`
	CalmDensity         int     `yaml:"calm_density"`
	MaxDemotionsPerPass int     `yaml:"max_demotions_per_pass"`
	MinFull             int     `yaml:"min_full"`
	IdleUpdates         int     `yaml:"idle_updates"` // Simplified updates before dormancy
}

// WorkersConfig holds worker pool parameters.
type WorkersConfig struct {
	Count             int `yaml:"count"` // 0 = GOMAXPROCS
	ParallelThreshold int `yaml:"parallel_threshold"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow     int     `yaml:"stats_window"` // Ticks per stats window
	PerfWindow      int     `yaml:"perf_window"`
	HistorySize     int     `yaml:"history_size"`
	CascadeSurprise float64 `yaml:"cascade_surprise"` // Mean surprise that marks a cascade
	CollapseHealth  float64 `yaml:"collapse_health"`  // Mean health that marks a collapse
	PromotionSurge  float64 `yaml:"promotion_surge"`  // Multiple of rolling promotion rate
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	WorldW32      float32
	WorldH32      float32
	FieldCellSize float32 // World units per field node
	FullCapacity  int
	TableSize     int // Power of two
	Decay         [NumChannels]float32
	Diffusion     [NumChannels]float32
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize validates the config and recomputes derived values.
// Call it again after mutating a loaded config in code.
func (c *Config) Finalize() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.computeDerived()
	return nil
}

// Validate checks the config for values the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.World.Width <= 0 || c.World.Height <= 0 {
		errs = append(errs, fmt.Errorf("world size must be positive, got %vx%v", c.World.Width, c.World.Height))
	}
	if c.World.Spawn != "" && c.World.Spawn != "uniform" && c.World.Spawn != "clustered" {
		errs = append(errs, fmt.Errorf("unknown spawn mode %q", c.World.Spawn))
	}
	if c.Population.Full < 0 || c.Population.Simplified < 0 || c.Population.Dormant < 0 {
		errs = append(errs, errors.New("population counts must be non-negative"))
	}
	if c.Population.FullCapacity != 0 && c.Population.FullCapacity < c.Population.Full {
		errs = append(errs, fmt.Errorf("full_capacity %d below initial full population %d",
			c.Population.FullCapacity, c.Population.Full))
	}
	if c.Index.CellSize <= 0 {
		errs = append(errs, errors.New("index cell_size must be positive"))
	}
	if c.Physics.PerceptionRadius <= 0 || c.Physics.MaxSpeed <= 0 {
		errs = append(errs, errors.New("perception_radius and max_speed must be positive"))
	}
	if c.Field.Width < 2 || c.Field.Height < 2 {
		errs = append(errs, fmt.Errorf("field must be at least 2x2, got %dx%d", c.Field.Width, c.Field.Height))
	}
	if len(c.Field.Decay) != NumChannels || len(c.Field.Diffusion) != NumChannels {
		errs = append(errs, fmt.Errorf("field decay and diffusion need %d entries", NumChannels))
	} else {
		for ch := 0; ch < NumChannels; ch++ {
			if d := c.Field.Decay[ch]; d < 0 || d > 1 {
				errs = append(errs, fmt.Errorf("channel %d decay %v outside [0,1]", ch, d))
			}
			if d := c.Field.Diffusion[ch]; d < 0 || d > MaxStableDiffusion {
				errs = append(errs, fmt.Errorf("channel %d diffusion %v outside [0,%v]", ch, d, MaxStableDiffusion))
			}
		}
	}
	if c.Pollination.Temperature <= 0 {
		errs = append(errs, errors.New("pollination temperature must be positive"))
	}
	if c.Pollination.RecencyWindow < 0 {
		errs = append(errs, errors.New("pollination recency_window must be non-negative"))
	}
	if c.Tiers.SimplifiedInterval < 1 || c.Tiers.DensityInterval < 1 || c.Tiers.DemoteInterval < 1 {
		errs = append(errs, errors.New("tier intervals must be at least 1"))
	}
	if c.Tiers.DensityCellSize <= 0 {
		errs = append(errs, errors.New("tiers density_cell_size must be positive"))
	}
	if c.Physics.DepositStride < 1 {
		errs = append(errs, errors.New("physics deposit_stride must be at least 1"))
	}
	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.WorldW32 = float32(c.World.Width)
	c.Derived.WorldH32 = float32(c.World.Height)
	// Square field cells sized so the grid covers both world axes
	c.Derived.FieldCellSize = float32(max(c.World.Width/float64(c.Field.Width), c.World.Height/float64(c.Field.Height)))

	c.Derived.FullCapacity = c.Population.FullCapacity
	if c.Derived.FullCapacity == 0 {
		c.Derived.FullCapacity = 2 * c.Population.Full
	}
	if c.Derived.FullCapacity < 1 {
		c.Derived.FullCapacity = 1
	}

	c.Derived.TableSize = c.Index.TableSize
	if c.Derived.TableSize <= 0 {
		c.Derived.TableSize = 2 * c.Derived.FullCapacity
	}
	c.Derived.TableSize = NextPow2(c.Derived.TableSize)

	for ch := 0; ch < NumChannels; ch++ {
		c.Derived.Decay[ch] = float32(c.Field.Decay[ch])
		c.Derived.Diffusion[ch] = float32(c.Field.Diffusion[ch])
	}
}

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

package main

import (
	"github.com/pthm-cable/swarm/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the contagion parameters the calibration searches.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "surprise_decay", Path: "physics.surprise_decay", Min: 0.80, Max: 0.99, Default: 0.95},
			{Name: "contagion", Path: "physics.contagion", Min: 0.30, Max: 0.95, Default: 0.8},
			{Name: "perception_radius", Path: "physics.perception_radius", Min: 4, Max: 20, Default: 10},
			{Name: "jitter", Path: "physics.jitter", Min: 0, Max: 0.5, Default: 0.05},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// FromConfig reads the current parameter values out of cfg.
func (pv *ParamVector) FromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Physics.SurpriseDecay,
		cfg.Physics.Contagion,
		cfg.Physics.PerceptionRadius,
		cfg.Physics.Jitter,
	}
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct. The index cell
// size follows the perception radius so a neighbour query stays within the
// adjacent cells.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	// Order must match Specs order
	cfg.Physics.SurpriseDecay = clamped[0]
	cfg.Physics.Contagion = clamped[1]
	cfg.Physics.PerceptionRadius = clamped[2]
	cfg.Physics.Jitter = clamped[3]

	cfg.Index.CellSize = max(cfg.Index.CellSize, cfg.Physics.PerceptionRadius)
}

package main

import (
	"github.com/pthm-cable/voxelcore/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the evolution fitness weights as parameters.
// Defaults are read from cfg so a tuned config can be refined further.
func NewParamVector(cfg *config.Config) *ParamVector {
	f := cfg.Evolution.Fitness
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "w_energy", Path: "evolution.fitness.energy", Min: 0, Max: 1, Default: f.Energy},
			{Name: "w_resonance", Path: "evolution.fitness.resonance", Min: 0, Max: 1, Default: f.Resonance},
			{Name: "w_emotion", Path: "evolution.fitness.emotion", Min: 0, Max: 1, Default: f.Emotion},
			{Name: "w_diversity", Path: "evolution.fitness.diversity", Min: 0, Max: 1, Default: f.Diversity},
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

// ApplyToConfig writes clamped weights into cfg. The weights are rescaled to
// sum to 1 so only their proportions matter; an all-zero vector keeps cfg as is.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	w := pv.Clamp(values)
	var sum float64
	for _, x := range w {
		sum += x
	}
	if sum == 0 {
		return
	}
	cfg.Evolution.Fitness = config.FitnessConfig{
		Energy:    w[0] / sum,
		Resonance: w[1] / sum,
		Emotion:   w[2] / sum,
		Diversity: w[3] / sum,
	}
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	f := cfg.Evolution.Fitness
	return []float64{f.Energy, f.Resonance, f.Emotion, f.Diversity}
}

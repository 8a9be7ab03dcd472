// Package config provides configuration loading and access for the simulation core.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World         WorldConfig         `yaml:"world"`
	Entity        EntityConfig        `yaml:"entity"`
	Physics       PhysicsConfig       `yaml:"physics"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Evolution     EvolutionConfig     `yaml:"evolution"`
	Consciousness ConsciousnessConfig `yaml:"consciousness"`
	ArchGuard     ArchGuardConfig     `yaml:"archguard"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bookmarks     BookmarksConfig     `yaml:"bookmarks"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds world extent and terrain generation parameters.
// Extents are half-sizes: the world spans [-X, X] x [-Y, Y] x [-Z, Z].
type WorldConfig struct {
	ExtentX        int     `yaml:"extent_x"`
	ExtentY        int     `yaml:"extent_y"`
	ExtentZ        int     `yaml:"extent_z"`
	MaxEntities    int     `yaml:"max_entities"`
	Density        float64 `yaml:"density"`         // Fraction of terrain cells that receive a voxel
	BaseHeight     float64 `yaml:"base_height"`     // Terrain floor offset
	HeightVariance float64 `yaml:"height_variance"` // Terrain amplitude above the floor
	NoiseScale     float64 `yaml:"noise_scale"`     // Base noise frequency
	NoiseOctaves   int     `yaml:"noise_octaves"`   // FBM octaves
	Lacunarity     float64 `yaml:"lacunarity"`      // Frequency multiplier per octave
	Gain           float64 `yaml:"gain"`            // Amplitude multiplier per octave
	ReclaimDead    bool    `yaml:"reclaim_dead"`    // Spawn may reuse dead slots when full
}

// EntityConfig holds per-entity dynamics parameters.
type EntityConfig struct {
	EnergyCeiling     float64 `yaml:"energy_ceiling"`
	EnergyBaseline    float64 `yaml:"energy_baseline"`
	EnergyDecay       float64 `yaml:"energy_decay"`  // Relaxation rate toward baseline (1/s)
	EmotionDecay      float64 `yaml:"emotion_decay"` // Relaxation rate toward neutral (1/s)
	ResonanceBaseline float64 `yaml:"resonance_baseline"`
	ResonanceDecay    float64 `yaml:"resonance_decay"`
	ResonanceMax      float64 `yaml:"resonance_max"`
	OscillationDrive  float64 `yaml:"oscillation_drive"` // Energy swing from the positional wave
	TraumaMultiplier  float64 `yaml:"trauma_multiplier"`
	EchoDecay         float64 `yaml:"echo_decay"`
	VelocityDamping   float64 `yaml:"velocity_damping"` // Per-second retained fraction of velocity
	VelocityScale     float64 `yaml:"velocity_scale"`   // World units per second per velocity step
	StarvationSeconds float64 `yaml:"starvation_seconds"`
	IgniteThreshold   float64 `yaml:"ignite_threshold"` // Fraction of ceiling that clears Ignited on decay
	ParallelThreshold int     `yaml:"parallel_threshold"`
}

// PhysicsConfig holds frame timing parameters.
type PhysicsConfig struct {
	DT          float64 `yaml:"dt"`
	FrameBudget float64 `yaml:"frame_budget"` // Seconds of wall time before a slow frame is logged
}

// MetricsConfig holds statistics aggregation parameters.
type MetricsConfig struct {
	EntropyBins int `yaml:"entropy_bins"`
}

// EvolutionConfig holds genetic algorithm parameters.
type EvolutionConfig struct {
	Interval         float64       `yaml:"interval"`
	CrossoverRate    float64       `yaml:"crossover_rate"`
	MutationRate     float64       `yaml:"mutation_rate"`
	MutationSigma    float64       `yaml:"mutation_sigma"`
	MaterialFlipRate float64       `yaml:"material_flip_rate"`
	EnergyCeiling    float64       `yaml:"-"` // Copied from entity.energy_ceiling
	Fitness          FitnessConfig `yaml:"fitness"`
}

// FitnessConfig holds the fitness term weights.
type FitnessConfig struct {
	Energy    float64 `yaml:"energy"`
	Resonance float64 `yaml:"resonance"`
	Emotion   float64 `yaml:"emotion"`
	Diversity float64 `yaml:"diversity"`
}

// ConsciousnessConfig holds decision controller parameters.
type ConsciousnessConfig struct {
	ThinkMin         float64 `yaml:"think_min"`
	ThinkMax         float64 `yaml:"think_max"`
	Jitter           float64 `yaml:"jitter"` // Fractional jitter applied to each interval
	MoodDamping      float64 `yaml:"mood_damping"`
	CuriosityDamping float64 `yaml:"curiosity_damping"`
	EmpathyDamping   float64 `yaml:"empathy_damping"`
	StabilityDamping float64 `yaml:"stability_damping"`
	LowEnergy        float64 `yaml:"low_energy"`
	HighEnergy       float64 `yaml:"high_energy"`
	LowEntropy       float64 `yaml:"low_entropy"`
	HighEntropy      float64 `yaml:"high_entropy"`
	LowCuriosity     float64 `yaml:"low_curiosity"`
	SeedChance       float64 `yaml:"seed_chance"`
	TraumaOnEnergy   float64 `yaml:"trauma_on_energy"`
	TraumaOffEnergy  float64 `yaml:"trauma_off_energy"`
	MaxActions       int     `yaml:"max_actions"`
}

// ArchGuardConfig holds circuit breaker and rhythm detector parameters.
type ArchGuardConfig struct {
	FailureThreshold  int     `yaml:"failure_threshold"`
	Window            float64 `yaml:"window"`
	Cooldown          float64 `yaml:"cooldown"`
	MaxCooldown       float64 `yaml:"max_cooldown"`
	ClampFailureRatio float64 `yaml:"clamp_failure_ratio"`
	HistorySize       int     `yaml:"history_size"`
	RhythmSamples     int     `yaml:"rhythm_samples"`
	RhythmMinHz       float64 `yaml:"rhythm_min_hz"`
	RhythmMaxHz       float64 `yaml:"rhythm_max_hz"`
	ReferenceHz       float64 `yaml:"reference_hz"`
}

// SnapshotConfig holds render snapshot parameters.
type SnapshotConfig struct {
	Scale float64 `yaml:"scale"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`
	BookmarkHistorySize int     `yaml:"bookmark_history_size"`
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	ExportInterval      float64 `yaml:"export_interval"` // Wall seconds between guard exports
}

// BookmarksConfig holds bookmark detection thresholds.
type BookmarksConfig struct {
	EntropyCollapse EntropyCollapseConfig `yaml:"entropy_collapse"`
	EnergySurge     EnergySurgeConfig     `yaml:"energy_surge"`
}

// EntropyCollapseConfig holds entropy collapse detection parameters.
type EntropyCollapseConfig struct {
	DropFraction float64 `yaml:"drop_fraction"` // Fractional drop from the rolling mean
	MinEntropy   float64 `yaml:"min_entropy"`   // Rolling mean must exceed this
}

// EnergySurgeConfig holds energy surge detection parameters.
type EnergySurgeConfig struct {
	Multiplier float64 `yaml:"multiplier"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32          float32 // Physics.DT as float32
	MaxConcepts   int     // Genome capacity
	SnapshotScale float32 // Snapshot.Scale as float32
	WorldVoxelCap int     // Cells in the world box, an upper bound on generated voxels
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
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.computeDerived()

	return cfg, nil
}

// Validate reports the first impossible parameter combination.
func (c *Config) Validate() error {
	var errs []error
	if c.World.MaxEntities < 0 {
		errs = append(errs, fmt.Errorf("world.max_entities must be >= 0, got %d", c.World.MaxEntities))
	}
	if c.World.ExtentX <= 0 || c.World.ExtentY <= 0 || c.World.ExtentZ <= 0 {
		errs = append(errs, errors.New("world extents must be positive"))
	}
	if c.Entity.EnergyCeiling <= 0 {
		errs = append(errs, fmt.Errorf("entity.energy_ceiling must be > 0, got %g", c.Entity.EnergyCeiling))
	}
	if c.Entity.EnergyBaseline < 0 || c.Entity.EnergyBaseline > c.Entity.EnergyCeiling {
		errs = append(errs, fmt.Errorf("entity.energy_baseline %g outside [0, %g]", c.Entity.EnergyBaseline, c.Entity.EnergyCeiling))
	}
	if c.Metrics.EntropyBins < 2 {
		errs = append(errs, fmt.Errorf("metrics.entropy_bins must be >= 2, got %d", c.Metrics.EntropyBins))
	}
	if c.Evolution.Interval <= 0 {
		errs = append(errs, fmt.Errorf("evolution.interval must be > 0, got %g", c.Evolution.Interval))
	}
	if c.Consciousness.ThinkMin <= 0 || c.Consciousness.ThinkMax < c.Consciousness.ThinkMin {
		errs = append(errs, fmt.Errorf("consciousness think range [%g, %g] invalid", c.Consciousness.ThinkMin, c.Consciousness.ThinkMax))
	}
	if c.ArchGuard.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("archguard.failure_threshold must be >= 1, got %d", c.ArchGuard.FailureThreshold))
	}
	if c.ArchGuard.MaxCooldown < c.ArchGuard.Cooldown {
		errs = append(errs, fmt.Errorf("archguard.max_cooldown %g below cooldown %g", c.ArchGuard.MaxCooldown, c.ArchGuard.Cooldown))
	}
	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	c.Derived.MaxConcepts = 10
	c.Derived.SnapshotScale = float32(c.Snapshot.Scale)
	c.Derived.WorldVoxelCap = (2*c.World.ExtentX + 1) * (2*c.World.ExtentY + 1) * (2*c.World.ExtentZ + 1)

	c.Evolution.EnergyCeiling = c.Entity.EnergyCeiling
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

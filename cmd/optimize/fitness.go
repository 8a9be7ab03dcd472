package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/game"
	"github.com/pthm-cable/voxelcore/telemetry"
)

// Warmup windows are excluded from scoring.
const qualityWarmupWindows = 2

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int64
	seeds      []int64
	baseConfig *config.Config
	logger     *slog.Logger

	mu          sync.Mutex
	lastEnergy  float64
	lastEntropy float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Last returns the mean normalized energy and entropy of the most recent evaluation.
func (fe *FitnessEvaluator) Last() (energy, entropy float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastEnergy, fe.lastEntropy
}

// seedResult holds the scores from one seed.
type seedResult struct {
	energy  float64
	entropy float64
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is the negated mean of normalized energy plus entropy across seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))

	var g errgroup.Group
	for i, seed := range fe.seeds {
		g.Go(func() error {
			r, err := fe.runSimulation(x, seed)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fe.logger.Error("evaluation failed", "error", err)
		return math.Inf(1)
	}

	energies := make([]float64, len(results))
	entropies := make([]float64, len(results))
	for i, r := range results {
		energies[i] = r.energy
		entropies[i] = r.entropy
	}
	energy, entropy := stat.Mean(energies, nil), stat.Mean(entropies, nil)

	fe.mu.Lock()
	fe.lastEnergy, fe.lastEntropy = energy, entropy
	fe.mu.Unlock()

	return -(energy + entropy)
}

// runSimulation executes a single headless run and scores its window stats.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) (seedResult, error) {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	var windows []telemetry.WindowStats
	sim, err := game.NewSimulation(cfg, nil, game.Options{
		Seed:   seed,
		Logger: fe.logger,
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return seedResult{}, err
	}
	defer sim.Close()

	for sim.Tick() < fe.maxTicks {
		sim.Step(cfg.Physics.DT)
		if sim.Store().Len() == 0 {
			break
		}
	}

	return scoreWindows(windows, cfg.Entity.EnergyCeiling), nil
}

// copyConfig returns a copy of the base config. Config holds only values, so
// a struct copy is deep.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// scoreWindows averages mean energy as a fraction of the ceiling and the
// normalized entropy over the post-warmup windows. A run that dies out scores
// zero for every window it did not reach.
func scoreWindows(windows []telemetry.WindowStats, ceiling float64) seedResult {
	if len(windows) <= qualityWarmupWindows || ceiling <= 0 {
		return seedResult{}
	}
	valid := windows[qualityWarmupWindows:]

	energy := make([]float64, len(valid))
	entropy := make([]float64, len(valid))
	for i, w := range valid {
		if w.Live == 0 {
			continue
		}
		energy[i] = clamp01(w.EnergyMean / ceiling)
		entropy[i] = clamp01(w.Entropy)
	}
	return seedResult{
		energy:  stat.Mean(energy, nil),
		entropy: stat.Mean(entropy, nil),
	}
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

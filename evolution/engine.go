// Package evolution runs the genetic algorithm over the weaker half of the voxel population.
package evolution

import (
	"log/slog"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
)

// Population is the store surface the engine reads and writes.
type Population interface {
	LiveIDs() []uint32
	Genotype(id uint32) (components.Genotype, bool)
	SetGenotype(id uint32, g components.Genotype) error
}

// StepResult summarizes one evolution step.
type StepResult struct {
	Generation  int
	Evaluated   int // Live voxels scored
	Targeted    int // Voxels in the lower-fitness half
	Offspring   int // Weaker parents replaced
	MeanFitness float64
	BestFitness float64
}

// LogValue implements slog.LogValuer for structured logging.
func (r StepResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", r.Generation),
		slog.Int("evaluated", r.Evaluated),
		slog.Int("targeted", r.Targeted),
		slog.Int("offspring", r.Offspring),
		slog.Float64("mean_fitness", r.MeanFitness),
		slog.Float64("best_fitness", r.BestFitness),
	)
}

type candidate struct {
	id      uint32
	fitness float64
	geno    components.Genotype
}

// Engine holds the GA parameters, its seeded RNG and the cadence accumulator.
// Two engines built with the same seed make identical choices on identical input.
type Engine struct {
	cfg        config.EvolutionConfig
	rng        *rand.Rand
	generation int
	elapsed    float64

	scratch    []float64
	candidates []candidate
	weights    []float64
}

// New creates an engine seeded with seed.
func New(cfg config.EvolutionConfig, seed int64) *Engine {
	return &Engine{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		scratch: make([]float64, 0, components.NumPerceptionChannels),
	}
}

// Generation returns the number of completed steps.
func (e *Engine) Generation() int { return e.generation }

// Advance accumulates dt simulated seconds and reports whether a step is due.
// At most one step is reported per call; the remainder carries over.
func (e *Engine) Advance(dt float64) bool {
	e.elapsed += dt
	if e.cfg.Interval <= 0 || e.elapsed < e.cfg.Interval {
		return false
	}
	e.elapsed -= e.cfg.Interval
	if e.elapsed > e.cfg.Interval {
		e.elapsed = 0
	}
	return true
}

// Step scores every live voxel, then breeds within the lower-fitness half.
// Each pairing writes one offspring over the weaker parent, so the population
// size never changes. Voxels in the upper half are never touched.
func (e *Engine) Step(pop Population) StepResult {
	e.generation++
	res := StepResult{Generation: e.generation}

	// 1. Score
	e.candidates = e.candidates[:0]
	for _, id := range pop.LiveIDs() {
		g, ok := pop.Genotype(id)
		if !ok {
			continue
		}
		e.candidates = append(e.candidates, candidate{id: id, fitness: e.fitness(&g), geno: g})
	}
	res.Evaluated = len(e.candidates)
	if res.Evaluated == 0 {
		return res
	}
	e.summarize(&res)

	// 2. Lower half by (fitness, id)
	sort.Slice(e.candidates, func(i, j int) bool {
		a, b := e.candidates[i], e.candidates[j]
		if a.fitness != b.fitness {
			return a.fitness < b.fitness
		}
		return a.id < b.id
	})
	target := e.candidates[:res.Evaluated/2]
	res.Targeted = len(target)
	if len(target) < 2 {
		return res
	}

	// 3. Breed
	pairs := len(target) / 2
	for p := 0; p < pairs; p++ {
		i, j := e.selectPair(target)
		a, b := &target[i], &target[j]
		primary, weaker := a, b
		if b.fitness > a.fitness || (b.fitness == a.fitness && b.id < a.id) {
			primary, weaker = b, a
		}

		child := Crossover(e.rng, primary.geno, weaker.geno, e.cfg.CrossoverRate)
		Mutate(e.rng, &child, e.cfg.MutationRate, e.cfg.MutationSigma, e.cfg.MaterialFlipRate)
		if err := pop.SetGenotype(weaker.id, child); err != nil {
			continue
		}

		// Re-read so the refreshed fitness reflects any clamping on write
		if g, ok := pop.Genotype(weaker.id); ok {
			weaker.geno = g
			weaker.fitness = e.fitness(&g)
		}
		res.Offspring++
	}
	return res
}

func (e *Engine) fitness(g *components.Genotype) float64 {
	return Fitness(e.cfg.Fitness, e.cfg.EnergyCeiling, g, e.scratch[:0])
}

func (e *Engine) summarize(res *StepResult) {
	e.weights = e.weights[:0]
	for _, c := range e.candidates {
		e.weights = append(e.weights, c.fitness)
	}
	res.MeanFitness = floats.Sum(e.weights) / float64(len(e.weights))
	res.BestFitness = floats.Max(e.weights)
}

// selectPair draws two distinct indices by roulette over fitness shifted to be positive.
func (e *Engine) selectPair(target []candidate) (int, int) {
	lo := target[0].fitness
	for _, c := range target {
		lo = min(lo, c.fitness)
	}
	e.weights = e.weights[:0]
	for _, c := range target {
		e.weights = append(e.weights, c.fitness-lo+1e-6)
	}
	total := floats.Sum(e.weights)

	i := e.spin(total, -1)
	j := e.spin(total-e.weights[i], i)
	return i, j
}

// spin picks an index with probability proportional to its weight, skipping skip.
func (e *Engine) spin(total float64, skip int) int {
	r := e.rng.Float64() * total
	last := -1
	for k, w := range e.weights {
		if k == skip {
			continue
		}
		last = k
		if r < w {
			return k
		}
		r -= w
	}
	return last
}

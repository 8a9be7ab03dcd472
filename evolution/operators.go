package evolution

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/systems"
)

// Gene bounds
const (
	maxMaterial   = 3   // Highest generated material id
	velocityRange = 127 // Sigma is a fraction of this
	tempRange     = 64
)

// Crossover builds one offspring from two parents. The fitter parent is primary:
// with probability rate each continuous gene is interpolated with its own uniform
// weight, each discrete gene is taken from either parent, and the genome is spliced
// at one point. Otherwise the offspring is a copy of the primary parent.
func Crossover(rng *rand.Rand, primary, secondary components.Genotype, rate float64) components.Genotype {
	if rng.Float64() >= rate {
		return primary
	}

	child := primary
	mix := func(a, b float64) float64 { return systems.Lerp(a, b, rng.Float64()) }

	// 1. Continuous genes
	child.Vitals.Energy = mix(primary.Vitals.Energy, secondary.Vitals.Energy)
	child.Vitals.Resonance = mix(primary.Vitals.Resonance, secondary.Vitals.Resonance)
	child.Vitals.Emotion.Valence = mix(primary.Vitals.Emotion.Valence, secondary.Vitals.Emotion.Valence)
	child.Vitals.Emotion.Arousal = mix(primary.Vitals.Emotion.Arousal, secondary.Vitals.Emotion.Arousal)
	child.Vitals.Emotion.Dominance = mix(primary.Vitals.Emotion.Dominance, secondary.Vitals.Emotion.Dominance)
	for i := range child.Perception.Channels {
		v := mix(float64(primary.Perception.Channel(i)), float64(secondary.Perception.Channel(i)))
		child.Perception.SetChannel(i, float32(v))
	}

	// 2. Discrete genes
	for i := range child.Physics.Vel {
		if rng.Intn(2) == 1 {
			child.Physics.Vel[i] = secondary.Physics.Vel[i]
		}
	}
	if rng.Intn(2) == 1 {
		child.Physics.Temperature = secondary.Physics.Temperature
	}
	if rng.Intn(2) == 1 {
		child.Physics.SetMaterial(secondary.Physics.Material())
	}
	if rng.Intn(2) == 1 {
		child.Physics.SetDensity(secondary.Physics.Density())
	}

	// 3. Genome splice: primary prefix, secondary suffix
	child.Genome = splice(rng, &primary.Genome, &secondary.Genome)
	return child
}

func splice(rng *rand.Rand, a, b *components.Genome) components.Genome {
	if a.Len() == 0 && b.Len() == 0 {
		return components.Genome{}
	}
	cut := rng.Intn(a.Len() + 1)
	list := make([]components.Concept, 0, components.MaxConcepts)
	for i := 0; i < cut; i++ {
		list = append(list, a.At(i))
	}
	for i := min(cut, b.Len()); i < b.Len(); i++ {
		list = append(list, b.At(i))
	}
	// FromList keeps the newest MaxConcepts
	return components.FromList(list)
}

// Mutate perturbs perception and physics genes in place. Every result stays in range.
func Mutate(rng *rand.Rand, g *components.Genotype, rate, sigma, flipRate float64) {
	for i := range g.Perception.Channels {
		if rng.Float64() < rate {
			v := float64(g.Perception.Channel(i)) + rng.NormFloat64()*sigma
			g.Perception.SetChannel(i, float32(systems.ClampF64(v, 0, 1)))
		}
	}
	for i := range g.Physics.Vel {
		if rng.Float64() < rate {
			v := float64(g.Physics.Vel[i]) + rng.NormFloat64()*sigma*velocityRange
			g.Physics.Vel[i] = systems.ClampInt8(v)
		}
	}
	if rng.Float64() < rate {
		v := float64(g.Physics.Temperature) + rng.NormFloat64()*sigma*tempRange
		g.Physics.Temperature = systems.ClampInt8(v)
	}
	if rng.Float64() < rate {
		d := int(g.Physics.Density()) + int(math.Round(rng.NormFloat64()*sigma*15))
		g.Physics.SetDensity(uint8(max(0, min(15, d))))
	}
	if rng.Float64() < flipRate {
		g.Physics.SetMaterial(uint8(rng.Intn(maxMaterial + 1)))
	}
}

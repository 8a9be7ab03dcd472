package evolution

import (
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
)

// EmotionSummary folds an emotion into [0, 1]: (valence + dominance + 2) / 4.
func EmotionSummary(e components.Emotion) float64 {
	return (e.Valence + e.Dominance + 2) / 4
}

// PerceptionVariance returns the population variance of the perception channels.
func PerceptionVariance(p *components.Perception, scratch []float64) float64 {
	return stat.PopVariance(p.Values(scratch), nil)
}

// Fitness scores a genotype as a weighted sum of normalized energy, resonance,
// emotion summary and perceptual diversity.
func Fitness(w config.FitnessConfig, ceiling float64, g *components.Genotype, scratch []float64) float64 {
	var energy float64
	if ceiling > 0 {
		energy = g.Vitals.Energy / ceiling
	}
	return w.Energy*energy +
		w.Resonance*g.Vitals.Resonance +
		w.Emotion*EmotionSummary(g.Vitals.Emotion) +
		w.Diversity*PerceptionVariance(&g.Perception, scratch)
}

// Package metrics computes population statistics over the voxel store.
package metrics

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/world"
)

// Source is the read side of the voxel store.
type Source interface {
	Scan(fn func(world.View))
	TickCount() int64
	Time() float64
	Trauma() bool
}

// Spot identifies one voxel by id, position and energy.
type Spot struct {
	ID     uint32
	Pos    components.Position
	Energy float64
}

// WorldMetrics is a statistical snapshot valid for the frame it was computed in.
type WorldMetrics struct {
	Tick    int64
	Time    float64
	Count   int
	Ceiling float64

	MeanEnergy float64
	MinEnergy  float64
	MaxEnergy  float64
	Entropy    float64 // Normalized to [0, 1]

	Centroid components.Position // Energy weighted
	HotSpot  Spot
	ColdSpot Spot

	MeanValence float64
	MeanArousal float64
	Trauma      bool
}

// NormalizedEnergy returns mean energy as a fraction of the hottest voxel's energy.
// A population near its own peak reads close to 1 regardless of the ceiling.
func (m WorldMetrics) NormalizedEnergy() float64 {
	if m.MaxEnergy <= 0 {
		return 0
	}
	return math.Min(m.MeanEnergy/m.MaxEnergy, 1)
}

// Finite reports whether every scalar is a finite number.
func (m WorldMetrics) Finite() bool {
	for _, v := range []float64{m.MeanEnergy, m.MinEnergy, m.MaxEnergy, m.Entropy, m.MeanValence, m.MeanArousal} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LogValue implements slog.LogValuer for structured logging.
func (m WorldMetrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("tick", m.Tick),
		slog.Int("count", m.Count),
		slog.Float64("mean_energy", m.MeanEnergy),
		slog.Float64("max_energy", m.MaxEnergy),
		slog.Float64("entropy", m.Entropy),
		slog.Uint64("hot", uint64(m.HotSpot.ID)),
		slog.Uint64("cold", uint64(m.ColdSpot.ID)),
		slog.Bool("trauma", m.Trauma),
	)
}

// Aggregator turns a store scan into WorldMetrics. It keeps scratch buffers
// between calls, so one Aggregator must not be used from two goroutines at once.
type Aggregator struct {
	bins    int
	ceiling float64

	counts   []float64
	energies []float64
	xs       []float64
	ys       []float64
	zs       []float64
	spots    []Spot
}

// NewAggregator creates an aggregator that buckets energy over [0, ceiling].
func NewAggregator(cfg config.MetricsConfig, ceiling float64) *Aggregator {
	bins := cfg.EntropyBins
	if bins < 2 {
		bins = 2
	}
	return &Aggregator{
		bins:    bins,
		ceiling: ceiling,
		counts:  make([]float64, bins),
	}
}

// Bins returns the number of entropy buckets.
func (a *Aggregator) Bins() int { return a.bins }

// Compute scans src once and returns its statistics. It never mutates src and
// returns identical results for unchanged input.
func (a *Aggregator) Compute(src Source) WorldMetrics {
	m := WorldMetrics{
		Tick:    src.TickCount(),
		Time:    src.Time(),
		Ceiling: a.ceiling,
		Trauma:  src.Trauma(),
	}

	// 1. Gather columns in id order
	a.energies = a.energies[:0]
	a.xs, a.ys, a.zs = a.xs[:0], a.ys[:0], a.zs[:0]
	a.spots = a.spots[:0]
	var valence, arousal float64
	src.Scan(func(v world.View) {
		a.energies = append(a.energies, v.Energy)
		a.xs = append(a.xs, float64(v.Pos.X))
		a.ys = append(a.ys, float64(v.Pos.Y))
		a.zs = append(a.zs, float64(v.Pos.Z))
		a.spots = append(a.spots, Spot{ID: v.ID, Pos: v.Pos, Energy: v.Energy})
		valence += v.Emotion.Valence
		arousal += v.Emotion.Arousal
	})

	n := len(a.energies)
	m.Count = n
	if n == 0 {
		return m
	}

	// 2. Moments and extremes. MinIdx/MaxIdx return the first index, the lowest id.
	m.MeanEnergy = stat.Mean(a.energies, nil)
	hot, cold := floats.MaxIdx(a.energies), floats.MinIdx(a.energies)
	m.HotSpot, m.ColdSpot = a.spots[hot], a.spots[cold]
	m.MaxEnergy, m.MinEnergy = m.HotSpot.Energy, m.ColdSpot.Energy
	m.MeanValence = valence / float64(n)
	m.MeanArousal = arousal / float64(n)

	// 3. Energy weighted centroid, unweighted when the population is drained
	weights := a.energies
	if floats.Sum(a.energies) <= 0 {
		weights = nil
	}
	m.Centroid = components.Position{
		X: float32(stat.Mean(a.xs, weights)),
		Y: float32(stat.Mean(a.ys, weights)),
		Z: float32(stat.Mean(a.zs, weights)),
	}

	// 4. Entropy over fixed bins
	m.Entropy = a.entropy()
	return m
}

// entropy buckets the gathered energies and returns Shannon entropy divided by ln(bins).
func (a *Aggregator) entropy() float64 {
	for i := range a.counts {
		a.counts[i] = 0
	}
	for _, e := range a.energies {
		a.counts[a.bin(e)]++
	}
	floats.Scale(1/float64(len(a.energies)), a.counts)
	h := stat.Entropy(a.counts) / math.Log(float64(a.bins))
	if h <= 0 {
		return 0
	}
	return math.Min(h, 1)
}

// bin maps energy to its bucket index. Energy at the ceiling lands in the last bucket.
func (a *Aggregator) bin(e float64) int {
	if a.ceiling <= 0 || e <= 0 || math.IsNaN(e) {
		return 0
	}
	i := int(e * float64(a.bins) / a.ceiling)
	if i >= a.bins {
		return a.bins - 1
	}
	return i
}

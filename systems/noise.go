package systems

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// FBM layers octaves of OpenSimplex noise into fractal Brownian motion.
type FBM struct {
	noise      opensimplex.Noise
	scale      float64
	octaves    int
	lacunarity float64
	gain       float64
}

// NewFBM creates a fractal noise generator.
func NewFBM(seed int64, scale float64, octaves int, lacunarity, gain float64) *FBM {
	if octaves < 1 {
		octaves = 1
	}
	return &FBM{
		noise:      opensimplex.New(seed),
		scale:      scale,
		octaves:    octaves,
		lacunarity: lacunarity,
		gain:       gain,
	}
}

// Eval2 returns layered noise in roughly [-1, 1].
func (f *FBM) Eval2(x, y float64) float64 {
	var sum, norm float64
	amp := 1.0
	freq := f.scale
	for i := 0; i < f.octaves; i++ {
		sum += amp * f.noise.Eval2(x*freq, y*freq)
		norm += amp
		amp *= f.gain
		freq *= f.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// Eval3 returns layered noise in roughly [-1, 1].
func (f *FBM) Eval3(x, y, z float64) float64 {
	var sum, norm float64
	amp := 1.0
	freq := f.scale
	for i := 0; i < f.octaves; i++ {
		sum += amp * f.noise.Eval3(x*freq, y*freq, z*freq)
		norm += amp
		amp *= f.gain
		freq *= f.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// Unit3 maps Eval3 into [0, 1].
func (f *FBM) Unit3(x, y, z float64) float64 {
	return clamp01f64((f.Eval3(x, y, z) + 1) * 0.5)
}

// Ridge folds the noise into sharp crests: 1 - |n|.
func (f *FBM) Ridge(x, y float64) float64 {
	return 1 - math.Abs(f.Eval2(x, y))
}

// ColumnHeight returns the terrain surface height for a column.
// Blends smooth FBM with ridges so the surface has both hills and crests.
func (f *FBM) ColumnHeight(x, z, base, variance float64) float64 {
	smooth := (f.Eval2(x, z) + 1) * 0.5
	ridge := f.Ridge(x+101.3, z-47.9)
	return base + variance*(0.7*smooth+0.3*ridge*ridge)
}

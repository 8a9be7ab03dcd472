package systems

import (
	"math"

	"github.com/pthm-cable/voxelcore/components"
)

// RGB is a linear color with channels in [0, 1].
type RGB struct {
	R, G, B float32
}

// EnergyColor maps energy onto a warm-to-cold ramp.
// Full energy is bright yellow-green, empty is deep blue.
func EnergyColor(energy, ceiling float64) RGB {
	n := 0.0
	if ceiling > 0 {
		n = clamp01f64(energy / ceiling)
	}
	hue := n * 0.8
	return RGB{
		R: float32(math.Min(hue*1.2, 1)),
		G: float32(math.Pow(n, 0.8)),
		B: float32(math.Pow(1-n, 1.2)),
	}
}

// VoxelColor applies status tints on top of the energy ramp.
func VoxelColor(energy, ceiling float64, flags components.Flags) RGB {
	c := EnergyColor(energy, ceiling)
	if flags.Has(components.FlagTraumatized) {
		c.R = float32(math.Min(float64(c.R)+0.25, 1))
		c.G *= 0.7
	}
	if flags.Has(components.FlagIgnited) {
		c.R = float32(math.Min(float64(c.R)*1.2+0.1, 1))
		c.G = float32(math.Min(float64(c.G)*1.2+0.1, 1))
		c.B = float32(math.Min(float64(c.B)*1.2+0.1, 1))
	}
	return c
}

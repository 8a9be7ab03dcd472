package world

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/systems"
)

// Material ids, stored in the high nibble of Physics.Packed.
const (
	MaterialStone uint8 = iota
	MaterialSoil
	MaterialMoss
	MaterialCrystal
)

// Generate discards the current population and fills bounds with terrain columns.
// Placement is a pure function of seed, bounds, density and the world config.
// Initial energy, resonance and perception are sampled from smooth noise of the
// position, so neighbouring voxels start with correlated state. Placement stops
// silently when capacity is reached. Returns the number of voxels placed.
func (s *Store) Generate(seed int64, bounds systems.Bounds, density float64) (int, error) {
	if s.capacity == 0 {
		return 0, ErrZeroCapacity
	}
	if bounds.Empty() {
		return 0, fmt.Errorf("generate: empty bounds %+v", bounds)
	}
	density = systems.ClampF64(density, 0, 1)

	s.reset(bounds)

	rng := rand.New(rand.NewSource(seed))
	height := systems.NewFBM(seed, s.cfg.NoiseScale, s.cfg.NoiseOctaves, s.cfg.Lacunarity, s.cfg.Gain)
	field := systems.NewFBM(seed^0x5eed, s.cfg.NoiseScale*1.7, 3, 2, 0.5)

	minX, maxX := int(math.Ceil(float64(bounds.Min.X))), int(math.Floor(float64(bounds.Max.X)))
	minY, maxY := int(math.Ceil(float64(bounds.Min.Y))), int(math.Floor(float64(bounds.Max.Y)))
	minZ, maxZ := int(math.Ceil(float64(bounds.Min.Z))), int(math.Floor(float64(bounds.Max.Z)))
	span := float64(maxY - minY + 1)

fill:
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			h := height.ColumnHeight(float64(x), float64(z), s.cfg.BaseHeight, s.cfg.HeightVariance)
			top := min(int(math.Floor(h)), maxY)

			for y := minY; y <= top; y++ {
				if rng.Float64() >= density {
					continue
				}
				if len(s.slots) >= s.capacity {
					break fill
				}

				pos := components.Position{X: float32(x), Y: float32(y), Z: float32(z)}
				vit, perc, phys := s.sampleVoxel(field, pos, top-y, float64(y-minY)/span)
				id := s.insert(pos, vit, perc, phys, components.Genome{})
				if y == minY {
					s.metaMap.Get(s.slots[id]).Flags.Set(components.FlagCore)
				}
			}
		}
	}

	return len(s.slots), nil
}

// sampleVoxel derives initial state from the noise field.
// depth is the distance below the column surface; rel is the height fraction in [0, 1).
func (s *Store) sampleVoxel(field *systems.FBM, pos components.Position, depth int, rel float64) (components.Vitals, components.Perception, components.Physics) {
	x, y, z := float64(pos.X), float64(pos.Y), float64(pos.Z)

	vit := components.Vitals{
		Energy:    s.params.Baseline + field.Unit3(x, y, z)*s.params.Ceiling*0.25,
		Resonance: 0.2 + 0.7*field.Unit3(x+31, y, z-17),
		Emotion: components.Emotion{
			Valence: field.Eval3(x-50, y, z) * 0.3,
		},
	}
	vit.ClampEnergy(s.params.Ceiling)
	vit.Emotion.Clamp()

	var perc components.Perception
	for c := 0; c < components.NumPerceptionChannels; c++ {
		fc := float64(c)
		perc.SetChannel(c, float32(field.Unit3(x+fc*13.1, y-fc*7.3, z+fc*3.7)))
	}

	var phys components.Physics
	switch {
	case field.Unit3(x*2, y*2, z*2) > 0.85:
		phys.SetMaterial(MaterialCrystal)
	case depth == 0:
		phys.SetMaterial(MaterialMoss)
	case depth < 3:
		phys.SetMaterial(MaterialSoil)
	default:
		phys.SetMaterial(MaterialStone)
	}
	phys.SetDensity(uint8(field.Unit3(x-9, y+9, z) * 15))
	phys.Temperature = systems.ClampInt8((1-rel)*40 - 10)

	return vit, perc, phys
}

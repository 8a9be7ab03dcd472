package systems

import "github.com/pthm-cable/voxelcore/components"

// Bounds is an axis-aligned box in world units.
type Bounds struct {
	Min, Max components.Position
}

// BoundsFromExtent builds a box spanning [-x, x] x [-y, y] x [-z, z].
func BoundsFromExtent(x, y, z int) Bounds {
	return Bounds{
		Min: components.Position{X: float32(-x), Y: float32(-y), Z: float32(-z)},
		Max: components.Position{X: float32(x), Y: float32(y), Z: float32(z)},
	}
}

// Contains reports whether p lies inside the box (inclusive).
func (b Bounds) Contains(p components.Position) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Clamp pulls p onto the box. Returns true if p was outside.
func (b Bounds) Clamp(p *components.Position) bool {
	var moved bool
	p.X, moved = clampAxis32(p.X, b.Min.X, b.Max.X, moved)
	p.Y, moved = clampAxis32(p.Y, b.Min.Y, b.Max.Y, moved)
	p.Z, moved = clampAxis32(p.Z, b.Min.Z, b.Max.Z, moved)
	return moved
}

// Empty reports whether the box is inverted on some axis.
func (b Bounds) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

func clampAxis32(v, lo, hi float32, moved bool) (float32, bool) {
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, moved
}

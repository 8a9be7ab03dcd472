// Package components defines ECS components for the voxel simulation.
package components

import (
	"math"

	"github.com/x448/float16"
)

// NumPerceptionChannels is the fixed width of an entity's perception vector.
const NumPerceptionChannels = 10

// Position represents a voxel's world position.
type Position struct {
	X, Y, Z float32
}

// DistanceSq returns the squared distance to another position.
func (p Position) DistanceSq(o Position) float32 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Emotion is a valence/arousal/dominance triple, each axis in [-1, 1].
type Emotion struct {
	Valence   float64
	Arousal   float64
	Dominance float64
}

// Clamp limits every axis to [-1, 1]. Returns true if any axis was out of range.
func (e *Emotion) Clamp() bool {
	var clamped bool
	e.Valence, clamped = clampAxis(e.Valence, clamped)
	e.Arousal, clamped = clampAxis(e.Arousal, clamped)
	e.Dominance, clamped = clampAxis(e.Dominance, clamped)
	return clamped
}

func clampAxis(v float64, clamped bool) (float64, bool) {
	if math.IsNaN(v) {
		return 0, true
	}
	if v < -1 {
		return -1, true
	}
	if v > 1 {
		return 1, true
	}
	return v, clamped
}

// Vitals holds the 64-bit scalars that drive behavior.
type Vitals struct {
	Energy    float64 // [0, ceiling]
	Emotion   Emotion
	Resonance float64 // [0, resonance max]
}

// ClampEnergy limits energy to [0, ceiling]. Returns true if it was out of range.
func (v *Vitals) ClampEnergy(ceiling float64) bool {
	switch {
	case math.IsNaN(v.Energy):
		v.Energy = 0
		return true
	case v.Energy < 0:
		v.Energy = 0
		return true
	case v.Energy > ceiling:
		v.Energy = ceiling
		return true
	}
	return false
}

// Perception is a reduced-precision sensory vector, each channel in [0, 1].
type Perception struct {
	Channels [NumPerceptionChannels]float16.Float16
}

// Channel returns channel i as float32.
func (p *Perception) Channel(i int) float32 {
	return p.Channels[i].Float32()
}

// SetChannel stores v into channel i, clamped to [0, 1].
func (p *Perception) SetChannel(i int, v float32) {
	if v < 0 || v != v {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.Channels[i] = float16.Fromfloat32(v)
}

// Values expands the vector into dst, which must hold NumPerceptionChannels values.
func (p *Perception) Values(dst []float64) []float64 {
	dst = dst[:0]
	for _, c := range p.Channels {
		dst = append(dst, float64(c.Float32()))
	}
	return dst
}

// Physics holds byte-sized motion and material attributes.
// Packed layout: high nibble = material id, low nibble = density.
type Physics struct {
	Vel         [3]int8
	Temperature int8
	Packed      uint8
}

// Material returns the material id (0-15).
func (p Physics) Material() uint8 {
	return p.Packed >> 4
}

// SetMaterial stores the material id, keeping the low 4 bits.
func (p *Physics) SetMaterial(m uint8) {
	p.Packed = (m&0x0f)<<4 | p.Packed&0x0f
}

// Density returns the density level (0-15).
func (p Physics) Density() uint8 {
	return p.Packed & 0x0f
}

// SetDensity stores the density level, keeping the low 4 bits.
func (p *Physics) SetDensity(d uint8) {
	p.Packed = p.Packed&0xf0 | d&0x0f
}

// Moving reports whether any velocity component is non-zero.
func (p Physics) Moving() bool {
	return p.Vel[0] != 0 || p.Vel[1] != 0 || p.Vel[2] != 0
}

// Echo links a voxel to the last stimulus that touched it.
type Echo struct {
	Source uint32
	Value  float16.Float16
}

// Strength returns the decayed echo value.
func (e Echo) Strength() float32 {
	return e.Value.Float32()
}

// Meta holds identity, bookkeeping and status flags.
type Meta struct {
	ID       uint32
	BornTick int64
	Lifetime float64 // Seconds alive
	Starved  float64 // Seconds spent at zero energy
	Flags    Flags
}

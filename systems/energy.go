package systems

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/x448/float16"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
)

// echoFloor is the strength below which an echo is forgotten.
const echoFloor = 1e-3

// VitalsParams caches the entity config for the per-voxel hot path.
type VitalsParams struct {
	Ceiling           float64
	Baseline          float64
	EnergyDecay       float64
	EmotionDecay      float64
	ResonanceBaseline float64
	ResonanceDecay    float64
	ResonanceMax      float64
	Drive             float64
	TraumaMultiplier  float64
	EchoDecay         float64
	VelocityDamping   float64
	VelocityScale     float64
	StarvationSeconds float64
	IgniteLevel       float64
}

// NewVitalsParams derives hot-path parameters from config.
func NewVitalsParams(cfg config.EntityConfig) VitalsParams {
	return VitalsParams{
		Ceiling:           cfg.EnergyCeiling,
		Baseline:          cfg.EnergyBaseline,
		EnergyDecay:       cfg.EnergyDecay,
		EmotionDecay:      cfg.EmotionDecay,
		ResonanceBaseline: cfg.ResonanceBaseline,
		ResonanceDecay:    cfg.ResonanceDecay,
		ResonanceMax:      cfg.ResonanceMax,
		Drive:             cfg.OscillationDrive,
		TraumaMultiplier:  cfg.TraumaMultiplier,
		EchoDecay:         cfg.EchoDecay,
		VelocityDamping:   cfg.VelocityDamping,
		VelocityScale:     cfg.VelocityScale,
		StarvationSeconds: cfg.StarvationSeconds,
		IgniteLevel:       cfg.IgniteThreshold * cfg.EnergyCeiling,
	}
}

// Voxel groups the component pointers one update touches.
type Voxel struct {
	Pos    *components.Position
	Vitals *components.Vitals
	Phys   *components.Physics
	Echo   *components.Echo
	Meta   *components.Meta
}

// Oscillation is the slow positional wave that drives energy and valence.
func Oscillation(pos components.Position, t float64) float64 {
	return math.Sin(float64(pos.X)*0.09 + float64(pos.Z)*0.04 + t*0.7)
}

// UpdateVoxel advances one live voxel by dt and clamps it to its invariant ranges.
// Returns true if the voxel starved this step.
func UpdateVoxel(p *VitalsParams, v Voxel, bounds Bounds, t, dt float64, trauma bool) bool {
	vit := v.Vitals
	meta := v.Meta

	drive := p.Drive
	if trauma {
		drive *= p.TraumaMultiplier
	}
	osc := Oscillation(*v.Pos, t)

	// 1. Energy relaxes toward baseline, nudged by the wave in proportion to resonance
	vit.Energy = Relax(vit.Energy, p.Baseline, p.EnergyDecay, dt)
	vit.Energy += osc * drive * vit.Resonance * dt
	vit.ClampEnergy(p.Ceiling)
	if meta.Flags.Has(components.FlagIgnited) && vit.Energy < p.IgniteLevel {
		meta.Flags.Clear(components.FlagIgnited)
	}

	// 2. Emotion relaxes toward targets derived from the wave and vitality
	valenceTarget := osc * 0.2
	arousalTarget := math.Tanh(vit.Energy-p.Baseline) * 0.5
	if trauma {
		valenceTarget -= 0.3
		arousalTarget *= p.TraumaMultiplier
	}
	dominanceTarget := vit.Resonance - p.ResonanceBaseline
	vit.Emotion.Valence = Relax(vit.Emotion.Valence, valenceTarget, p.EmotionDecay, dt)
	vit.Emotion.Arousal = Relax(vit.Emotion.Arousal, arousalTarget, p.EmotionDecay, dt)
	vit.Emotion.Dominance = Relax(vit.Emotion.Dominance, dominanceTarget, p.EmotionDecay, dt)
	vit.Emotion.Clamp()

	// 3. Resonance
	vit.Resonance = ClampF64(Relax(vit.Resonance, p.ResonanceBaseline, p.ResonanceDecay, dt), 0, p.ResonanceMax)

	// 4. Integrate and damp velocity
	integrateVelocity(p, v.Pos, v.Phys, bounds, dt)
	meta.Flags.Toggle(components.FlagMoving, v.Phys.Moving())
	meta.Flags.Toggle(components.FlagTraumatized, trauma)

	// 5. Echo fades
	decayEcho(v.Echo, p.EchoDecay, dt)

	// 6. Bookkeeping
	meta.Lifetime += dt
	if vit.Energy <= 0 {
		meta.Starved += dt
	} else {
		meta.Starved = 0
	}
	if p.StarvationSeconds > 0 && meta.Starved >= p.StarvationSeconds {
		meta.Flags.Clear(components.FlagAlive)
		meta.Flags.Set(components.FlagDead)
		return true
	}
	return false
}

func integrateVelocity(p *VitalsParams, pos *components.Position, phys *components.Physics, bounds Bounds, dt float64) {
	if !phys.Moving() {
		return
	}
	step := p.VelocityScale * dt
	pos.X += float32(float64(phys.Vel[0]) * step)
	pos.Y += float32(float64(phys.Vel[1]) * step)
	pos.Z += float32(float64(phys.Vel[2]) * step)

	// Hitting a wall kills the velocity on every axis
	if bounds.Clamp(pos) {
		phys.Vel = [3]int8{}
		return
	}

	keep := math.Pow(p.VelocityDamping, dt)
	for i := range phys.Vel {
		phys.Vel[i] = ditherRound(float64(phys.Vel[i])*keep, *pos, i)
	}
}

// ditherRound rounds x up with probability equal to its fractional part, so
// the expected velocity decays at the configured rate whatever dt is and slow
// voxels still reach zero. The draw hashes the position, keeping runs
// deterministic.
func ditherRound(x float64, pos components.Position, axis int) int8 {
	fl := math.Floor(x)
	var buf [13]byte
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(pos.X))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(pos.Y))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(pos.Z))
	buf[12] = byte(axis)
	u := float64(xxhash.Sum64(buf[:])>>11) / (1 << 53)
	if u < x-fl {
		fl++
	}
	return int8(ClampF64(fl, math.MinInt8, math.MaxInt8))
}

func decayEcho(e *components.Echo, rate, dt float64) {
	s := float64(e.Strength())
	if s == 0 {
		return
	}
	s *= math.Exp(-rate * dt)
	if s < echoFloor {
		*e = components.Echo{}
		return
	}
	e.Value = float16.Fromfloat32(float32(s))
}

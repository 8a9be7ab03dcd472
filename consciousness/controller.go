// Package consciousness turns world metrics into pulses of tagged actions.
package consciousness

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/metrics"
	"github.com/pthm-cable/voxelcore/systems"
)

// stabilityGain converts a mood swing into lost stabilization.
const stabilityGain = 10

// EmpathySink receives the empathy gauge after every decision cycle.
type EmpathySink interface {
	SetEmpathy(v float64)
}

// State is a copy of the controller's internal scalars.
type State struct {
	Mood          float64
	Curiosity     float64
	Empathy       float64
	Stabilization float64
}

// Controller holds the slowly varying mood, curiosity, empathy and stabilization
// scalars. Each Think call moves them toward the current metrics, damped so
// they do not oscillate, then applies threshold rules to emit actions.
type Controller struct {
	cfg  config.ConsciousnessConfig
	rng  *rand.Rand
	sink EmpathySink

	state State
	seq   uint64
}

// New creates a controller seeded with seed. sink may be nil.
func New(cfg config.ConsciousnessConfig, seed int64, sink EmpathySink) *Controller {
	return &Controller{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		sink:  sink,
		state: State{Mood: 0.5, Curiosity: 0.5, Empathy: 0.5, Stabilization: 0.8},
	}
}

// State returns a copy of the internal scalars.
func (c *Controller) State() State { return c.state }

// SetState replaces the internal scalars, for example from a snapshot.
// Empathy is clamped to [0, 1] and forwarded to the sink.
func (c *Controller) SetState(st State) error {
	for _, v := range []float64{st.Mood, st.Curiosity, st.Empathy, st.Stabilization} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("set state: non-finite scalar %v", v)
		}
	}
	st.Empathy = systems.ClampF64(st.Empathy, 0, 1)
	c.state = st
	if c.sink != nil {
		c.sink.SetEmpathy(st.Empathy)
	}
	return nil
}

// Think updates the internal state from m and returns the next pulse.
// Non-finite metrics leave the state untouched and return ErrMalformedPulse.
func (c *Controller) Think(m metrics.WorldMetrics) (Pulse, error) {
	if !m.Finite() {
		return Pulse{}, fmt.Errorf("%w: non-finite metrics at tick %d", ErrMalformedPulse, m.Tick)
	}

	// 1. Move the scalars toward their targets
	norm := m.NormalizedEnergy()
	trauma := 0.0
	if m.Trauma {
		trauma = 1
	}
	prev := c.state
	s := &c.state
	s.Mood = ema(s.Mood, norm, c.cfg.MoodDamping)
	s.Curiosity = ema(s.Curiosity, m.Entropy, c.cfg.CuriosityDamping)
	s.Empathy = systems.ClampF64(ema(s.Empathy, 1-trauma*0.5+norm*0.5, c.cfg.EmpathyDamping), 0, 1)
	swing := math.Min(math.Abs(s.Mood-prev.Mood)*stabilityGain, 1)
	s.Stabilization = ema(s.Stabilization, 1-swing, c.cfg.StabilityDamping)

	if c.sink != nil {
		c.sink.SetEmpathy(s.Empathy)
	}

	// 2. Threshold rules
	c.seq++
	p := Pulse{
		seq:           c.seq,
		time:          m.Time,
		mood:          s.Mood,
		curiosity:     s.Curiosity,
		empathy:       s.Empathy,
		empathyDelta:  s.Empathy - prev.Empathy,
		stabilization: s.Stabilization,
	}
	var narration strings.Builder
	add := func(a Action, format string, args ...any) {
		if len(p.actions) >= c.cfg.MaxActions {
			return
		}
		p.actions = append(p.actions, a)
		fmt.Fprintf(&narration, format, args...)
	}

	if norm < c.cfg.LowEnergy {
		gain := 0.6 + s.Curiosity*0.6
		add(Action{Kind: ActionIgnite, Target: TargetColdSpot, Magnitude: gain, Radius: float32(8 + gain*4)},
			"ignites cold cluster at %s. ", fmtPos(m.ColdSpot))
		if m.Entropy > c.cfg.HighEntropy {
			add(Action{Kind: ActionCalm, Target: TargetHotSpot, Magnitude: 0.4 + s.Mood*0.3, Radius: float32(6 + (0.4+s.Mood*0.3)*4)},
				"settles scattered hot spot at %s. ", fmtPos(m.HotSpot))
		}
	}
	if norm > c.cfg.HighEnergy {
		falloff := 0.4 + s.Mood*0.3
		add(Action{Kind: ActionCalm, Target: TargetHotSpot, Magnitude: falloff, Radius: float32(6 + falloff*4)},
			"calms overheated node at %s. ", fmtPos(m.HotSpot))
	}
	if m.Entropy < c.cfg.LowEntropy && s.Curiosity < c.cfg.LowCuriosity && c.rng.Float64() < c.cfg.SeedChance {
		concept := randomConcept(c.rng)
		add(Action{Kind: ActionSeedConcept, Target: TargetColdSpot, Concept: concept},
			"seeds %s. ", concept)
	}
	switch {
	case m.Trauma && norm < c.cfg.TraumaOffEnergy:
		add(Action{Kind: ActionToggleTrauma, Target: TargetWorld, Enable: false}, "disengages trauma mode. ")
	case !m.Trauma && norm > c.cfg.TraumaOnEnergy:
		add(Action{Kind: ActionToggleTrauma, Target: TargetWorld, Enable: true}, "amplifies trauma resonance. ")
	}

	if narration.Len() == 0 {
		narration.WriteString("holds steady. ")
	}
	p.log = fmt.Sprintf("[pulse %d t=%.2f] %s", p.seq, m.Time, strings.TrimSpace(narration.String()))

	// 3. Nothing malformed leaves the controller
	if err := p.Validate(); err != nil {
		return Pulse{}, err
	}
	return p, nil
}

// NextInterval returns the delay until the next Think. Curious controllers think
// faster. The interval is jittered and always lies in [ThinkMin, ThinkMax].
func (c *Controller) NextInterval() float64 {
	lo, hi := c.cfg.ThinkMin, c.cfg.ThinkMax
	base := lo + (hi-lo)*(1-systems.ClampF64(c.state.Curiosity, 0, 1))
	jittered := base * (1 + (c.rng.Float64()*2-1)*c.cfg.Jitter)
	return systems.ClampF64(jittered, lo, hi)
}

// ema moves v toward target, keeping damping of the old value.
func ema(v, target, damping float64) float64 {
	return v*damping + target*(1-damping)
}

func fmtPos(s metrics.Spot) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", s.Pos.X, s.Pos.Y, s.Pos.Z)
}

package consciousness

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/metrics"
)

type recordingSink struct {
	values []float64
}

func (r *recordingSink) SetEmpathy(v float64) { r.values = append(r.values, v) }

func worldMetrics(mean, max, entropy float64, trauma bool) metrics.WorldMetrics {
	return metrics.WorldMetrics{
		Count:      100,
		Ceiling:    12,
		MeanEnergy: mean,
		MaxEnergy:  max,
		Entropy:    entropy,
		Trauma:     trauma,
		HotSpot:    metrics.Spot{ID: 7, Pos: components.Position{X: 3}, Energy: max},
		ColdSpot:   metrics.Spot{ID: 2, Pos: components.Position{X: -3}},
	}
}

func kinds(p Pulse) []ActionKind {
	var out []ActionKind
	for _, a := range p.Actions() {
		out = append(out, a.Kind)
	}
	return out
}

func TestThinkRules(t *testing.T) {
	tests := []struct {
		name string
		m    metrics.WorldMetrics
		want []ActionKind
	}{
		{"low energy ignites cold spot", worldMetrics(1, 10, 0.5, false), []ActionKind{ActionIgnite}},
		{"low energy and high entropy also calms", worldMetrics(1, 10, 0.8, false), []ActionKind{ActionIgnite, ActionCalm}},
		{"high energy calms and enables trauma", worldMetrics(9.5, 10, 0.5, false), []ActionKind{ActionCalm, ActionToggleTrauma}},
		{"drained world leaves trauma", worldMetrics(1, 10, 0.5, true), []ActionKind{ActionIgnite, ActionToggleTrauma}},
		{"balanced world holds", worldMetrics(5, 10, 0.5, false), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(config.Default().Consciousness, 1, nil)
			p, err := c.Think(tt.m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds(p))
			assert.Equal(t, uint64(1), p.Seq())
			assert.NotEmpty(t, p.Log())
		})
	}
}

func TestThinkIgniteTargetsColdSpot(t *testing.T) {
	c := New(config.Default().Consciousness, 1, nil)
	p, err := c.Think(worldMetrics(1, 10, 0.5, false))
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	a := p.Actions()[0]
	assert.Equal(t, TargetColdSpot, a.Target)
	assert.InDelta(t, 0.6+p.Curiosity()*0.6, a.Magnitude, 1e-12)
	assert.InDelta(t, 8+a.Magnitude*4, float64(a.Radius), 1e-5)
	assert.Contains(t, p.Log(), "ignites cold cluster")
}

func TestThinkSeedsConceptWhenUncurious(t *testing.T) {
	cfg := config.Default().Consciousness
	cfg.SeedChance = 1
	c := New(cfg, 3, nil)

	pattern := regexp.MustCompile(`^[a-z]+_[a-z]+_\d{3}$`)
	var seeded bool
	for i := 0; i < 20 && !seeded; i++ {
		p, err := c.Think(worldMetrics(5, 10, 0.05, false))
		require.NoError(t, err)
		for _, a := range p.Actions() {
			if a.Kind == ActionSeedConcept {
				seeded = true
				assert.Regexp(t, pattern, string(a.Concept))
				assert.Less(t, p.Curiosity(), cfg.LowCuriosity)
			}
		}
	}
	assert.True(t, seeded, "no concept seeded once curiosity fell")
}

func TestThinkCapsActions(t *testing.T) {
	cfg := config.Default().Consciousness
	cfg.MaxActions = 1
	c := New(cfg, 1, nil)
	p, err := c.Think(worldMetrics(9.5, 10, 0.5, false))
	require.NoError(t, err)
	assert.Equal(t, []ActionKind{ActionCalm}, kinds(p))
}

func TestThinkRejectsNonFiniteMetrics(t *testing.T) {
	sink := &recordingSink{}
	c := New(config.Default().Consciousness, 1, sink)
	before := c.State()

	_, err := c.Think(worldMetrics(math.NaN(), 10, 0.5, false))
	require.ErrorIs(t, err, ErrMalformedPulse)
	assert.Equal(t, before, c.State())
	assert.Empty(t, sink.values)

	p, err := c.Think(worldMetrics(5, 10, 0.5, false))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Seq())
}

func TestThinkUpdatesStateWithDamping(t *testing.T) {
	sink := &recordingSink{}
	c := New(config.Default().Consciousness, 1, sink)

	var last Pulse
	for i := 0; i < 200; i++ {
		p, err := c.Think(worldMetrics(8, 10, 0.3, false))
		require.NoError(t, err)
		s := c.State()
		for _, v := range []float64{s.Mood, s.Curiosity, s.Empathy, s.Stabilization} {
			assert.True(t, v >= 0 && v <= 1, "state %+v", s)
		}
		last = p
	}

	s := c.State()
	assert.InDelta(t, 0.8, s.Mood, 1e-3)
	assert.InDelta(t, 0.3, s.Curiosity, 1e-3)
	assert.InDelta(t, 1.0, s.Empathy, 1e-3) // 1 - 0 + 0.8*0.5 clamps to 1
	assert.Len(t, sink.values, 200)
	assert.Equal(t, s.Empathy, sink.values[199])
	assert.InDelta(t, 0, last.EmpathyDelta(), 1e-3)
	assert.Equal(t, uint64(200), last.Seq())
}

func TestSetState(t *testing.T) {
	sink := &recordingSink{}
	c := New(config.Default().Consciousness, 1, sink)

	require.NoError(t, c.SetState(State{Mood: 0.2, Curiosity: 0.9, Empathy: 1.5, Stabilization: 0.4}))
	assert.Equal(t, State{Mood: 0.2, Curiosity: 0.9, Empathy: 1, Stabilization: 0.4}, c.State())
	assert.Equal(t, []float64{1}, sink.values)

	err := c.SetState(State{Mood: math.NaN()})
	require.Error(t, err)
	assert.Equal(t, 0.2, c.State().Mood, "a rejected state leaves the controller unchanged")
}

func TestNextIntervalStaysInRange(t *testing.T) {
	cfg := config.Default().Consciousness
	c := New(cfg, 9, nil)

	seen := map[float64]bool{}
	for i := 0; i < 500; i++ {
		if i%50 == 0 {
			_, err := c.Think(worldMetrics(5, 10, float64(i%100)/100, false))
			require.NoError(t, err)
		}
		d := c.NextInterval()
		assert.GreaterOrEqual(t, d, cfg.ThinkMin)
		assert.LessOrEqual(t, d, cfg.ThinkMax)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 100, "interval is not jittered")
}

func TestControllerDeterministic(t *testing.T) {
	cfg := config.Default().Consciousness
	cfg.SeedChance = 0.5
	a := New(cfg, 77, nil)
	b := New(cfg, 77, nil)

	for i := 0; i < 50; i++ {
		m := worldMetrics(float64(i%10), 10, 0.1, i%7 == 0)
		pa, errA := a.Think(m)
		pb, errB := b.Think(m)
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, pa, pb)
		assert.Equal(t, a.NextInterval(), b.NextInterval())
	}
}

func TestPulseActionsAreCopies(t *testing.T) {
	p := NewPulse(4, 1.5, Action{Kind: ActionAmplify, Magnitude: 0.3, Radius: 5})
	acts := p.Actions()
	acts[0].Magnitude = 99

	assert.Equal(t, 0.3, p.Actions()[0].Magnitude)
	assert.NoError(t, p.Validate())
}

func TestPulseValidate(t *testing.T) {
	tests := []struct {
		name   string
		pulse  Pulse
		wantOK bool
	}{
		{"valid", NewPulse(1, 0, Action{Kind: ActionDampen, Magnitude: 1, Radius: 2}), true},
		{"empty", NewPulse(1, 0), true},
		{"zero sequence", NewPulse(0, 0), false},
		{"nan magnitude", NewPulse(1, 0, Action{Kind: ActionIgnite, Magnitude: math.NaN()}), false},
		{"negative radius", NewPulse(1, 0, Action{Kind: ActionIgnite, Radius: -1}), false},
		{"unknown kind", NewPulse(1, 0, Action{Kind: 42}), false},
		{"unknown target", NewPulse(1, 0, Action{Target: 9}), false},
		{"empty concept", NewPulse(1, 0, Action{Kind: ActionSeedConcept}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pulse.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedPulse)
			}
		})
	}
}

func TestKindAndTargetNames(t *testing.T) {
	assert.Equal(t, "seed_concept", ActionSeedConcept.String())
	assert.Equal(t, "cold_spot", TargetColdSpot.String())
	assert.Equal(t, "action(42)", ActionKind(42).String())
}

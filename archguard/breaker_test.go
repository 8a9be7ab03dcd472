package archguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/voxelcore/config"
)

func testConfig() config.ArchGuardConfig {
	cfg := config.Default().ArchGuard
	cfg.FailureThreshold = 3
	cfg.Window = 10
	cfg.Cooldown = 2
	cfg.MaxCooldown = 8
	return cfg
}

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	b := NewBreaker(testConfig())

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow(float64(i)))
		assert.False(t, b.Record(float64(i), false))
	}
	require.True(t, b.Allow(2))
	assert.True(t, b.Record(2, false), "third failure should trip")
	assert.Equal(t, Open, b.State())

	// Rejected without being applied until the cooldown elapses
	assert.False(t, b.Allow(2.5))
	assert.False(t, b.Allow(3.99))
	assert.Equal(t, Open, b.State())
}

func TestBreakerHalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	tests := []struct {
		name      string
		trialOK   bool
		wantState State
		wantCool  float64
	}{
		{"success closes", true, Closed, 2},
		{"failure reopens with doubled cooldown", false, Open, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBreaker(testConfig())
			trip(t, b, 0)

			require.True(t, b.Allow(2), "cooldown elapsed, trial expected")
			assert.Equal(t, HalfOpen, b.State())
			assert.False(t, b.Allow(2), "only one trial per half-open period")
			assert.False(t, b.Allow(2.1))

			b.Record(2.2, tt.trialOK)
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantCool, b.Cooldown())
		})
	}
}

func TestBreakerCooldownDoublesUpToMax(t *testing.T) {
	b := NewBreaker(testConfig())
	trip(t, b, 0)

	now := 0.0
	var cooldowns []float64
	for i := 0; i < 5; i++ {
		now = b.ReopensAt()
		require.True(t, b.Allow(now))
		require.True(t, b.Record(now, false))
		cooldowns = append(cooldowns, b.Cooldown())
	}
	assert.Equal(t, []float64{4, 8, 8, 8, 8}, cooldowns)

	// A successful trial restores the base cooldown
	now = b.ReopensAt()
	require.True(t, b.Allow(now))
	b.Record(now, true)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 2.0, b.Cooldown())
}

func TestBreakerWindowForgetsOldFailures(t *testing.T) {
	b := NewBreaker(testConfig())
	b.Record(0, false)
	b.Record(1, false)
	assert.False(t, b.Record(12, false), "first two failures fell out of the window")
	assert.Equal(t, Closed, b.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(testConfig())
	b.Record(0, false)
	b.Record(1, false)
	b.Record(1.5, true)
	assert.False(t, b.Record(2, false))
	assert.False(t, b.Record(3, false))
	assert.True(t, b.Record(4, false))
}

func TestBreakerIgnoresOutcomesWhileOpen(t *testing.T) {
	b := NewBreaker(testConfig())
	trip(t, b, 0)
	assert.False(t, b.Record(0.5, true))
	assert.Equal(t, Open, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "half_open", HalfOpen.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func trip(t *testing.T, b *Breaker, now float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		b.Record(now, false)
	}
	require.Equal(t, Open, b.State())
}

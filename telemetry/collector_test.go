package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm-cable/voxelcore/archguard"
	"github.com/pthm-cable/voxelcore/consciousness"
	"github.com/pthm-cable/voxelcore/evolution"
	"github.com/pthm-cable/voxelcore/metrics"
)

func TestCollectorWindowTicks(t *testing.T) {
	c := NewCollector(10, 0.5)
	assert.Equal(t, int64(20), c.WindowDurationTicks())
	assert.False(t, c.ShouldFlush(19))
	assert.True(t, c.ShouldFlush(20))

	assert.Equal(t, int64(1), NewCollector(0.1, 1).WindowDurationTicks())
	assert.Equal(t, int64(1), NewCollector(10, 0).WindowDurationTicks())
}

func TestCollectorFlushReportsWindowDeltas(t *testing.T) {
	c := NewCollector(1, 0.1)

	c.RecordSpawn()
	c.RecordSpawn()
	c.RecordDeaths(3)
	c.RecordEvolution(evolution.StepResult{Offspring: 4, MeanFitness: 0.4, BestFitness: 0.9})
	c.RecordEvolution(evolution.StepResult{Offspring: 6, MeanFitness: 0.5, BestFitness: 0.95})

	first := Sample{
		Metrics:  metrics.WorldMetrics{Time: 1, Count: 4, MaxEnergy: 4, Entropy: 0.3, Trauma: true},
		Energies: []float64{1, 2, 3, 4},
		Mind:     consciousness.State{Mood: 0.6, Curiosity: 0.4, Stabilization: 0.9},
		Guard: archguard.Telemetry{
			Counters: archguard.Counters{Pulses: 2, Applied: 8, Rejected: 2, Failures: 3, Trips: 1, ControllerErrors: 1},
			State:    archguard.Open,
			Empathy:  0.7,
			RhythmHz: 1.1,
		},
	}
	stats := c.Flush(10, first)

	assert.Equal(t, int64(0), stats.WindowStartTick)
	assert.Equal(t, int64(10), stats.WindowEndTick)
	assert.Equal(t, 1.0, stats.SimTimeSec)
	assert.Equal(t, 4, stats.Live)
	assert.Equal(t, 2, stats.Spawns)
	assert.Equal(t, 3, stats.Deaths)
	assert.Equal(t, 2, stats.EvolutionSteps)
	assert.Equal(t, 10, stats.Offspring)
	assert.Equal(t, 0.95, stats.BestFitness)
	assert.Equal(t, 8, stats.ActionsApplied)
	assert.Equal(t, 2, stats.ActionsRejected)
	assert.Equal(t, 2, stats.ActionFailures)
	assert.Equal(t, 1, stats.ControllerErrors)
	assert.InDelta(t, 0.2, stats.RejectRate, 1e-12)
	assert.InDelta(t, 0.25, stats.FailureRate, 1e-12)
	assert.Equal(t, 2.5, stats.EnergyMean)
	assert.Equal(t, 4.0, stats.EnergyMax)
	assert.Equal(t, "open", stats.BreakerState)
	assert.Equal(t, 0.7, stats.Empathy)
	assert.True(t, stats.Trauma)

	// Second window sees only the change in guard counters
	second := first
	second.Guard.Counters = archguard.Counters{Pulses: 5, Applied: 9, Rejected: 6, Failures: 3, Trips: 1, ControllerErrors: 1}
	stats = c.Flush(20, second)

	assert.Equal(t, int64(10), stats.WindowStartTick)
	assert.Equal(t, 3, stats.Pulses)
	assert.Equal(t, 1, stats.ActionsApplied)
	assert.Equal(t, 4, stats.ActionsRejected)
	assert.Zero(t, stats.Trips)
	assert.Zero(t, stats.ActionFailures)
	assert.Zero(t, stats.Spawns)
	assert.Zero(t, stats.EvolutionSteps)
}

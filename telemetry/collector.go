// Package telemetry provides windowed run statistics, bookmarking, snapshots
// and the background guard exporter.
package telemetry

import (
	"github.com/pthm-cable/voxelcore/archguard"
	"github.com/pthm-cable/voxelcore/consciousness"
	"github.com/pthm-cable/voxelcore/evolution"
	"github.com/pthm-cable/voxelcore/metrics"
)

// Sample is the state the caller hands to Flush at the end of a window.
type Sample struct {
	Metrics  metrics.WorldMetrics
	Energies []float64 // Live voxel energies, any order
	Mind     consciousness.State
	Guard    archguard.Telemetry
}

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int64
	dt                  float64

	// Current window tracking
	windowStartTick int64
	lastCounters    archguard.Counters

	// Event counters for current window
	spawns         int
	deaths         int
	evolutionSteps int
	offspring      int
	lastStep       evolution.StepResult
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int64(1)
	if dt > 0 {
		ticksPerWindow = max(int64(windowDurationSec/dt), 1)
	}
	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordSpawn records a voxel created by Spawn.
func (c *Collector) RecordSpawn() {
	c.spawns++
}

// RecordDeaths records voxels that starved during a tick.
func (c *Collector) RecordDeaths(n int) {
	c.deaths += n
}

// RecordEvolution records one evolution step.
func (c *Collector) RecordEvolution(res evolution.StepResult) {
	c.evolutionSteps++
	c.offspring += res.Offspring
	c.lastStep = res
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// Guard counters are cumulative; the window reports their change since the
// previous flush.
func (c *Collector) Flush(currentTick int64, s Sample) WindowStats {
	delta := counterDelta(s.Guard.Counters, c.lastCounters)

	var rejectRate, failureRate float64
	if attempted := delta.Applied + delta.Rejected; attempted > 0 {
		rejectRate = float64(delta.Rejected) / float64(attempted)
	}
	if delta.Applied > 0 {
		failureRate = float64(delta.Failures-delta.ControllerErrors) / float64(delta.Applied)
	}

	mean, p10, p50, p90 := ComputeEnergyStats(s.Energies)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      s.Metrics.Time,

		Live: s.Metrics.Count,

		Spawns:           c.spawns,
		Deaths:           c.deaths,
		Pulses:           int(delta.Pulses),
		ActionsApplied:   int(delta.Applied),
		ActionsRejected:  int(delta.Rejected),
		ActionFailures:   int(delta.Failures - delta.ControllerErrors),
		Trips:            int(delta.Trips),
		ControllerErrors: int(delta.ControllerErrors),
		EvolutionSteps:   c.evolutionSteps,
		Offspring:        c.offspring,

		RejectRate:  rejectRate,
		FailureRate: failureRate,

		EnergyMean: mean,
		EnergyP10:  p10,
		EnergyP50:  p50,
		EnergyP90:  p90,
		EnergyMax:  s.Metrics.MaxEnergy,
		Entropy:    s.Metrics.Entropy,

		MeanFitness: c.lastStep.MeanFitness,
		BestFitness: c.lastStep.BestFitness,

		Mood:          s.Mind.Mood,
		Curiosity:     s.Mind.Curiosity,
		Empathy:       s.Guard.Empathy,
		Stabilization: s.Mind.Stabilization,

		BreakerState: s.Guard.State.String(),
		RhythmHz:     s.Guard.RhythmHz,
		RhythmDrift:  s.Guard.RhythmDrift,
		Trauma:       s.Metrics.Trauma,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.lastCounters = s.Guard.Counters
	c.spawns = 0
	c.deaths = 0
	c.evolutionSteps = 0
	c.offspring = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int64 {
	return c.windowDurationTicks
}

func counterDelta(now, prev archguard.Counters) archguard.Counters {
	return archguard.Counters{
		Pulses:           now.Pulses - prev.Pulses,
		Applied:          now.Applied - prev.Applied,
		Rejected:         now.Rejected - prev.Rejected,
		Failures:         now.Failures - prev.Failures,
		Trips:            now.Trips - prev.Trips,
		ControllerErrors: now.ControllerErrors - prev.ControllerErrors,
	}
}

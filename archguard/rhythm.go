package archguard

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/voxelcore/config"
)

// minRhythmIntervals is the evidence needed before drift is judged.
const minRhythmIntervals = 3

// Rhythm watches the spacing of decision pulses and flags when their frequency
// leaves the expected low-frequency band. Drift is an early warning, not a fault.
type Rhythm struct {
	minHz, maxHz float64
	refHz        float64

	intervals []float64
	next      int
	filled    int
	last      float64
	seen      bool
	drift     bool
}

// NewRhythm creates a detector over the last cfg.RhythmSamples intervals.
func NewRhythm(cfg config.ArchGuardConfig) *Rhythm {
	return &Rhythm{
		minHz:     cfg.RhythmMinHz,
		maxHz:     cfg.RhythmMaxHz,
		refHz:     cfg.ReferenceHz,
		intervals: make([]float64, max(cfg.RhythmSamples, minRhythmIntervals)),
	}
}

// Observe records a pulse at now. Returns the drift state and whether it changed.
func (r *Rhythm) Observe(now float64) (drift, changed bool) {
	if r.seen {
		if dt := now - r.last; dt > 0 {
			r.intervals[r.next] = dt
			r.next = (r.next + 1) % len(r.intervals)
			if r.filled < len(r.intervals) {
				r.filled++
			}
		}
	}
	r.last, r.seen = now, true

	was := r.drift
	if r.filled >= minRhythmIntervals {
		hz := r.Frequency()
		r.drift = hz < r.minHz || hz > r.maxHz
	}
	return r.drift, r.drift != was
}

// Frequency returns the mean pulse frequency over the window, or 0 before two pulses.
func (r *Rhythm) Frequency() float64 {
	if r.filled == 0 {
		return 0
	}
	mean := stat.Mean(r.intervals[:r.filled], nil)
	if mean <= 0 {
		return 0
	}
	return 1 / mean
}

// Drifting reports whether the last judged frequency was outside the band.
func (r *Rhythm) Drifting() bool { return r.drift }

// Phase returns the position in [0, 1) of the slow reference oscillator at now.
func (r *Rhythm) Phase(now float64) float64 {
	p := math.Mod(now*r.refHz, 1)
	if p < 0 {
		p++
	}
	return p
}

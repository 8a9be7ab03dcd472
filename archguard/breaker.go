// Package archguard gates action application behind a circuit breaker and
// exposes counters and gauges that other goroutines may sample.
package archguard

import (
	"fmt"
	"math"

	"github.com/pthm-cable/voxelcore/config"
)

// State is the circuit breaker state.
type State uint8

const (
	// Closed lets actions through.
	Closed State = iota
	// Open rejects every action until the cooldown elapses.
	Open
	// HalfOpen has admitted one trial action and waits for its outcome.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Breaker is a Closed/Open/HalfOpen state machine driven by simulated time.
// It is not safe for concurrent use; Guard serializes access.
type Breaker struct {
	threshold    int
	window       float64
	baseCooldown float64
	maxCooldown  float64

	state    State
	failures []float64 // Failure times since the last success, oldest first
	openedAt float64
	cooldown float64
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg config.ArchGuardConfig) *Breaker {
	threshold := max(cfg.FailureThreshold, 1)
	return &Breaker{
		threshold:    threshold,
		window:       cfg.Window,
		baseCooldown: cfg.Cooldown,
		maxCooldown:  math.Max(cfg.MaxCooldown, cfg.Cooldown),
		cooldown:     cfg.Cooldown,
		failures:     make([]float64, 0, threshold),
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() State { return b.state }

// Cooldown returns the cooldown that applies to the current or next Open period.
func (b *Breaker) Cooldown() float64 { return b.cooldown }

// ReopensAt returns the time an Open breaker admits its trial.
func (b *Breaker) ReopensAt() float64 { return b.openedAt + b.cooldown }

// Allow reports whether one action may proceed at now. An Open breaker whose
// cooldown has elapsed moves to HalfOpen and admits exactly one trial; further
// calls are rejected until that trial is recorded.
func (b *Breaker) Allow(now float64) bool {
	switch b.state {
	case Closed:
		return true
	case Open:
		if now >= b.openedAt+b.cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// Record feeds the outcome of an allowed action. Returns true if the breaker
// opened as a result.
func (b *Breaker) Record(now float64, ok bool) bool {
	switch b.state {
	case Closed:
		if ok {
			b.failures = b.failures[:0]
			return false
		}
		b.failures = append(b.failures, now)
		b.prune(now)
		if len(b.failures) >= b.threshold {
			b.open(now)
			return true
		}
		return false

	case HalfOpen:
		if ok {
			b.state = Closed
			b.cooldown = b.baseCooldown
			b.failures = b.failures[:0]
			return false
		}
		b.cooldown = math.Min(b.cooldown*2, b.maxCooldown)
		b.open(now)
		return true

	default:
		// Outcomes that arrive while Open were never admitted
		return false
	}
}

// prune drops failures older than the rolling window.
func (b *Breaker) prune(now float64) {
	if b.window <= 0 {
		return
	}
	cut := 0
	for cut < len(b.failures) && now-b.failures[cut] > b.window {
		cut++
	}
	if cut > 0 {
		b.failures = append(b.failures[:0], b.failures[cut:]...)
	}
}

func (b *Breaker) open(now float64) {
	b.state = Open
	b.openedAt = now
	b.failures = b.failures[:0]
}

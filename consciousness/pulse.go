package consciousness

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/voxelcore/components"
)

// ErrMalformedPulse marks a pulse that must be discarded whole.
var ErrMalformedPulse = errors.New("consciousness: malformed pulse")

// ActionKind tags what an action does to the world.
type ActionKind uint8

const (
	ActionIgnite ActionKind = iota
	ActionCalm
	ActionAmplify
	ActionDampen
	ActionSeedConcept
	ActionToggleTrauma

	numActionKinds
)

var actionNames = [numActionKinds]string{"ignite", "calm", "amplify", "dampen", "seed_concept", "toggle_trauma"}

func (k ActionKind) String() string {
	if k < numActionKinds {
		return actionNames[k]
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// Target names the selection rule that resolves an action to a place in the world.
type Target uint8

const (
	TargetCentroid Target = iota
	TargetHotSpot
	TargetColdSpot
	TargetWorld // The whole world, or the strongest voxel for concept seeding

	numTargets
)

var targetNames = [numTargets]string{"centroid", "hot_spot", "cold_spot", "world"}

func (t Target) String() string {
	if t < numTargets {
		return targetNames[t]
	}
	return fmt.Sprintf("target(%d)", uint8(t))
}

// Action is one tagged instruction inside a pulse.
type Action struct {
	Kind      ActionKind
	Target    Target
	Magnitude float64            // Energy delta for cluster kinds
	Radius    float32            // Cluster radius in world units
	Concept   components.Concept // ActionSeedConcept only
	Enable    bool               // ActionToggleTrauma only
}

// Validate reports why an action cannot be applied.
func (a Action) Validate() error {
	switch {
	case a.Kind >= numActionKinds:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedPulse, a.Kind)
	case a.Target >= numTargets:
		return fmt.Errorf("%w: unknown target %d", ErrMalformedPulse, a.Target)
	case math.IsNaN(a.Magnitude) || math.IsInf(a.Magnitude, 0):
		return fmt.Errorf("%w: %s magnitude %v", ErrMalformedPulse, a.Kind, a.Magnitude)
	case a.Radius < 0 || a.Radius != a.Radius:
		return fmt.Errorf("%w: %s radius %v", ErrMalformedPulse, a.Kind, a.Radius)
	case a.Kind == ActionSeedConcept && a.Concept == "":
		return fmt.Errorf("%w: empty concept", ErrMalformedPulse)
	}
	return nil
}

// Pulse is the immutable output of one decision cycle.
// Fields are unexported so a pulse cannot change after it is emitted.
type Pulse struct {
	seq     uint64
	time    float64
	actions []Action

	mood          float64
	curiosity     float64
	empathy       float64
	empathyDelta  float64
	stabilization float64
	log           string
}

// NewPulse builds a pulse carrying a copy of actions. Used by tools and tests
// that steer the world without a controller.
func NewPulse(seq uint64, time float64, actions ...Action) Pulse {
	return Pulse{seq: seq, time: time, actions: append([]Action(nil), actions...)}
}

// Seq returns the pulse sequence number. Sequence numbers start at 1.
func (p Pulse) Seq() uint64 { return p.seq }

// Time returns the simulated time the pulse was emitted at.
func (p Pulse) Time() float64 { return p.time }

// Len returns the number of actions.
func (p Pulse) Len() int { return len(p.actions) }

// Actions returns a copy of the actions in order.
func (p Pulse) Actions() []Action { return append([]Action(nil), p.actions...) }

// Mood returns the controller mood at emission.
func (p Pulse) Mood() float64 { return p.mood }

// Curiosity returns the controller curiosity at emission.
func (p Pulse) Curiosity() float64 { return p.curiosity }

// Empathy returns the controller empathy at emission.
func (p Pulse) Empathy() float64 { return p.empathy }

// EmpathyDelta returns the change in empathy during this cycle.
func (p Pulse) EmpathyDelta() float64 { return p.empathyDelta }

// Stabilization returns the controller stabilization at emission.
func (p Pulse) Stabilization() float64 { return p.stabilization }

// Log returns the one-line narration of the cycle.
func (p Pulse) Log() string { return p.log }

// Validate checks every action. A pulse with any invalid action is malformed as a whole.
func (p Pulse) Validate() error {
	if p.seq == 0 {
		return fmt.Errorf("%w: zero sequence", ErrMalformedPulse)
	}
	for i, a := range p.actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

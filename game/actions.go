package game

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/consciousness"
	"github.com/pthm-cable/voxelcore/world"
)

// ErrPulseApplied is returned when a pulse with an already applied sequence
// number is offered again. The world is left unchanged.
var ErrPulseApplied = errors.New("game: pulse already applied")

// ActionOutcome reports what happened to one action of a pulse.
type ActionOutcome struct {
	Action  consciousness.Action
	Allowed bool // The breaker let it through
	OK      bool // Counted as a success by the breaker
	Result  world.ClusterResult
	Err     error
}

// ApplyReport summarizes one ApplyPulse call.
type ApplyReport struct {
	Seq      uint64
	Applied  int
	Rejected int
	Failed   int
	Outcomes []ActionOutcome
}

// handler applies one action to the store.
type handler func(s *Simulation, a consciousness.Action) (world.ClusterResult, error)

func defaultHandlers() map[consciousness.ActionKind]handler {
	return map[consciousness.ActionKind]handler{
		consciousness.ActionIgnite:       clusterHandler(world.Ignite),
		consciousness.ActionCalm:         clusterHandler(world.Calm),
		consciousness.ActionAmplify:      clusterHandler(world.Amplify),
		consciousness.ActionDampen:       clusterHandler(world.Dampen),
		consciousness.ActionSeedConcept:  seedConcept,
		consciousness.ActionToggleTrauma: toggleTrauma,
	}
}

// ApplyPulse applies every action of p in order. Each action asks the guard
// first; a rejected action is skipped and the rest still run. An action fails
// when its clamp ratio exceeds archguard.clamp_failure_ratio or the store
// returns an error. A malformed pulse is discarded whole and counted as a
// controller error.
//
// Sequence numbers are tracked apart from the simulation's own controller, so
// an external pulse never suppresses later controller pulses.
func (s *Simulation) ApplyPulse(p consciousness.Pulse) (ApplyReport, error) {
	return s.applyPulse(p, &s.lastSeq)
}

// applyPulse applies p at most once against the sequence counter last.
func (s *Simulation) applyPulse(p consciousness.Pulse, last *uint64) (ApplyReport, error) {
	now := s.store.Time()
	if err := p.Validate(); err != nil {
		s.guard.ReportControllerError(now, err)
		return ApplyReport{}, fmt.Errorf("apply pulse: %w", err)
	}
	if p.Seq() <= *last {
		return ApplyReport{}, fmt.Errorf("pulse %d: %w", p.Seq(), ErrPulseApplied)
	}
	*last = p.Seq()

	rep := ApplyReport{Seq: p.Seq()}
	for _, a := range p.Actions() {
		out := ActionOutcome{Action: a}
		if !s.guard.Allow(now) {
			rep.Rejected++
			rep.Outcomes = append(rep.Outcomes, out)
			continue
		}
		out.Allowed = true

		out.Result, out.Err = s.handlers[a.Kind](s, a)
		out.OK = out.Err == nil && out.Result.ClampRatio() <= s.cfg.ArchGuard.ClampFailureRatio
		s.guard.Report(now, out.OK)

		rep.Applied++
		if !out.OK {
			rep.Failed++
			s.logger.Debug("action failed",
				"seq", p.Seq(),
				"kind", a.Kind.String(),
				"affected", out.Result.Affected,
				"clamped", out.Result.Clamped,
				"error", out.Err,
			)
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}
	return rep, nil
}

// clusterHandler maps a cluster action onto AffectCluster. The World target
// covers the whole box.
func clusterHandler(mode world.ClusterMode) handler {
	return func(s *Simulation, a consciousness.Action) (world.ClusterResult, error) {
		center, radius := s.resolveTarget(a.Target), a.Radius
		if a.Target == consciousness.TargetWorld {
			radius = s.worldRadius()
		}
		return s.store.AffectCluster(center, radius, a.Magnitude, mode), nil
	}
}

// seedConcept embeds into the voxel nearest the target, or into the most
// energetic voxel for the World target.
func seedConcept(s *Simulation, a consciousness.Action) (world.ClusterResult, error) {
	if a.Target == consciousness.TargetWorld {
		if _, err := s.store.EmbedConceptStrongest(a.Concept); err != nil {
			return world.ClusterResult{}, err
		}
		return world.ClusterResult{Affected: 1}, nil
	}

	id, ok := s.store.Nearest(s.resolveTarget(a.Target))
	if !ok {
		return world.ClusterResult{}, fmt.Errorf("seed %q: %w", a.Concept, world.ErrNotFound)
	}
	if err := s.store.EmbedConcept(id, a.Concept); err != nil {
		return world.ClusterResult{}, err
	}
	return world.ClusterResult{Affected: 1}, nil
}

func toggleTrauma(s *Simulation, a consciousness.Action) (world.ClusterResult, error) {
	if s.store.Trauma() != a.Enable {
		s.logger.Info("trauma mode", "enabled", a.Enable, "time", s.store.Time())
	}
	s.store.SetTrauma(a.Enable)
	return world.ClusterResult{Affected: s.store.Len()}, nil
}

// resolveTarget turns a symbolic target into a position using the last metrics.
func (s *Simulation) resolveTarget(t consciousness.Target) components.Position {
	switch t {
	case consciousness.TargetHotSpot:
		return s.metrics.HotSpot.Pos
	case consciousness.TargetColdSpot:
		return s.metrics.ColdSpot.Pos
	case consciousness.TargetWorld:
		b := s.store.Bounds()
		return components.Position{
			X: (b.Min.X + b.Max.X) / 2,
			Y: (b.Min.Y + b.Max.Y) / 2,
			Z: (b.Min.Z + b.Max.Z) / 2,
		}
	default:
		return s.metrics.Centroid
	}
}

// worldRadius reaches every corner of the box from its center.
func (s *Simulation) worldRadius() float32 {
	b := s.store.Bounds()
	dx := float64(b.Max.X - b.Min.X)
	dy := float64(b.Max.Y - b.Min.Y)
	dz := float64(b.Max.Z - b.Min.Z)
	return float32(math.Sqrt(dx*dx+dy*dy+dz*dz)/2) + 1
}

package world

import (
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/pthm-cable/voxelcore/components"
)

// ClusterMode selects how AffectCluster changes the voxels it reaches.
type ClusterMode uint8

const (
	// Amplify raises energy uniformly inside the radius and lifts valence and arousal.
	Amplify ClusterMode = iota
	// Dampen lowers energy uniformly inside the radius and settles arousal.
	Dampen
	// Ignite raises energy with radial falloff, feeds resonance and marks voxels ignited.
	Ignite
	// Calm lowers energy with radial falloff and pulls emotion toward neutral.
	Calm
)

func (m ClusterMode) String() string {
	switch m {
	case Amplify:
		return "amplify"
	case Dampen:
		return "dampen"
	case Ignite:
		return "ignite"
	case Calm:
		return "calm"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseClusterMode maps a mode name back to its value.
func ParseClusterMode(s string) (ClusterMode, error) {
	for m := Amplify; m <= Calm; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown cluster mode %q", s)
}

// ClusterResult reports the reach of one AffectCluster call.
type ClusterResult struct {
	Affected int // Voxels inside the radius
	Clamped  int // Voxels whose new state hit a range limit
}

// ClampRatio is the fraction of affected voxels that were clamped.
func (r ClusterResult) ClampRatio() float64 {
	if r.Affected == 0 {
		return 0
	}
	return float64(r.Clamped) / float64(r.Affected)
}

// AffectCluster adjusts every live voxel within radius of center. Voxels farther
// than radius are left untouched. A non-finite center, radius or delta affects nothing. Results are clamped to invariant ranges and
// each clamp is counted in the result rather than reported as an error.
func (s *Store) AffectCluster(center components.Position, radius float32, delta float64, mode ClusterMode) ClusterResult {
	var res ClusterResult
	if !(radius > 0) || math.IsInf(float64(radius), 0) || !finite(delta) || !finitePos(center) {
		return res
	}
	s.stimulus++
	r2 := radius * radius
	mag := math.Abs(delta)

	query := s.filter.Query()
	for query.Next() {
		pos, vit, _, _, _, echo, meta := query.Get()
		if !meta.Flags.Live() {
			continue
		}
		d2 := pos.DistanceSq(center)
		if d2 > r2 {
			continue
		}
		infl := 1.0
		if mode == Ignite || mode == Calm {
			infl = 1 - math.Sqrt(float64(d2))/float64(radius)
		}

		if s.applyCluster(vit, meta, mode, mag, infl) {
			res.Clamped++
		}
		*echo = components.Echo{Source: s.stimulus, Value: float16.Fromfloat32(float32(infl))}
		res.Affected++
	}
	return res
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePos(p components.Position) bool {
	return finite(float64(p.X)) && finite(float64(p.Y)) && finite(float64(p.Z))
}

// applyCluster mutates one voxel and reports whether any value was clamped.
func (s *Store) applyCluster(vit *components.Vitals, meta *components.Meta, mode ClusterMode, mag, infl float64) bool {
	var clamped bool
	switch mode {
	case Amplify:
		vit.Energy += mag
		vit.Emotion.Valence += 0.05 * mag
		vit.Emotion.Arousal += 0.1 * mag
	case Dampen:
		vit.Energy -= mag
		vit.Emotion.Arousal -= 0.1 * mag
	case Ignite:
		vit.Energy += mag * infl
		vit.Emotion.Arousal += 0.2 * mag * infl
		res := vit.Resonance + mag*0.05*infl
		if res > s.params.ResonanceMax {
			res = s.params.ResonanceMax
			clamped = true
		}
		vit.Resonance = res
		meta.Flags.Set(components.FlagIgnited)
	case Calm:
		vit.Energy -= mag * infl
		keep := 1 - 0.5*infl
		vit.Emotion.Valence *= keep
		vit.Emotion.Arousal *= keep
		vit.Emotion.Dominance *= keep
		meta.Flags.Clear(components.FlagIgnited)
	}

	if vit.ClampEnergy(s.params.Ceiling) {
		clamped = true
	}
	if vit.Emotion.Clamp() {
		clamped = true
	}
	return clamped
}

// EmbedConcept appends c to a live voxel's genome, evicting the oldest concept when full.
func (s *Store) EmbedConcept(id uint32, c components.Concept) error {
	e, ok := s.liveEntity(id)
	if !ok {
		return fmt.Errorf("embed %q into %d: %w", c, id, ErrNotFound)
	}
	s.genMap.Get(e).Append(c)
	s.metaMap.Get(e).Flags.Set(components.FlagIntegrated)
	return nil
}

// EmbedConceptStrongest embeds c into the live voxel with the highest energy,
// lowest id on ties. Returns the chosen id.
func (s *Store) EmbedConceptStrongest(c components.Concept) (uint32, error) {
	best, bestEnergy := -1, -1.0
	for id, e := range s.slots {
		if !s.metaMap.Get(e).Flags.Live() {
			continue
		}
		if en := s.vitMap.Get(e).Energy; en > bestEnergy {
			best, bestEnergy = id, en
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("embed %q: %w", c, ErrNotFound)
	}
	return uint32(best), s.EmbedConcept(uint32(best), c)
}

// Nearest returns the id of the live voxel closest to p, lowest id on ties.
func (s *Store) Nearest(p components.Position) (uint32, bool) {
	best, bestD := -1, float32(math.MaxFloat32)
	for id, e := range s.slots {
		if !s.metaMap.Get(e).Flags.Live() {
			continue
		}
		if d := s.posMap.Get(e).DistanceSq(p); d < bestD {
			best, bestD = id, d
		}
	}
	if best < 0 {
		return 0, false
	}
	return uint32(best), true
}

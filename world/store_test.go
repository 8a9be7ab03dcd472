package world

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/systems"
)

func newTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.World.ExtentX = 100
	cfg.World.ExtentY = 8
	cfg.World.ExtentZ = 8
	cfg.World.MaxEntities = capacity
	s, err := New(cfg.World, cfg.Entity)
	require.NoError(t, err)
	return s
}

// spawnLine places n voxels on a line along x at the given energy.
func spawnLine(t *testing.T, s *Store, n int, energy float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.Spawn(components.Position{X: float32(i)}, SpawnAttributes{Energy: energy, Resonance: 0.4})
		require.NoError(t, err)
	}
}

func TestSpawnRejectsBeyondCapacity(t *testing.T) {
	s := newTestStore(t, 50)
	spawnLine(t, s, 50, 1)

	_, err := s.Spawn(components.Position{}, SpawnAttributes{Energy: 1})
	require.ErrorIs(t, err, ErrAtCapacity)
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, 50, s.Slots())
}

func TestSpawnReclaimsDeadSlot(t *testing.T) {
	cfg := config.Default()
	cfg.World.MaxEntities = 3
	cfg.World.ReclaimDead = true
	s, err := New(cfg.World, cfg.Entity)
	require.NoError(t, err)
	spawnLine(t, s, 3, 1)

	require.NoError(t, s.Kill(1))
	assert.Equal(t, 2, s.Len())

	id, err := s.Spawn(components.Position{X: 5}, SpawnAttributes{Energy: 2})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, 3, s.Len())

	_, err = s.Spawn(components.Position{}, SpawnAttributes{})
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestSpawnClampsAttributes(t *testing.T) {
	s := newTestStore(t, 4)
	id, err := s.Spawn(components.Position{X: 1000}, SpawnAttributes{
		Energy:    99,
		Emotion:   components.Emotion{Valence: 3, Arousal: -4},
		Resonance: 9,
	})
	require.NoError(t, err)

	v, ok := s.Entity(id)
	require.True(t, ok)
	assert.Equal(t, s.Ceiling(), v.Energy)
	assert.Equal(t, 1.0, v.Emotion.Valence)
	assert.Equal(t, -1.0, v.Emotion.Arousal)
	assert.Equal(t, float32(100), v.Pos.X)
}

func TestAffectClusterScenario(t *testing.T) {
	s := newTestStore(t, 100)
	spawnLine(t, s, 100, 0.5)

	// x = 45..54 lie within 5 of 49.5
	res := s.AffectCluster(components.Position{X: 49.5}, 5, 0.3, Amplify)
	assert.Equal(t, 10, res.Affected)
	assert.Zero(t, res.Clamped)

	var inside, outside int
	s.Scan(func(v View) {
		if v.Pos.X >= 45 && v.Pos.X <= 54 {
			inside++
			assert.InDelta(t, 0.8, v.Energy, 1e-12, "voxel %d", v.ID)
			assert.Equal(t, uint32(1), echoSource(s, v.ID))
			return
		}
		outside++
		assert.Equal(t, 0.5, v.Energy, "voxel %d", v.ID)
		assert.Equal(t, components.Emotion{}, v.Emotion, "voxel %d", v.ID)
	})
	assert.Equal(t, 10, inside)
	assert.Equal(t, 90, outside)
}

func echoSource(s *Store, id uint32) uint32 {
	return s.echoMap.Get(s.slots[id]).Source
}

func TestAffectClusterModes(t *testing.T) {
	tests := []struct {
		name  string
		mode  ClusterMode
		check func(t *testing.T, center, edge View)
	}{
		{
			name: "dampen lowers uniformly",
			mode: Dampen,
			check: func(t *testing.T, center, edge View) {
				assert.InDelta(t, 4.0, center.Energy, 1e-12)
				assert.InDelta(t, 4.0, edge.Energy, 1e-12)
			},
		},
		{
			name: "ignite falls off with distance",
			mode: Ignite,
			check: func(t *testing.T, center, edge View) {
				assert.InDelta(t, 6.0, center.Energy, 1e-12)
				assert.Greater(t, edge.Energy, 5.0)
				assert.Less(t, edge.Energy, center.Energy)
				assert.True(t, center.Flags.Has(components.FlagIgnited))
			},
		},
		{
			name: "calm falls off with distance",
			mode: Calm,
			check: func(t *testing.T, center, edge View) {
				assert.InDelta(t, 4.0, center.Energy, 1e-12)
				assert.Less(t, edge.Energy, 5.0)
				assert.Greater(t, edge.Energy, center.Energy)
				assert.False(t, center.Flags.Has(components.FlagIgnited))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, 10)
			spawnLine(t, s, 10, 5)

			res := s.AffectCluster(components.Position{X: 0}, 4, 1, tt.mode)
			assert.Equal(t, 5, res.Affected) // x = 0..4

			center, _ := s.Entity(0)
			edge, _ := s.Entity(3)
			tt.check(t, center, edge)

			far, _ := s.Entity(9)
			assert.Equal(t, 5.0, far.Energy)
		})
	}
}

func TestAffectClusterCountsClamps(t *testing.T) {
	s := newTestStore(t, 4)
	spawnLine(t, s, 4, 11.9)

	res := s.AffectCluster(components.Position{X: 1.5}, 10, 5, Amplify)
	assert.Equal(t, 4, res.Affected)
	assert.Equal(t, 4, res.Clamped)
	assert.Equal(t, 1.0, res.ClampRatio())

	s.Scan(func(v View) {
		assert.Equal(t, s.Ceiling(), v.Energy)
	})
}

func TestAffectClusterIgnoresInvalidInput(t *testing.T) {
	s := newTestStore(t, 4)
	spawnLine(t, s, 4, 1)
	before := s.Digest()

	assert.Zero(t, s.AffectCluster(components.Position{}, 0, 1, Amplify).Affected)
	assert.Zero(t, s.AffectCluster(components.Position{}, 3, math.NaN(), Amplify).Affected)

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name   string
		center components.Position
		radius float32
		mode   ClusterMode
	}{
		{"nan radius", components.Position{}, nan, Amplify},
		{"infinite radius", components.Position{}, inf, Dampen},
		{"nan center", components.Position{X: nan}, 1, Ignite},
		{"infinite center", components.Position{Z: -inf}, 1, Calm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.AffectCluster(tt.center, tt.radius, 2, tt.mode)
			assert.Zero(t, res.Affected)
			assert.Zero(t, res.Clamped)
		})
	}
	assert.Equal(t, before, s.Digest())
}

func TestParseClusterMode(t *testing.T) {
	for m := Amplify; m <= Calm; m++ {
		got, err := ParseClusterMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseClusterMode("explode")
	assert.Error(t, err)
}

func TestEmbedConcept(t *testing.T) {
	s := newTestStore(t, 4)
	spawnLine(t, s, 3, 1)

	for i := 0; i < components.MaxConcepts+2; i++ {
		require.NoError(t, s.EmbedConcept(1, components.Concept(rune('a'+i))))
	}
	g, ok := s.Genome(1)
	require.True(t, ok)
	assert.Equal(t, components.MaxConcepts, g.Len())
	assert.Equal(t, components.Concept("c"), g.At(0))

	v, _ := s.Entity(1)
	assert.True(t, v.Flags.Has(components.FlagIntegrated))

	err := s.EmbedConcept(42, "x")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Kill(2))
	assert.ErrorIs(t, s.EmbedConcept(2, "x"), ErrNotFound)
}

func TestEmbedConceptStrongest(t *testing.T) {
	s := newTestStore(t, 4)
	for _, e := range []float64{1, 7, 7, 3} {
		_, err := s.Spawn(components.Position{}, SpawnAttributes{Energy: e})
		require.NoError(t, err)
	}

	id, err := s.EmbedConceptStrongest("seed")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	empty := newTestStore(t, 4)
	_, err = empty.EmbedConceptStrongest("seed")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTickKeepsInvariants(t *testing.T) {
	s := newTestStore(t, 2000)
	n, err := s.Generate(7, systems.BoundsFromExtent(12, 6, 12), 0.9)
	require.NoError(t, err)
	require.Positive(t, n)

	s.AffectCluster(components.Position{}, 6, 40, Ignite)
	for i := 0; i < 600; i++ {
		s.SetTrauma(i%120 < 60)
		s.Tick(1.0 / 30)
		s.Scan(func(v View) {
			if v.Energy < 0 || v.Energy > s.Ceiling() {
				t.Fatalf("tick %d voxel %d energy %v", i, v.ID, v.Energy)
			}
			for _, a := range []float64{v.Emotion.Valence, v.Emotion.Arousal, v.Emotion.Dominance} {
				if a < -1 || a > 1 {
					t.Fatalf("tick %d voxel %d emotion %+v", i, v.ID, v.Emotion)
				}
			}
		})
	}
	assert.LessOrEqual(t, s.Len(), s.Capacity())
	assert.InDelta(t, 20.0, s.Time(), 1e-9)
	assert.Equal(t, int64(600), s.TickCount())
}

func TestTickParallelMatchesSequential(t *testing.T) {
	build := func(threshold int) *Store {
		cfg := config.Default()
		cfg.World.MaxEntities = 3000
		cfg.Entity.ParallelThreshold = threshold
		s, err := New(cfg.World, cfg.Entity)
		require.NoError(t, err)
		_, err = s.Generate(11, systems.BoundsFromExtent(16, 6, 16), 1)
		require.NoError(t, err)
		return s
	}
	seq := build(0)
	par := build(1)

	for i := 0; i < 30; i++ {
		seq.Tick(1.0 / 60)
		par.Tick(1.0 / 60)
	}
	assert.Equal(t, seq.Digest(), par.Digest())
}

func TestTickIgnoresNonPositiveDT(t *testing.T) {
	s := newTestStore(t, 4)
	spawnLine(t, s, 4, 3)
	before := s.Digest()
	assert.Zero(t, s.Tick(0))
	assert.Zero(t, s.Tick(-1))
	assert.Equal(t, before, s.Digest())
}

func TestGenerateDeterministic(t *testing.T) {
	bounds := systems.BoundsFromExtent(10, 6, 10)
	a := newTestStore(t, 5000)
	b := newTestStore(t, 5000)
	c := newTestStore(t, 5000)

	na, err := a.Generate(3, bounds, 0.8)
	require.NoError(t, err)
	nb, err := b.Generate(3, bounds, 0.8)
	require.NoError(t, err)
	_, err = c.Generate(4, bounds, 0.8)
	require.NoError(t, err)

	assert.Equal(t, na, nb)
	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestGenerateStopsAtCapacity(t *testing.T) {
	s := newTestStore(t, 25)
	n, err := s.Generate(1, systems.BoundsFromExtent(10, 6, 10), 1)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, 25, s.Len())
}

func TestGenerateCorrelatesNeighbours(t *testing.T) {
	s := newTestStore(t, 10000)
	_, err := s.Generate(5, systems.BoundsFromExtent(20, 6, 20), 1)
	require.NoError(t, err)

	byPos := make(map[components.Position]float64)
	var views []View
	s.Scan(func(v View) {
		byPos[v.Pos] = v.Energy
		views = append(views, v)
	})

	// Adjacent cells differ far less than arbitrary pairs
	var near, far float64
	var nearN, farN int
	for i, v := range views {
		right := v.Pos
		right.X++
		if e, ok := byPos[right]; ok {
			near += math.Abs(v.Energy - e)
			nearN++
		}
		o := views[(i*7919)%len(views)]
		far += math.Abs(v.Energy - o.Energy)
		farN++
	}
	require.Positive(t, nearN)
	assert.Less(t, near/float64(nearN), far/float64(farN))
}

func TestGenerateErrors(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Generate(1, systems.BoundsFromExtent(4, 4, 4), 1)
	assert.ErrorIs(t, err, ErrZeroCapacity)

	s = newTestStore(t, 10)
	_, err = s.Generate(1, systems.Bounds{Min: components.Position{X: 1}}, 1)
	assert.Error(t, err)
}

func TestExportImportPreservesDigest(t *testing.T) {
	s := newTestStore(t, 2000)
	_, err := s.Generate(9, systems.BoundsFromExtent(8, 6, 8), 0.7)
	require.NoError(t, err)
	require.NoError(t, s.EmbedConcept(3, "ember"))
	require.NoError(t, s.Kill(4))
	s.SetTrauma(true)
	s.Tick(0.1)

	st := s.ExportStates()
	restored := newTestStore(t, 2000)
	require.NoError(t, restored.ImportStates(st))

	assert.Equal(t, s.Digest(), restored.Digest())
	assert.Equal(t, s.Len(), restored.Len())

	small := newTestStore(t, 10)
	assert.ErrorIs(t, small.ImportStates(st), ErrAtCapacity)
}

func TestSetGenotypeClamps(t *testing.T) {
	s := newTestStore(t, 2)
	spawnLine(t, s, 1, 1)

	g, ok := s.Genotype(0)
	require.True(t, ok)
	g.Vitals.Energy = -5
	g.Vitals.Resonance = 10
	require.NoError(t, s.SetGenotype(0, g))

	got, _ := s.Genotype(0)
	assert.Zero(t, got.Vitals.Energy)
	assert.Equal(t, 1.5, got.Vitals.Resonance)
	assert.ErrorIs(t, s.SetGenotype(7, g), ErrNotFound)
}

func TestNearest(t *testing.T) {
	s := newTestStore(t, 10)
	spawnLine(t, s, 10, 1)
	id, ok := s.Nearest(components.Position{X: 6.2})
	require.True(t, ok)
	assert.Equal(t, uint32(6), id)
}

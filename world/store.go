// Package world owns the fixed-capacity voxel population on top of an ark ECS world.
package world

import (
	"errors"
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/systems"
)

var (
	// ErrAtCapacity is returned by Spawn when no slot is free. It is an expected outcome.
	ErrAtCapacity = errors.New("world: at capacity")
	// ErrNotFound is returned for ids that do not name a live voxel.
	ErrNotFound = errors.New("world: voxel not found")
	// ErrZeroCapacity is returned by Generate when the store cannot hold any voxel.
	ErrZeroCapacity = errors.New("world: capacity is zero")
)

// View is a read-only copy of one voxel's observable state.
type View struct {
	ID        uint32
	Pos       components.Position
	Energy    float64
	Emotion   components.Emotion
	Resonance float64
	Flags     components.Flags
}

// SpawnAttributes describes a voxel created by Spawn. Values are clamped on insert.
type SpawnAttributes struct {
	Energy     float64
	Emotion    components.Emotion
	Resonance  float64
	Perception [components.NumPerceptionChannels]float32
	Velocity   [3]int8
	Material   uint8
	Density    uint8
	Concepts   []components.Concept
}

// Store holds every voxel. Ids are stable slot indices; voxels are never removed,
// only flagged dead, so ids stay valid for the life of the store.
type Store struct {
	cfg    config.WorldConfig
	params systems.VitalsParams
	bounds systems.Bounds

	world *ecs.World

	// Entity mapper covering all seven voxel components
	mapper *ecs.Map7[
		components.Position,
		components.Vitals,
		components.Perception,
		components.Physics,
		components.Genome,
		components.Echo,
		components.Meta,
	]
	filter *ecs.Filter7[
		components.Position,
		components.Vitals,
		components.Perception,
		components.Physics,
		components.Genome,
		components.Echo,
		components.Meta,
	]

	// Individual component mappers for lookups by id
	posMap  *ecs.Map[components.Position]
	vitMap  *ecs.Map[components.Vitals]
	percMap *ecs.Map[components.Perception]
	physMap *ecs.Map[components.Physics]
	genMap  *ecs.Map[components.Genome]
	echoMap *ecs.Map[components.Echo]
	metaMap *ecs.Map[components.Meta]

	slots    []ecs.Entity // index == voxel id
	live     int
	capacity int

	parallelThreshold int

	time      float64
	tick      int64
	trauma    bool
	stimulus  uint32
	scratch   []systems.Voxel
	workerOut []int
}

// New creates an empty store sized by cfg.MaxEntities.
func New(cfg config.WorldConfig, entity config.EntityConfig) (*Store, error) {
	if cfg.MaxEntities < 0 {
		return nil, fmt.Errorf("world: negative capacity %d", cfg.MaxEntities)
	}
	if entity.EnergyCeiling <= 0 {
		return nil, fmt.Errorf("world: energy ceiling must be positive, got %g", entity.EnergyCeiling)
	}
	s := &Store{
		cfg:      cfg,
		params:   systems.NewVitalsParams(entity),
		bounds:   systems.BoundsFromExtent(cfg.ExtentX, cfg.ExtentY, cfg.ExtentZ),
		capacity: cfg.MaxEntities,

		parallelThreshold: entity.ParallelThreshold,
	}
	s.reset(s.bounds)
	return s, nil
}

// reset discards every voxel and rebuilds the ECS world.
func (s *Store) reset(bounds systems.Bounds) {
	world := ecs.NewWorld()
	s.world = world
	s.mapper = ecs.NewMap7[
		components.Position,
		components.Vitals,
		components.Perception,
		components.Physics,
		components.Genome,
		components.Echo,
		components.Meta,
	](world)
	s.filter = ecs.NewFilter7[
		components.Position,
		components.Vitals,
		components.Perception,
		components.Physics,
		components.Genome,
		components.Echo,
		components.Meta,
	](world)
	s.posMap = ecs.NewMap[components.Position](world)
	s.vitMap = ecs.NewMap[components.Vitals](world)
	s.percMap = ecs.NewMap[components.Perception](world)
	s.physMap = ecs.NewMap[components.Physics](world)
	s.genMap = ecs.NewMap[components.Genome](world)
	s.echoMap = ecs.NewMap[components.Echo](world)
	s.metaMap = ecs.NewMap[components.Meta](world)

	s.bounds = bounds
	s.slots = s.slots[:0]
	s.live = 0
	s.time = 0
	s.tick = 0
	s.trauma = false
	s.stimulus = 0
}

// Len returns the number of live voxels.
func (s *Store) Len() int { return s.live }

// Slots returns the number of occupied slots, live or dead.
func (s *Store) Slots() int { return len(s.slots) }

// Capacity returns the maximum number of slots.
func (s *Store) Capacity() int { return s.capacity }

// Bounds returns the world box.
func (s *Store) Bounds() systems.Bounds { return s.bounds }

// Ceiling returns the energy ceiling.
func (s *Store) Ceiling() float64 { return s.params.Ceiling }

// Time returns accumulated simulated seconds.
func (s *Store) Time() float64 { return s.time }

// TickCount returns the number of Tick calls since generation.
func (s *Store) TickCount() int64 { return s.tick }

// Trauma reports whether trauma mode is on.
func (s *Store) Trauma() bool { return s.trauma }

// SetTrauma switches trauma mode, which amplifies the tick drives.
func (s *Store) SetTrauma(on bool) { s.trauma = on }

// Spawn inserts a voxel at pos. When every slot is taken it returns ErrAtCapacity,
// unless dead-slot reclaim is enabled and a dead slot exists.
func (s *Store) Spawn(pos components.Position, attrs SpawnAttributes) (uint32, error) {
	vit, perc, phys, gen := s.buildAttributes(attrs)
	s.bounds.Clamp(&pos)

	if len(s.slots) < s.capacity {
		id := s.insert(pos, vit, perc, phys, gen)
		return id, nil
	}

	if !s.cfg.ReclaimDead {
		return 0, ErrAtCapacity
	}
	id, ok := s.firstDead()
	if !ok {
		return 0, ErrAtCapacity
	}

	e := s.slots[id]
	*s.posMap.Get(e) = pos
	*s.vitMap.Get(e) = vit
	*s.percMap.Get(e) = perc
	*s.physMap.Get(e) = phys
	*s.genMap.Get(e) = gen
	*s.echoMap.Get(e) = components.Echo{}
	*s.metaMap.Get(e) = components.Meta{ID: id, BornTick: s.tick, Flags: components.FlagAlive}
	s.live++
	return id, nil
}

// insert appends a new live voxel and returns its id. The caller checks capacity.
func (s *Store) insert(pos components.Position, vit components.Vitals, perc components.Perception, phys components.Physics, gen components.Genome) uint32 {
	id := uint32(len(s.slots))
	echo := components.Echo{}
	meta := components.Meta{ID: id, BornTick: s.tick, Flags: components.FlagAlive}
	e := s.mapper.NewEntity(&pos, &vit, &perc, &phys, &gen, &echo, &meta)
	s.slots = append(s.slots, e)
	s.live++
	return id
}

func (s *Store) buildAttributes(attrs SpawnAttributes) (components.Vitals, components.Perception, components.Physics, components.Genome) {
	vit := components.Vitals{
		Energy:    attrs.Energy,
		Emotion:   attrs.Emotion,
		Resonance: systems.ClampF64(attrs.Resonance, 0, s.params.ResonanceMax),
	}
	vit.ClampEnergy(s.params.Ceiling)
	vit.Emotion.Clamp()

	var perc components.Perception
	for i, v := range attrs.Perception {
		perc.SetChannel(i, v)
	}

	phys := components.Physics{Vel: attrs.Velocity}
	phys.SetMaterial(attrs.Material)
	phys.SetDensity(attrs.Density)

	gen := components.FromList(attrs.Concepts)
	return vit, perc, phys, gen
}

func (s *Store) firstDead() (uint32, bool) {
	for id, e := range s.slots {
		if !s.metaMap.Get(e).Flags.Live() {
			return uint32(id), true
		}
	}
	return 0, false
}

// Kill flags a live voxel dead. The slot keeps its id.
func (s *Store) Kill(id uint32) error {
	e, ok := s.liveEntity(id)
	if !ok {
		return fmt.Errorf("kill %d: %w", id, ErrNotFound)
	}
	meta := s.metaMap.Get(e)
	meta.Flags.Clear(components.FlagAlive)
	meta.Flags.Set(components.FlagDead)
	s.live--
	return nil
}

// liveEntity resolves id to its entity if the voxel is live.
func (s *Store) liveEntity(id uint32) (ecs.Entity, bool) {
	if int(id) >= len(s.slots) {
		return ecs.Entity{}, false
	}
	e := s.slots[id]
	if !s.world.Alive(e) || !s.metaMap.Get(e).Flags.Live() {
		return ecs.Entity{}, false
	}
	return e, true
}

// Entity returns a view of a live voxel.
func (s *Store) Entity(id uint32) (View, bool) {
	e, ok := s.liveEntity(id)
	if !ok {
		return View{}, false
	}
	return s.view(e), true
}

func (s *Store) view(e ecs.Entity) View {
	vit := s.vitMap.Get(e)
	meta := s.metaMap.Get(e)
	return View{
		ID:        meta.ID,
		Pos:       *s.posMap.Get(e),
		Energy:    vit.Energy,
		Emotion:   vit.Emotion,
		Resonance: vit.Resonance,
		Flags:     meta.Flags,
	}
}

// Scan calls fn for every live voxel in id order. fn must not modify the store.
func (s *Store) Scan(fn func(View)) {
	for _, e := range s.slots {
		if !s.metaMap.Get(e).Flags.Live() {
			continue
		}
		fn(s.view(e))
	}
}

// LiveIDs returns the ids of live voxels in ascending order.
func (s *Store) LiveIDs() []uint32 {
	ids := make([]uint32, 0, s.live)
	for id, e := range s.slots {
		if s.metaMap.Get(e).Flags.Live() {
			ids = append(ids, uint32(id))
		}
	}
	return ids
}

// Genome returns a copy of a live voxel's genome.
func (s *Store) Genome(id uint32) (components.Genome, bool) {
	e, ok := s.liveEntity(id)
	if !ok {
		return components.Genome{}, false
	}
	return *s.genMap.Get(e), true
}

// Genotype returns the heritable attributes of a live voxel.
func (s *Store) Genotype(id uint32) (components.Genotype, bool) {
	e, ok := s.liveEntity(id)
	if !ok {
		return components.Genotype{}, false
	}
	return components.Genotype{
		Vitals:     *s.vitMap.Get(e),
		Perception: *s.percMap.Get(e),
		Physics:    *s.physMap.Get(e),
		Genome:     *s.genMap.Get(e),
	}, true
}

// SetGenotype overwrites the heritable attributes of a live voxel, clamping them first.
func (s *Store) SetGenotype(id uint32, g components.Genotype) error {
	e, ok := s.liveEntity(id)
	if !ok {
		return fmt.Errorf("set genotype %d: %w", id, ErrNotFound)
	}

	g.Vitals.ClampEnergy(s.params.Ceiling)
	g.Vitals.Emotion.Clamp()
	g.Vitals.Resonance = systems.ClampF64(g.Vitals.Resonance, 0, s.params.ResonanceMax)
	for i := range g.Perception.Channels {
		g.Perception.SetChannel(i, g.Perception.Channel(i))
	}
	if g.Genome.Count > components.MaxConcepts {
		g.Genome = components.FromList(g.Genome.List()[:components.MaxConcepts])
	}

	*s.vitMap.Get(e) = g.Vitals
	*s.percMap.Get(e) = g.Perception
	*s.physMap.Get(e) = g.Physics
	*s.genMap.Get(e) = g.Genome
	return nil
}

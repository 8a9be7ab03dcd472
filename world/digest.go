package world

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/mlange-42/ark/ecs"
	"github.com/x448/float16"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/systems"
)

// VoxelState is the serializable form of one slot, live or dead.
type VoxelState struct {
	ID          uint32                                   `json:"id"`
	Pos         components.Position                      `json:"pos"`
	Vitals      components.Vitals                        `json:"vitals"`
	Perception  [components.NumPerceptionChannels]uint16 `json:"perception"`
	Vel         [3]int8                                  `json:"vel"`
	Temperature int8                                     `json:"temperature"`
	Packed      uint8                                    `json:"packed"`
	Concepts    []components.Concept                     `json:"concepts,omitempty"`
	EchoSource  uint32                                   `json:"echo_source,omitempty"`
	EchoValue   uint16                                   `json:"echo_value,omitempty"`
	BornTick    int64                                    `json:"born_tick"`
	Lifetime    float64                                  `json:"lifetime"`
	Starved     float64                                  `json:"starved,omitempty"`
	Flags       components.Flags                         `json:"flags"`
}

// StoreState is the full serializable state of a store.
type StoreState struct {
	Time     float64        `json:"time"`
	Tick     int64          `json:"tick"`
	Trauma   bool           `json:"trauma"`
	Stimulus uint32         `json:"stimulus"`
	Bounds   systems.Bounds `json:"bounds"`
	Voxels   []VoxelState   `json:"voxels"`
}

// ExportStates copies every slot in id order.
func (s *Store) ExportStates() StoreState {
	st := StoreState{
		Time:     s.time,
		Tick:     s.tick,
		Trauma:   s.trauma,
		Stimulus: s.stimulus,
		Bounds:   s.bounds,
		Voxels:   make([]VoxelState, 0, len(s.slots)),
	}
	for _, e := range s.slots {
		st.Voxels = append(st.Voxels, s.voxelState(e))
	}
	return st
}

func (s *Store) voxelState(e ecs.Entity) VoxelState {
	perc := s.percMap.Get(e)
	phys := s.physMap.Get(e)
	echo := s.echoMap.Get(e)
	meta := s.metaMap.Get(e)

	vs := VoxelState{
		ID:          meta.ID,
		Pos:         *s.posMap.Get(e),
		Vitals:      *s.vitMap.Get(e),
		Vel:         phys.Vel,
		Temperature: phys.Temperature,
		Packed:      phys.Packed,
		Concepts:    s.genMap.Get(e).List(),
		EchoSource:  echo.Source,
		EchoValue:   echo.Value.Bits(),
		BornTick:    meta.BornTick,
		Lifetime:    meta.Lifetime,
		Starved:     meta.Starved,
		Flags:       meta.Flags,
	}
	for i, c := range perc.Channels {
		vs.Perception[i] = c.Bits()
	}
	return vs
}

// ImportStates replaces the population with st. Voxel ids must equal their index.
func (s *Store) ImportStates(st StoreState) error {
	if len(st.Voxels) > s.capacity {
		return fmt.Errorf("import: %d voxels exceed capacity %d: %w", len(st.Voxels), s.capacity, ErrAtCapacity)
	}
	if st.Bounds.Empty() {
		return fmt.Errorf("import: empty bounds %+v", st.Bounds)
	}
	for i, vs := range st.Voxels {
		if vs.ID != uint32(i) {
			return fmt.Errorf("import: voxel at index %d has id %d", i, vs.ID)
		}
	}

	s.reset(st.Bounds)
	for _, vs := range st.Voxels {
		vit := vs.Vitals
		vit.ClampEnergy(s.params.Ceiling)
		vit.Emotion.Clamp()

		var perc components.Perception
		for i, bits := range vs.Perception {
			perc.Channels[i] = float16.Frombits(bits)
		}
		phys := components.Physics{Vel: vs.Vel, Temperature: vs.Temperature, Packed: vs.Packed}

		id := s.insert(vs.Pos, vit, perc, phys, components.FromList(vs.Concepts))
		e := s.slots[id]
		*s.echoMap.Get(e) = components.Echo{Source: vs.EchoSource, Value: float16.Frombits(vs.EchoValue)}
		meta := s.metaMap.Get(e)
		meta.BornTick = vs.BornTick
		meta.Lifetime = vs.Lifetime
		meta.Starved = vs.Starved
		meta.Flags = vs.Flags
		if !vs.Flags.Live() {
			s.live--
		}
	}
	s.time = st.Time
	s.tick = st.Tick
	s.trauma = st.Trauma
	s.stimulus = st.Stimulus
	return nil
}

// Digest hashes the canonical little-endian encoding of every slot in id order,
// together with the clock and trauma mode. Equal digests mean equal state.
func (s *Store) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte
	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	putF := func(v float64) { put64(math.Float64bits(v)) }
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		_, _ = d.Write(buf[:4])
	}

	putF(s.time)
	put64(uint64(s.tick))
	if s.trauma {
		_, _ = d.Write([]byte{1})
	} else {
		_, _ = d.Write([]byte{0})
	}
	put64(uint64(len(s.slots)))

	for _, e := range s.slots {
		vs := s.voxelState(e)
		put32(vs.ID)
		put32(math.Float32bits(vs.Pos.X))
		put32(math.Float32bits(vs.Pos.Y))
		put32(math.Float32bits(vs.Pos.Z))
		putF(vs.Vitals.Energy)
		putF(vs.Vitals.Emotion.Valence)
		putF(vs.Vitals.Emotion.Arousal)
		putF(vs.Vitals.Emotion.Dominance)
		putF(vs.Vitals.Resonance)
		for _, c := range vs.Perception {
			binary.LittleEndian.PutUint16(buf[:2], c)
			_, _ = d.Write(buf[:2])
		}
		_, _ = d.Write([]byte{byte(vs.Vel[0]), byte(vs.Vel[1]), byte(vs.Vel[2]), byte(vs.Temperature), vs.Packed, byte(vs.Flags)})
		put32(uint32(len(vs.Concepts)))
		for _, c := range vs.Concepts {
			put32(uint32(len(c)))
			_, _ = d.WriteString(string(c))
		}
		put32(vs.EchoSource)
		binary.LittleEndian.PutUint16(buf[:2], vs.EchoValue)
		_, _ = d.Write(buf[:2])
		put64(uint64(vs.BornTick))
		putF(vs.Lifetime)
		putF(vs.Starved)
	}
	return d.Sum64()
}

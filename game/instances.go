package game

import (
	"encoding/binary"
	"math"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/systems"
	"github.com/pthm-cable/voxelcore/world"
)

// InstanceSize is the encoded size of one Instance in bytes.
const InstanceSize = 32

// Instance is the per-voxel render record.
//
// Encoded layout, eight little-endian float32 values:
//
//	offset  0: pos.x
//	offset  4: pos.y
//	offset  8: pos.z
//	offset 12: scale
//	offset 16: color.r
//	offset 20: color.g
//	offset 24: color.b
//	offset 28: energy
type Instance struct {
	Pos    components.Position
	Scale  float32
	Color  systems.RGB
	Energy float32
}

// Instances returns one record per live voxel in id order, as of the last Step.
// The slice is reused by the next Step; copy it to keep it.
func (s *Simulation) Instances() []Instance { return s.instances }

func (s *Simulation) rebuildInstances() {
	scale := s.cfg.Derived.SnapshotScale
	ceiling := s.store.Ceiling()
	s.instances = s.instances[:0]
	s.store.Scan(func(v world.View) {
		s.instances = append(s.instances, Instance{
			Pos:    v.Pos,
			Scale:  scale,
			Color:  systems.VoxelColor(v.Energy, ceiling, v.Flags),
			Energy: float32(v.Energy),
		})
	})
}

// EncodeInstances appends the encoding of inst to dst and returns the extended slice.
func EncodeInstances(dst []byte, inst []Instance) []byte {
	for _, in := range inst {
		for _, f := range [8]float32{
			in.Pos.X, in.Pos.Y, in.Pos.Z, in.Scale,
			in.Color.R, in.Color.G, in.Color.B, in.Energy,
		} {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
		}
	}
	return dst
}

// DecodeInstances parses records written by EncodeInstances. Trailing bytes
// that do not form a whole record are ignored.
func DecodeInstances(src []byte) []Instance {
	out := make([]Instance, 0, len(src)/InstanceSize)
	for len(src) >= InstanceSize {
		var f [8]float32
		for i := range f {
			f[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
		out = append(out, Instance{
			Pos:    components.Position{X: f[0], Y: f[1], Z: f[2]},
			Scale:  f[3],
			Color:  systems.RGB{R: f[4], G: f[5], B: f[6]},
			Energy: f[7],
		})
		src = src[InstanceSize:]
	}
	return out
}

package world

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/voxelcore/systems"
)

// minChunk keeps worker chunks large enough to amortize goroutine startup.
const minChunk = 512

// Tick advances every live voxel by dt seconds and returns how many starved.
// Voxels are independent within a tick, so large populations are split across workers.
func (s *Store) Tick(dt float64) int {
	if dt <= 0 {
		return 0
	}
	s.time += dt
	s.tick++

	// 1. Gather component pointers for live voxels. Pointers stay valid because
	// no entity is created or removed until the pass finishes.
	s.scratch = s.scratch[:0]
	query := s.filter.Query()
	for query.Next() {
		pos, vit, _, phys, _, echo, meta := query.Get()
		if !meta.Flags.Live() {
			continue
		}
		s.scratch = append(s.scratch, systems.Voxel{Pos: pos, Vitals: vit, Phys: phys, Echo: echo, Meta: meta})
	}

	// 2. Update, in parallel above the threshold
	var died int
	if s.parallelThreshold <= 0 || len(s.scratch) < s.parallelThreshold {
		died = s.tickRange(s.scratch, dt)
	} else {
		died = s.tickParallel(dt)
	}

	s.live -= died
	return died
}

func (s *Store) tickRange(voxels []systems.Voxel, dt float64) int {
	var died int
	for _, v := range voxels {
		if systems.UpdateVoxel(&s.params, v, s.bounds, s.time, dt, s.trauma) {
			died++
		}
	}
	return died
}

func (s *Store) tickParallel(dt float64) int {
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(s.scratch) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	chunks := (len(s.scratch) + chunk - 1) / chunk

	if cap(s.workerOut) < chunks {
		s.workerOut = make([]int, chunks)
	}
	out := s.workerOut[:chunks]

	var g errgroup.Group
	g.SetLimit(workers)
	for c := 0; c < chunks; c++ {
		start := c * chunk
		end := min(start+chunk, len(s.scratch))
		g.Go(func() error {
			out[c] = s.tickRange(s.scratch[start:end], dt)
			return nil
		})
	}
	_ = g.Wait()

	var died int
	for _, n := range out {
		died += n
	}
	return died
}

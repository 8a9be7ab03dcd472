package game

import (
	"github.com/pthm-cable/voxelcore/telemetry"
	"github.com/pthm-cable/voxelcore/world"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Simulation) flushTelemetry() {
	tick := s.store.TickCount()
	if !s.collector.ShouldFlush(tick) {
		return
	}

	stats := s.collector.Flush(tick, telemetry.Sample{
		Metrics:  s.metrics,
		Energies: s.sampleEnergies(),
		Mind:     s.mind.State(),
		Guard:    s.guard.Telemetry(),
	})
	perfStats := s.perfCollector.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		s.logger.Info("stats", "window", stats)
		s.logger.Info("perf", "perf", perfStats)
	}

	if err := s.outputManager.WriteTelemetry(stats); err != nil {
		s.logger.Error("failed to write telemetry", "error", err)
	}
	if err := s.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarks.Check(stats) {
		if s.logStats {
			bm.LogBookmark(s.logger)
		}
		if err := s.outputManager.WriteBookmark(bm); err != nil {
			s.logger.Error("failed to write bookmark", "error", err)
		}
		if s.snapshotDir != "" {
			s.saveSnapshot(&bm)
		}
	}
}

// sampleEnergies collects live voxel energies for percentile calculation.
func (s *Simulation) sampleEnergies() []float64 {
	s.energies = s.energies[:0]
	s.store.Scan(func(v world.View) {
		s.energies = append(s.energies, v.Energy)
	})
	return s.energies
}

// saveSnapshot creates and saves a snapshot to disk.
func (s *Simulation) saveSnapshot(bm *telemetry.Bookmark) {
	snap := s.CreateSnapshot()
	snap.Bookmark = bm

	path, err := telemetry.SaveSnapshot(snap, s.snapshotDir)
	if err != nil {
		s.logger.Error("failed to save snapshot", "error", err)
		return
	}
	s.logger.Info("snapshot saved", "path", path, "tick", snap.Tick)
}

// CreateSnapshot captures the current store state and controller scalars.
func (s *Simulation) CreateSnapshot() *telemetry.Snapshot {
	snap := telemetry.NewSnapshot(s.store, s.seed, s.outputManager.RunID())
	mind := s.mind.State()
	snap.Mind = &mind
	return snap
}

// Package game sequences the entity store, metrics, decision controller,
// reliability guard and evolution engine into frames.
package game

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/voxelcore/archguard"
	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/consciousness"
	"github.com/pthm-cable/voxelcore/evolution"
	"github.com/pthm-cable/voxelcore/metrics"
	"github.com/pthm-cable/voxelcore/telemetry"
	"github.com/pthm-cable/voxelcore/world"
)

// Seed offsets keep the component random streams independent.
const (
	controllerSeedOffset = 1
	evolutionSeedOffset  = 2
)

// Options configures a Simulation beyond the config file.
type Options struct {
	Seed        int64
	LogStats    bool    // Log window and perf stats at each flush
	SnapshotDir string  // Save a snapshot on every bookmark when set
	OutputDir   string  // CSV telemetry directory, empty disables output
	Density     float64 // Generation density override, 0 uses world.density
	Empty       bool    // Skip generation and start with no voxels

	Logger        *slog.Logger
	StatsCallback func(telemetry.WindowStats)
}

// StepReport summarizes one frame.
type StepReport struct {
	Died      int
	Thought   bool
	Pulse     ApplyReport
	Evolved   bool
	Evolution evolution.StepResult
	Elapsed   time.Duration
}

// Simulation owns every component and runs them in a fixed order each frame.
// It is driven from a single goroutine; only the guard is shared.
type Simulation struct {
	cfg    *config.Config
	seed   int64
	logger *slog.Logger

	store *world.Store
	agg   *metrics.Aggregator
	mind  *consciousness.Controller
	evo   *evolution.Engine
	guard *archguard.Guard

	handlers map[consciousness.ActionKind]handler

	metrics     metrics.WorldMetrics
	thinkIn     float64
	lastSeq     uint64 // ApplyPulse callers
	lastThought uint64 // own controller
	instances   []Instance

	// Telemetry
	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	bookmarks     *telemetry.BookmarkDetector
	outputManager *telemetry.OutputManager
	statsCallback func(telemetry.WindowStats)
	logStats      bool
	snapshotDir   string
	energies      []float64
}

// NewSimulation builds the components from cfg and generates the world from
// opts.Seed. guard may be nil, in which case a new one is created; pass a guard
// to share its telemetry with other goroutines.
func NewSimulation(cfg *config.Config, guard *archguard.Guard, opts Options) (*Simulation, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = archguard.NewGuard(cfg.ArchGuard, logger)
	}

	store, err := world.New(cfg.World, cfg.Entity)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}

	s := &Simulation{
		cfg:    cfg,
		seed:   opts.Seed,
		logger: logger,
		store:  store,
		agg:    metrics.NewAggregator(cfg.Metrics, cfg.Entity.EnergyCeiling),
		mind:   consciousness.New(cfg.Consciousness, opts.Seed+controllerSeedOffset, guard),
		evo:    evolution.New(cfg.Evolution, opts.Seed+evolutionSeedOffset),
		guard:  guard,

		handlers: defaultHandlers(),

		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Physics.DT),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks:     telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistorySize, cfg.Bookmarks),
		statsCallback: opts.StatsCallback,
		logStats:      opts.LogStats,
		snapshotDir:   opts.SnapshotDir,
	}

	if !opts.Empty {
		density := opts.Density
		if density <= 0 {
			density = cfg.World.Density
		}
		n, err := store.Generate(opts.Seed, store.Bounds(), density)
		if err != nil {
			return nil, fmt.Errorf("new simulation: %w", err)
		}
		logger.Info("world generated", "seed", opts.Seed, "voxels", n, "capacity", store.Capacity())
	}

	s.outputManager, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	if err := s.outputManager.WriteConfig(cfg); err != nil {
		s.outputManager.Close()
		return nil, fmt.Errorf("new simulation: %w", err)
	}

	s.metrics = s.agg.Compute(store)
	s.thinkIn = s.mind.NextInterval()
	s.rebuildInstances()
	return s, nil
}

// Step runs one frame of dt simulated seconds:
// tick, metrics, decision, evolution, snapshot, telemetry.
func (s *Simulation) Step(dt float64) StepReport {
	var rep StepReport
	s.perfCollector.StartStep()

	// 1. Advance every voxel
	s.perfCollector.StartPhase(telemetry.PhaseTick)
	rep.Died = s.store.Tick(dt)
	s.collector.RecordDeaths(rep.Died)

	// 2. Aggregate
	s.perfCollector.StartPhase(telemetry.PhaseMetrics)
	s.metrics = s.agg.Compute(s.store)

	// 3. Think on the jittered cadence and apply the pulse through the guard
	s.perfCollector.StartPhase(telemetry.PhaseDecision)
	if dt > 0 {
		s.thinkIn -= dt
	}
	if s.thinkIn <= 0 {
		s.thinkIn = s.mind.NextInterval()
		rep.Thought = true
		rep.Pulse = s.think()
	}

	// 4. Evolve on its own cadence
	s.perfCollector.StartPhase(telemetry.PhaseEvolution)
	if s.evo.Advance(dt) {
		rep.Evolved = true
		rep.Evolution = s.evo.Step(s.store)
		s.collector.RecordEvolution(rep.Evolution)
		s.logger.Debug("evolution step", "result", rep.Evolution)
	}

	// 5. Render snapshot
	s.perfCollector.StartPhase(telemetry.PhaseSnapshot)
	s.rebuildInstances()

	// 6. Telemetry
	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	rep.Elapsed = s.perfCollector.EndStep()
	if budget := s.cfg.Physics.FrameBudget; budget > 0 && rep.Elapsed.Seconds() > budget {
		s.logger.Warn("slow frame",
			"tick", s.store.TickCount(),
			"elapsed_us", rep.Elapsed.Microseconds(),
			"budget_us", int64(budget*1e6),
			"voxels", s.store.Len(),
		)
	}
	return rep
}

// think runs one decision cycle. A controller error is counted against the
// breaker and the cycle produces no actions.
func (s *Simulation) think() ApplyReport {
	now := s.store.Time()
	pulse, err := s.mind.Think(s.metrics)
	if err != nil {
		s.guard.ReportControllerError(now, err)
		return ApplyReport{}
	}
	s.guard.ObservePulse(now, pulse.Log())

	rep, err := s.applyPulse(pulse, &s.lastThought)
	if err != nil {
		s.logger.Error("apply pulse", "seq", pulse.Seq(), "error", err)
	}
	return rep
}

// Spawn inserts a voxel and records it in telemetry.
func (s *Simulation) Spawn(pos components.Position, attrs world.SpawnAttributes) (uint32, error) {
	id, err := s.store.Spawn(pos, attrs)
	if err != nil {
		return 0, err
	}
	s.collector.RecordSpawn()
	return id, nil
}

// Store returns the entity store. Callers must not use it concurrently with Step.
func (s *Simulation) Store() *world.Store { return s.store }

// Guard returns the reliability guard, which is safe to read from any goroutine.
func (s *Simulation) Guard() *archguard.Guard { return s.guard }

// Metrics returns the metrics computed in the last frame.
func (s *Simulation) Metrics() metrics.WorldMetrics { return s.metrics }

// Mind returns a copy of the controller state.
func (s *Simulation) Mind() consciousness.State { return s.mind.State() }

// Generation returns the number of evolution steps taken.
func (s *Simulation) Generation() int { return s.evo.Generation() }

// Tick returns the number of frames stepped.
func (s *Simulation) Tick() int64 { return s.store.TickCount() }

// Seed returns the generation seed.
func (s *Simulation) Seed() int64 { return s.seed }

// RunID returns the telemetry run id, or "" when output is disabled.
func (s *Simulation) RunID() string { return s.outputManager.RunID() }

// Output returns the telemetry output manager, or nil when output is disabled.
func (s *Simulation) Output() *telemetry.OutputManager { return s.outputManager }

// Close flushes and closes telemetry output.
func (s *Simulation) Close() error {
	if err := s.outputManager.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// Restore replaces the store contents with a snapshot, and the controller
// state when the snapshot carries one.
func (s *Simulation) Restore(snap *telemetry.Snapshot) error {
	if snap == nil {
		return errors.New("restore: nil snapshot")
	}
	if err := snap.Restore(s.store); err != nil {
		return err
	}
	if snap.Mind != nil {
		if err := s.mind.SetState(*snap.Mind); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	s.metrics = s.agg.Compute(s.store)
	s.rebuildInstances()
	return nil
}

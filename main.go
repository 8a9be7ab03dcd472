package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/voxelcore/archguard"
	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/game"
	"github.com/pthm-cable/voxelcore/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for bookmark snapshots")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	restore := flag.String("restore", "", "Start from a snapshot file instead of generating")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	dt := flag.Float64("dt", 0, "Seconds per tick (0 = use config)")
	exportInterval := flag.Duration("export-interval", 0, "Guard export interval (0 = use config)")
	realtime := flag.Bool("realtime", false, "Pace ticks to wall-clock time")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// CLI overrides
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *dt > 0 {
		cfg.Physics.DT = *dt
	}
	interval := *exportInterval
	if interval <= 0 {
		interval = time.Duration(cfg.Telemetry.ExportInterval * float64(time.Second))
	}

	var snap *telemetry.Snapshot
	if *restore != "" {
		var err error
		if snap, err = telemetry.LoadSnapshot(*restore); err != nil {
			slog.Error("failed to load snapshot", "path", *restore, "error", err)
			os.Exit(1)
		}
	}

	rngSeed := *seed
	switch {
	case snap != nil:
		rngSeed = snap.Seed
	case rngSeed == 0:
		rngSeed = time.Now().UnixNano()
	}

	guard := archguard.NewGuard(cfg.ArchGuard, logger)
	sim, err := game.NewSimulation(cfg, guard, game.Options{
		Seed:        rngSeed,
		LogStats:    *logStats,
		SnapshotDir: *snapshotDir,
		OutputDir:   *outputDir,
		Empty:       snap != nil,
		Logger:      logger,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	if snap != nil {
		if err := sim.Restore(snap); err != nil {
			slog.Error("failed to restore snapshot", "path", *restore, "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting simulation",
		"seed", rngSeed,
		"run_id", sim.RunID(),
		"voxels", sim.Store().Len(),
		"dt", cfg.Physics.DT,
		"max_ticks", *maxTicks,
		"export_interval", interval.String(),
	)

	g, ctx := errgroup.WithContext(ctx)
	simCtx, cancelExporter := context.WithCancel(ctx)

	exporter := telemetry.NewExporter(guard, interval, logger, sim.Output())
	g.Go(func() error {
		return exporter.Run(simCtx)
	})

	g.Go(func() error {
		defer cancelExporter()
		return run(ctx, sim, cfg.Physics.DT, *maxTicks, *realtime)
	})

	if err := g.Wait(); err != nil {
		slog.Error("simulation failed", "error", err)
	}

	m := sim.Metrics()
	slog.Info("simulation stopped",
		"tick", sim.Tick(),
		"time", sim.Store().Time(),
		"voxels", m.Count,
		"generation", sim.Generation(),
		"guard", guard.Telemetry(),
		"exports", exporter.Samples(),
	)
	if err := sim.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		os.Exit(1)
	}
}

// run steps the simulation until ctx is done or maxTicks is reached.
func run(ctx context.Context, sim *game.Simulation, dt float64, maxTicks int64, realtime bool) error {
	var pace <-chan time.Time
	if realtime {
		ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer ticker.Stop()
		pace = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sim.Step(dt)

		if maxTicks > 0 && sim.Tick() >= maxTicks {
			slog.Info("max ticks reached", "tick", sim.Tick())
			return nil
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-pace:
			}
		}
	}
}

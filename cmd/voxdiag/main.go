// Package main implements voxdiag, a command line tool that runs single store
// operations against a generated or restored world without the controller.
//
// Usage:
//
//	voxdiag generate --seed 7 --out world.json.zst
//	voxdiag affect --snapshot world.json.zst --mode ignite --radius 4 --delta 2
//	voxdiag run --snapshot world.json.zst --ticks 600
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/voxelcore/config"
	"github.com/pthm-cable/voxelcore/telemetry"
	"github.com/pthm-cable/voxelcore/world"
)

// evolutionSeedOffset matches the offset the simulation uses for its engine.
const evolutionSeedOffset = 2

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	seed       int64
	snapshot   string
	out        string
	verbose    bool
}

// env is the state a subcommand works on.
type env struct {
	cfg    *config.Config
	store  *world.Store
	seed   int64
	logger *slog.Logger
	out    io.Writer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "voxdiag",
		Short:         "Run voxel store operations from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	pf.Int64Var(&opts.seed, "seed", 1, "World generation seed")
	pf.StringVar(&opts.snapshot, "snapshot", "", "Start from this snapshot instead of generating")
	pf.StringVar(&opts.out, "out", "", "Write the resulting world to this snapshot file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(
		newGenerateCmd(opts),
		newAffectCmd(opts),
		newEmbedCmd(opts),
		newSpawnCmd(opts),
		newEvolveCmd(opts),
		newRunCmd(opts),
	)
	return root
}

// loadConfig reads the config and builds a logger for the command.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	w := io.Discard
	if o.verbose {
		w = cmd.ErrOrStderr()
	}
	return cfg, slog.New(slog.NewTextHandler(w, nil)), nil
}

// loadSnapshot reads --snapshot, or returns nil when it is not set.
func (o *options) loadSnapshot() (*telemetry.Snapshot, error) {
	if o.snapshot == "" {
		return nil, nil
	}
	snap, err := telemetry.LoadSnapshot(o.snapshot)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// setup builds the world: restored from --snapshot when given, generated from
// --seed otherwise. A restored world keeps the seed it was generated with.
func (o *options) setup(cmd *cobra.Command, generate bool) (*env, error) {
	cfg, logger, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := world.New(cfg.World, cfg.Entity)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, store: store, seed: o.seed, logger: logger, out: cmd.OutOrStdout()}

	snap, err := o.loadSnapshot()
	if err != nil {
		return nil, err
	}
	switch {
	case snap != nil:
		if err := snap.Restore(store); err != nil {
			return nil, fmt.Errorf("restore %s: %w", o.snapshot, err)
		}
		e.seed = snap.Seed
		logger.Info("world restored", "path", o.snapshot, "voxels", store.Len(), "tick", snap.Tick)
	case generate:
		n, err := store.Generate(o.seed, store.Bounds(), cfg.World.Density)
		if err != nil {
			return nil, err
		}
		logger.Info("world generated", "seed", o.seed, "voxels", n)
	}
	return e, nil
}

// save writes --out if set.
func (o *options) save(e *env, snap *telemetry.Snapshot) error {
	if o.out == "" {
		return nil
	}
	if snap == nil {
		snap = telemetry.NewSnapshot(e.store, e.seed, "")
	}
	if err := telemetry.WriteSnapshot(o.out, snap); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "snapshot: %s\n", o.out)
	return nil
}

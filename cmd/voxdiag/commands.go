package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/voxelcore/components"
	"github.com/pthm-cable/voxelcore/evolution"
	"github.com/pthm-cable/voxelcore/game"
	"github.com/pthm-cable/voxelcore/metrics"
	"github.com/pthm-cable/voxelcore/world"
)

func printMetrics(w io.Writer, m metrics.WorldMetrics) {
	fmt.Fprintf(w, "tick=%d time=%.3f voxels=%d\n", m.Tick, m.Time, m.Count)
	fmt.Fprintf(w, "energy mean=%.4f min=%.4f max=%.4f entropy=%.4f\n", m.MeanEnergy, m.MinEnergy, m.MaxEnergy, m.Entropy)
	fmt.Fprintf(w, "centroid=(%.2f, %.2f, %.2f) hot=%d cold=%d trauma=%t\n",
		m.Centroid.X, m.Centroid.Y, m.Centroid.Z, m.HotSpot.ID, m.ColdSpot.ID, m.Trauma)
}

func (e *env) metrics() metrics.WorldMetrics {
	return metrics.NewAggregator(e.cfg.Metrics, e.cfg.Entity.EnergyCeiling).Compute(e.store)
}

func addPositionFlags(cmd *cobra.Command, p *components.Position) {
	cmd.Flags().Float32Var(&p.X, "x", 0, "X coordinate")
	cmd.Flags().Float32Var(&p.Y, "y", 0, "Y coordinate")
	cmd.Flags().Float32Var(&p.Z, "z", 0, "Z coordinate")
}

func newGenerateCmd(opts *options) *cobra.Command {
	var density float64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a world from --seed and print its metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.snapshot != "" {
				return errors.New("generate does not take --snapshot")
			}
			e, err := opts.setup(cmd, false)
			if err != nil {
				return err
			}
			if density <= 0 {
				density = e.cfg.World.Density
			}
			n, err := e.store.Generate(e.seed, e.store.Bounds(), density)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "generated %d voxels (capacity %d, seed %d)\n", n, e.store.Capacity(), e.seed)
			fmt.Fprintf(e.out, "digest=%016x\n", e.store.Digest())
			printMetrics(e.out, e.metrics())
			return opts.save(e, nil)
		},
	}
	cmd.Flags().Float64Var(&density, "density", 0, "Fraction of terrain cells to fill (0 = use config)")
	return cmd
}

func newAffectCmd(opts *options) *cobra.Command {
	var (
		center components.Position
		radius float32
		delta  float64
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "affect",
		Short: "Apply a cluster effect around a point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := world.ParseClusterMode(mode)
			if err != nil {
				return err
			}
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			res := e.store.AffectCluster(center, radius, delta, m)
			fmt.Fprintf(e.out, "%s affected=%d clamped=%d clamp_ratio=%.3f\n", m, res.Affected, res.Clamped, res.ClampRatio())
			printMetrics(e.out, e.metrics())
			return opts.save(e, nil)
		},
	}
	addPositionFlags(cmd, &center)
	cmd.Flags().Float32Var(&radius, "radius", 3, "Cluster radius in world units")
	cmd.Flags().Float64Var(&delta, "delta", 1, "Energy delta magnitude")
	cmd.Flags().StringVar(&mode, "mode", "amplify", "One of amplify, dampen, ignite, calm")
	return cmd
}

func newEmbedCmd(opts *options) *cobra.Command {
	var (
		id      int64
		concept string
	)

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed a concept into a voxel genome",
		Long:  "Embed a concept into the voxel with --id, or into the most energetic voxel when --id is negative.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if concept == "" {
				return errors.New("--concept is required")
			}
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}

			target := uint32(id)
			if id < 0 {
				target, err = e.store.EmbedConceptStrongest(components.Concept(concept))
			} else {
				err = e.store.EmbedConcept(target, components.Concept(concept))
			}
			if err != nil {
				return err
			}

			g, _ := e.store.Genome(target)
			fmt.Fprintf(e.out, "voxel %d genome (%d/%d): %v\n", target, g.Len(), components.MaxConcepts, g.List())
			return opts.save(e, nil)
		},
	}
	cmd.Flags().Int64Var(&id, "id", -1, "Voxel id (negative = strongest voxel)")
	cmd.Flags().StringVar(&concept, "concept", "", "Concept token to embed")
	return cmd
}

func newSpawnCmd(opts *options) *cobra.Command {
	var (
		pos     components.Position
		energy  float64
		concept []string
		empty   bool
	)

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Insert one voxel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, !empty)
			if err != nil {
				return err
			}

			concepts := make([]components.Concept, len(concept))
			for i, c := range concept {
				concepts[i] = components.Concept(c)
			}
			id, err := e.store.Spawn(pos, world.SpawnAttributes{Energy: energy, Concepts: concepts})
			if errors.Is(err, world.ErrAtCapacity) {
				fmt.Fprintf(e.out, "at capacity (%d/%d)\n", e.store.Slots(), e.store.Capacity())
				return nil
			}
			if err != nil {
				return err
			}

			v, _ := e.store.Entity(id)
			fmt.Fprintf(e.out, "spawned %d at (%.2f, %.2f, %.2f) energy=%.4f live=%d\n",
				id, v.Pos.X, v.Pos.Y, v.Pos.Z, v.Energy, e.store.Len())
			return opts.save(e, nil)
		},
	}
	addPositionFlags(cmd, &pos)
	cmd.Flags().Float64Var(&energy, "energy", 6, "Initial energy, clamped to the ceiling")
	cmd.Flags().StringSliceVar(&concept, "concept", nil, "Concepts to seed the genome with")
	cmd.Flags().BoolVar(&empty, "empty", false, "Spawn into an empty world instead of a generated one")
	return cmd
}

func newEvolveCmd(opts *options) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Run evolution steps on a static world",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			eng := evolution.New(e.cfg.Evolution, e.seed+evolutionSeedOffset)
			for i := 0; i < steps; i++ {
				r := eng.Step(e.store)
				e.logger.Info("evolution step", "result", r)
				fmt.Fprintf(e.out, "gen=%d evaluated=%d targeted=%d offspring=%d mean=%.4f best=%.4f\n",
					r.Generation, r.Evaluated, r.Targeted, r.Offspring, r.MeanFitness, r.BestFitness)
			}
			fmt.Fprintf(e.out, "digest=%016x\n", e.store.Digest())
			return opts.save(e, nil)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "Number of steps")
	return cmd
}

func newRunCmd(opts *options) *cobra.Command {
	var ticks int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full frame loop for a number of ticks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			snap, err := opts.loadSnapshot()
			if err != nil {
				return err
			}

			seed := opts.seed
			if snap != nil {
				seed = snap.Seed
			}
			sim, err := game.NewSimulation(cfg, nil, game.Options{Seed: seed, Empty: snap != nil, Logger: logger})
			if err != nil {
				return err
			}
			defer sim.Close()
			if snap != nil {
				if err := sim.Restore(snap); err != nil {
					return err
				}
			}

			var died, thoughts int
			for i := int64(0); i < ticks; i++ {
				rep := sim.Step(cfg.Physics.DT)
				died += rep.Died
				if rep.Thought {
					thoughts++
				}
			}

			w := cmd.OutOrStdout()
			t := sim.Guard().Telemetry()
			fmt.Fprintf(w, "ran %d ticks: died=%d thoughts=%d generation=%d\n", ticks, died, thoughts, sim.Generation())
			fmt.Fprintf(w, "guard state=%s applied=%d rejected=%d failures=%d trips=%d\n",
				t.State, t.Applied, t.Rejected, t.Failures, t.Trips)
			printMetrics(w, sim.Metrics())

			if opts.out == "" {
				return nil
			}
			return opts.save(&env{store: sim.Store(), seed: seed, out: w}, sim.CreateSnapshot())
		},
	}
	cmd.Flags().Int64Var(&ticks, "ticks", 600, "Number of ticks to run")
	return cmd
}

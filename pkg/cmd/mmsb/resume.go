package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mmsb-sampler/pkg/mmsb"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
	"github.com/gilchrisn/mmsb-sampler/pkg/snapshot"
)

var (
	resumeConfigFile string
	resumeRunID      string
	resumeGraph      graphFlags
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue a run from its last snapshot",
	Long: `Continue a run from its last snapshot. The graph must be given exactly as
for the original run; the seed and K default to the snapshot's values.
Raise --max-iteration to go past the original limit.`,
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	registerConfigFlags(resumeCmd, &resumeConfigFile)
	resumeGraph.register(resumeCmd)
	resumeCmd.Flags().StringVar(&resumeRunID, "run", "", "Run id to resume (default: latest)")
}

func runResume(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, resumeConfigFile)
	if err != nil {
		return err
	}
	logger := config.CreateLogger()

	dir := config.SnapshotDir()
	if dir == "" {
		return fmt.Errorf("--snapshot-dir is required")
	}
	m, err := loadModel(dir, resumeRunID, logger)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("seed") {
		config.Set("sampler.random_seed", m.Seed)
	}
	if !cmd.Flags().Changed("k") {
		config.Set("model.k", m.K)
	}

	src := rng.NewSource(config.RandomSeed())
	g, err := loadNetwork(config, src, &resumeGraph, logger)
	if err != nil {
		return err
	}

	sampler, err := mmsb.NewSamplerFromSnapshot(g.net, config, src, m, logger)
	if err != nil {
		return err
	}
	return execute(cmd, config, g, sampler, logger)
}

func loadModel(dir, runID string, logger zerolog.Logger) (*snapshot.Model, error) {
	store, err := snapshot.Open(dir, snapshotCacheSize, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if runID == "" {
		return store.Latest()
	}
	return store.Load(runID)
}

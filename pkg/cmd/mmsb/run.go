package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mmsb-sampler/pkg/dataset"
	"github.com/gilchrisn/mmsb-sampler/pkg/mmsb"
	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/quality"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
	"github.com/gilchrisn/mmsb-sampler/pkg/snapshot"
	"github.com/gilchrisn/mmsb-sampler/pkg/trace"
)

// snapshotCacheSize is the number of pi rows kept decoded per store
const snapshotCacheSize = 1024

var (
	runConfigFile string
	runGraph      graphFlags
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit a model from a fresh random start",
	Long: `Fit a model from a fresh random start. Settings come from the defaults,
then the --config file, then explicit flags. Interrupting the run (Ctrl-C)
stops it between iterations; with --snapshot-dir set the chain can be
continued with "mmsb resume".`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	registerConfigFlags(runCmd, &runConfigFile)
	runGraph.register(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, runConfigFile)
	if err != nil {
		return err
	}
	logger := config.CreateLogger()

	src := rng.NewSource(config.RandomSeed())
	g, err := loadNetwork(config, src, &runGraph, logger)
	if err != nil {
		return err
	}

	sampler, err := mmsb.NewSampler(g.net, config, src, logger)
	if err != nil {
		return err
	}
	return execute(cmd, config, g, sampler, logger)
}

// loadedGraph is the fitted graph together with its source
type loadedGraph struct {
	data  *dataset.Data
	net   *network.Network
	truth []int
}

func loadNetwork(config *mmsb.Config, src *rng.Source, g *graphFlags, logger zerolog.Logger) (*loadedGraph, error) {
	data, truth, err := g.load(src, logger)
	if err != nil {
		return nil, err
	}
	net, err := data.Network(config.NetworkOptions(), src, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("network", net.String()).Msg("Network ready")
	return &loadedGraph{data: data, net: net, truth: truth}, nil
}

// execute runs sampler to completion or interruption and writes the
// configured outputs
func execute(cmd *cobra.Command, config *mmsb.Config, g *loadedGraph, sampler *mmsb.Sampler, logger zerolog.Logger) error {
	tracker, err := openTracker(config, sampler, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			logger.Error().Err(err).Msg("Trace file incomplete")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := sampler.RunContext(ctx)
	if err != nil {
		return err
	}

	if dir := config.SnapshotDir(); dir != "" {
		if err := saveSnapshot(dir, sampler, logger); err != nil {
			return err
		}
	}

	report := quality.Evaluate(result.Pi, g.net.TrainingEdges(), g.truth)
	logger.Info().
		Int("communities", report.Communities).
		Float64("modularity", report.Modularity).
		Msg("Hard assignment quality")

	if path := config.SummaryFile(); path != "" {
		summary := trace.NewSummary(g.data.Name, g.net.NumNodes(), config.StrategyName(), result)
		summary.Quality = &report
		if err := trace.WriteSummary(path, summary); err != nil {
			return err
		}
		logger.Info().Str("file", path).Msg("Summary written")
	}

	printResult(cmd, result, report)
	return nil
}

func saveSnapshot(dir string, sampler *mmsb.Sampler, logger zerolog.Logger) error {
	store, err := snapshot.Open(dir, snapshotCacheSize, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := sampler.Snapshot()
	if err != nil {
		return err
	}
	return errors.Wrap(store.Save(m), "saving snapshot")
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mmsb-sampler/pkg/dataset"
	"github.com/gilchrisn/mmsb-sampler/pkg/mmsb"
	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/quality"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
	"github.com/gilchrisn/mmsb-sampler/pkg/trace"
)

// graphFlags select the graph a run is fitted to
type graphFlags struct {
	dataset string
	file    string
	planted string
	pIn     float64
	pOut    float64
}

func (g *graphFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&g.dataset, "dataset", "d", "", "Dataset name ("+strings.Join(dataset.Names(), ", ")+")")
	fs.StringVarP(&g.file, "file", "f", "", "Dataset file")
	fs.StringVar(&g.planted, "planted", "", "Generate a planted partition graph: nodes,communities")
	fs.Float64Var(&g.pIn, "p-in", 0.3, "Link probability inside a planted community")
	fs.Float64Var(&g.pOut, "p-out", 0.01, "Link probability across planted communities")
}

// parsePlanted reads "nodes,communities"
func parsePlanted(spec string) (int, int, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("--planted wants nodes,communities, got %q", spec)
	}
	nodes, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, errors.Wrap(err, "--planted nodes")
	}
	communities, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, errors.Wrap(err, "--planted communities")
	}
	return nodes, communities, nil
}

// load returns the graph and, for planted graphs, the true community of
// every node
func (g *graphFlags) load(src *rng.Source, logger zerolog.Logger) (*dataset.Data, []int, error) {
	if g.planted != "" {
		nodes, communities, err := parsePlanted(g.planted)
		if err != nil {
			return nil, nil, err
		}
		data, labels, err := dataset.PlantedPartition{
			Nodes:       nodes,
			Communities: communities,
			PIn:         g.pIn,
			POut:        g.pOut,
		}.Generate(src)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().
			Int("nodes", data.NumNodes).
			Int("edges", len(data.Edges)).
			Int("communities", communities).
			Msg("Generated planted partition graph")
		return data, labels, nil
	}
	if g.file == "" {
		return nil, nil, fmt.Errorf("one of --file or --planted is required")
	}
	data, err := dataset.Load(g.dataset, g.file, logger)
	return data, nil, err
}

// overrides maps command line flags onto config keys. A flag only replaces
// the file or default value when it was given explicitly.
var overrides = []struct {
	flag string
	key  string
}{
	{"k", "model.k"},
	{"alpha", "model.alpha"},
	{"epsilon", "model.epsilon"},
	{"max-iteration", "sampler.max_iteration"},
	{"num-node-sample", "sampler.num_node_sample"},
	{"mini-batch-size", "sampler.mini_batch_size"},
	{"strategy", "sampler.strategy"},
	{"interval", "sampler.interval"},
	{"deterministic", "sampler.deterministic"},
	{"seed", "sampler.random_seed"},
	{"held-out-ratio", "network.held_out_ratio"},
	{"parallel", "performance.parallel"},
	{"workers", "performance.num_workers"},
	{"log-level", "logging.level"},
	{"trace", "output.trace_file"},
	{"summary", "output.summary_file"},
	{"snapshot-dir", "output.snapshot_dir"},
}

func registerConfigFlags(cmd *cobra.Command, configFile *string) {
	defaults := mmsb.NewConfig()
	fs := cmd.Flags()

	fs.StringVarP(configFile, "config", "c", "", "Config file (yaml, json or toml)")
	fs.Int("k", defaults.K(), "Number of communities")
	fs.Float64("alpha", defaults.Alpha(), "Membership prior")
	fs.Float64("epsilon", defaults.Epsilon(), "Background link probability")
	fs.Int("max-iteration", defaults.MaxIteration(), "Stop after this many iterations")
	fs.Int("num-node-sample", defaults.NumNodeSample(), "Neighbors sampled per node update")
	fs.Int("mini-batch-size", defaults.MiniBatchSize(), "Mini-batch size")
	fs.String("strategy", defaults.StrategyName(), "Mini-batch strategy: "+strategyList())
	fs.Int("interval", defaults.Interval(), "Evaluate held-out perplexity every this many iterations")
	fs.Bool("deterministic", defaults.Deterministic(), "Canonical iteration order for reproducible runs")
	fs.Int64("seed", defaults.RandomSeed(), "Random seed")
	fs.Float64("held-out-ratio", defaults.HeldOutRatio(), "Fraction of links held out for evaluation")
	fs.Bool("parallel", defaults.Parallel(), "Update phi rows in parallel")
	fs.Int("workers", defaults.NumWorkers(), "Parallel workers")
	fs.String("log-level", defaults.LogLevel(), "Log level")
	fs.String("trace", defaults.TraceFile(), "Append every evaluation to this JSON lines file")
	fs.String("summary", defaults.SummaryFile(), "Write a YAML run summary to this file")
	fs.String("snapshot-dir", defaults.SnapshotDir(), "Badger directory for resumable snapshots")
}

func strategyList() string {
	names := make([]string, 0, 4)
	for _, s := range []network.Strategy{
		network.RandomPair, network.RandomNode,
		network.StratifiedRandomPair, network.StratifiedRandomNode,
	} {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

// buildConfig layers defaults, the config file and explicit flags
func buildConfig(cmd *cobra.Command, configFile string) (*mmsb.Config, error) {
	config := mmsb.NewConfig()
	if configFile != "" {
		if err := config.LoadFromFile(configFile); err != nil {
			return nil, errors.Wrapf(err, "loading config %s", configFile)
		}
	}

	fs := cmd.Flags()
	for _, o := range overrides {
		f := fs.Lookup(o.flag)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "int":
			v, _ := fs.GetInt(o.flag)
			config.Set(o.key, v)
		case "int64":
			v, _ := fs.GetInt64(o.flag)
			config.Set(o.key, v)
		case "float64":
			v, _ := fs.GetFloat64(o.flag)
			config.Set(o.key, v)
		case "bool":
			v, _ := fs.GetBool(o.flag)
			config.Set(o.key, v)
		default:
			config.Set(o.key, f.Value.String())
		}
	}
	return config, nil
}

// openTracker attaches a trace writer when the config asks for one
func openTracker(config *mmsb.Config, s *mmsb.Sampler, logger zerolog.Logger) (*trace.Tracker, error) {
	if config.TraceFile() == "" {
		return nil, nil
	}
	tr, err := trace.NewTracker(config.TraceFile(), s.RunID())
	if err != nil {
		return nil, err
	}
	tr.Attach(s)
	logger.Info().Str("file", config.TraceFile()).Msg("Tracing evaluations")
	return tr, nil
}

func printResult(cmd *cobra.Command, result *mmsb.Result, report quality.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", result.RunID)
	fmt.Fprintf(out, "  steps:               %d\n", result.Steps)
	fmt.Fprintf(out, "  converged:           %v\n", result.Converged)
	if result.Interrupted {
		fmt.Fprintf(out, "  interrupted:         true\n")
	}
	fmt.Fprintf(out, "  perplexity:          %.6f\n", result.Perplexity)
	fmt.Fprintf(out, "  averaged perplexity: %.6f\n", result.AveragedPerplexity)
	fmt.Fprintf(out, "  test perplexity:     %.6f\n", result.TestPerplexity)
	fmt.Fprintf(out, "  communities used:    %d\n", report.Communities)
	fmt.Fprintf(out, "  modularity:          %.6f\n", report.Modularity)
	if report.NMI != nil {
		fmt.Fprintf(out, "  nmi vs planted:      %.6f\n", *report.NMI)
	}
	fmt.Fprintf(out, "  runtime:             %d ms\n", result.Statistics.RuntimeMS)
}

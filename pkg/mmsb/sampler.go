package mmsb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

// Graph is the graph store the sampler reads from
type Graph interface {
	NumNodes() int
	NumPieces() int
	LinkedEdges() network.EdgeSet
	HeldOutSet() network.EdgeMap
	TestSet() network.EdgeMap
	SampleMiniBatch(numPieces int, strategy network.Strategy) (*network.MiniBatch, error)
}

// Phase is the position of the sampler in its iteration state machine
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseSampleBatch
	PhaseUpdateNodes
	PhaseUpdatePi
	PhaseUpdateTheta
	PhaseEvaluate
	PhaseCheckStop
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseSampleBatch:
		return "sample_batch"
	case PhaseUpdateNodes:
		return "update_nodes"
	case PhaseUpdatePi:
		return "update_pi"
	case PhaseUpdateTheta:
		return "update_theta"
	case PhaseEvaluate:
		return "evaluate"
	case PhaseCheckStop:
		return "check_stop"
	case PhaseStopped:
		return "stopped"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// maxNeighborRounds bounds the accept/reject loop of neighbor sampling
const maxNeighborRounds = 1000

// Result represents the sampler output
type Result struct {
	RunID              string       `json:"run_id"`
	Steps              int          `json:"steps"`
	Converged          bool         `json:"converged"`
	Interrupted        bool         `json:"interrupted"`
	Perplexity         float64      `json:"perplexity"`
	AveragedPerplexity float64      `json:"averaged_perplexity"`
	TestPerplexity     float64      `json:"test_perplexity"`
	Beta               []float64    `json:"beta"`
	Pi                 *mat.Dense   `json:"-"`
	Evaluations        []Evaluation `json:"evaluations"`
	Statistics         Statistics   `json:"statistics"`
}

// Statistics contains sampler performance metrics
type Statistics struct {
	TotalIterations int        `json:"total_iterations"`
	NodesUpdated    int64      `json:"nodes_updated"`
	EdgesProcessed  int64      `json:"edges_processed"`
	RuntimeMS       int64      `json:"runtime_ms"`
	MemoryPeakMB    int64      `json:"memory_peak_mb"`
	Updater         string     `json:"updater"`
	Phases          PhaseTimes `json:"phases"`
}

// PhaseTimes accumulates the wall time spent in each part of an iteration
type PhaseTimes struct {
	SampleMiniBatch time.Duration `json:"sample_mini_batch"`
	SampleNeighbors time.Duration `json:"sample_neighbors"`
	UpdatePhi       time.Duration `json:"update_phi"`
	UpdatePi        time.Duration `json:"update_pi"`
	UpdateBeta      time.Duration `json:"update_beta"`
	Perplexity      time.Duration `json:"perplexity"`
}

// Sampler runs stochastic gradient Langevin dynamics for the mixed
// membership stochastic blockmodel
type Sampler struct {
	graph  Graph
	config *Config
	logger zerolog.Logger
	src    *rng.Source
	runID  string

	state    *State
	stepSize StepSize
	strategy network.Strategy
	updater  PhiUpdater
	monitor  *Monitor

	linked    network.EdgeSet
	heldOut   network.EdgeMap
	test      network.EdgeMap
	testEdges []network.LabeledEdge

	phiRand      *rng.Stream
	betaRand     *rng.Stream
	neighborRand *rng.Stream

	numNodeSample int
	maxIteration  int
	interval      int
	deterministic bool

	stepCount int
	phase     Phase
	converged bool

	started       time.Time
	elapsedBefore time.Duration
	stats         Statistics
	observers     []func(Evaluation)
}

// NewSampler draws the initial phi and theta and prepares a run over graph
func NewSampler(graph Graph, config *Config, src *rng.Source, logger zerolog.Logger) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	n := graph.NumNodes()
	if config.NumNodeSample() > n-1 {
		return nil, fmt.Errorf("%w: sampler.num_node_sample=%d exceeds the %d other nodes",
			ErrInvalidConfig, config.NumNodeSample(), n-1)
	}

	state, err := NewState(n, config.Hyper(), src, logger)
	if err != nil {
		return nil, err
	}
	return newSampler(graph, config, src, state, uuid.NewString(), 1, logger)
}

func newSampler(graph Graph, config *Config, src *rng.Source, state *State, runID string, step int, logger zerolog.Logger) (*Sampler, error) {
	stepSize, err := NewStepSize(config.StepSizeA(), config.StepSizeB(), config.StepSizeC())
	if err != nil {
		return nil, err
	}
	strategy, err := config.Strategy()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var updater PhiUpdater = SequentialUpdater{}
	if config.Parallel() {
		updater = ParallelUpdater{NumWorkers: config.NumWorkers(), ChunkSize: config.ChunkSize()}
	}

	s := &Sampler{
		graph:         graph,
		config:        config,
		logger:        logger,
		src:           src,
		runID:         runID,
		state:         state,
		stepSize:      stepSize,
		strategy:      strategy,
		updater:       updater,
		monitor:       NewMonitor(graph.HeldOutSet(), config.ConvergenceWindow(), config.ConvergenceSpan(), config.ConvergenceThreshold()),
		linked:        graph.LinkedEdges(),
		heldOut:       graph.HeldOutSet(),
		test:          graph.TestSet(),
		testEdges:     graph.TestSet().Labeled(),
		phiRand:       src.Stream(rng.StreamPhiUpdate),
		betaRand:      src.Stream(rng.StreamBetaUpdate),
		neighborRand:  src.Stream(rng.StreamNeighborSampler),
		numNodeSample: config.NumNodeSample(),
		maxIteration:  config.MaxIteration(),
		interval:      config.Interval(),
		deterministic: config.Deterministic(),
		stepCount:     step,
		phase:         PhaseRunning,
	}
	s.stats.Updater = updater.Name()
	return s, nil
}

// SetUpdater replaces the per-node phi engine
func (s *Sampler) SetUpdater(u PhiUpdater) {
	s.updater = u
	s.stats.Updater = u.Name()
}

// OnEvaluate registers fn to be called after every perplexity evaluation
func (s *Sampler) OnEvaluate(fn func(Evaluation)) {
	s.observers = append(s.observers, fn)
}

// RunID identifies this chain; it survives snapshot and resume
func (s *Sampler) RunID() string { return s.runID }

// StepCount is the number of the next iteration, starting at 1
func (s *Sampler) StepCount() int { return s.stepCount }

// Phase returns the current state machine phase
func (s *Sampler) Phase() Phase { return s.phase }

// Converged reports whether the monitor stopped the chain
func (s *Sampler) Converged() bool { return s.converged }

// Monitor exposes the perplexity monitor
func (s *Sampler) Monitor() *Monitor { return s.monitor }

// CurrentPi returns a copy of the membership matrix
func (s *Sampler) CurrentPi() *mat.Dense { return s.state.Pi() }

// CurrentBeta returns a copy of the community strengths
func (s *Sampler) CurrentBeta() []float64 { return s.state.Beta() }

// Phi returns a copy of phi
func (s *Sampler) Phi() *mat.Dense { return s.state.Phi() }

// Theta returns a copy of theta
func (s *Sampler) Theta() *mat.Dense { return s.state.Theta() }

// HeldOutPerplexity evaluates the current state on the held-out set without
// touching the monitor
func (s *Sampler) HeldOutPerplexity() float64 {
	return Perplexity(s.state, s.heldOut.Labeled())
}

// TestPerplexity evaluates the current state on the test set
func (s *Sampler) TestPerplexity() float64 {
	return Perplexity(s.state, s.testEdges)
}

func (s *Sampler) elapsed() time.Duration {
	if s.started.IsZero() {
		return s.elapsedBefore
	}
	return s.elapsedBefore + time.Since(s.started)
}

// Run iterates until max_iteration is reached or the held-out perplexity
// converges, then evaluates once more
func (s *Sampler) Run() (*Result, error) {
	return s.RunContext(context.Background())
}

// RunContext is Run with cancellation. A cancelled run stops between
// iterations and still returns a result; the sampler can be snapshotted and
// resumed from there.
func (s *Sampler) RunContext(ctx context.Context) (*Result, error) {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.logger.Info().
		Str("run_id", s.runID).
		Int("nodes", s.state.N).
		Int("k", s.state.Hyper.K).
		Str("strategy", s.strategy.String()).
		Str("updater", s.updater.Name()).
		Int("start_step", s.stepCount).
		Int("max_iteration", s.maxIteration).
		Float64("a", s.stepSize.A).
		Float64("b", s.stepSize.B).
		Float64("c", s.stepSize.C).
		Msg("Starting sampler")

	interrupted := false
	s.checkStop()
	for s.phase != PhaseStopped {
		if ctx.Err() != nil {
			interrupted = true
			s.phase = PhaseStopped
			s.logger.Warn().Err(ctx.Err()).Int("step", s.stepCount).Msg("Sampler interrupted")
			break
		}
		if err := s.Step(); err != nil {
			s.phase = PhaseStopped
			return nil, errors.Wrapf(err, "step %d", s.stepCount)
		}
	}

	var final Evaluation
	if interrupted {
		// leave the monitor untouched so a resumed chain evaluates on schedule
		final, _ = s.monitor.Last()
		final.Perplexity = s.HeldOutPerplexity()
	} else {
		final = s.evaluate()
	}

	result := &Result{
		RunID:              s.runID,
		Steps:              s.stepCount,
		Converged:          s.converged,
		Interrupted:        interrupted,
		Perplexity:         final.Perplexity,
		AveragedPerplexity: final.AveragedPerplexity,
		TestPerplexity:     s.TestPerplexity(),
		Beta:               s.state.Beta(),
		Pi:                 s.state.Pi(),
		Evaluations:        s.monitor.History(),
		Statistics:         s.stats,
	}
	result.Statistics.RuntimeMS = s.elapsed().Milliseconds()
	result.Statistics.MemoryPeakMB = getMemoryUsage()

	s.logger.Info().
		Int("steps", result.Steps).
		Bool("converged", result.Converged).
		Float64("perplexity", result.Perplexity).
		Float64("averaged_perplexity", result.AveragedPerplexity).
		Float64("test_perplexity", result.TestPerplexity).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Dur("t_sample_minibatch", s.stats.Phases.SampleMiniBatch).
		Dur("t_sample_neighbors", s.stats.Phases.SampleNeighbors).
		Dur("t_update_phi", s.stats.Phases.UpdatePhi).
		Dur("t_update_pi", s.stats.Phases.UpdatePi).
		Dur("t_update_beta", s.stats.Phases.UpdateBeta).
		Dur("t_perplexity", s.stats.Phases.Perplexity).
		Msg("Sampler completed")

	return result, nil
}

// Step performs one iteration. Fatal numeric and sampling failures are
// returned; the chain must not be continued after an error.
func (s *Sampler) Step() error {
	if s.phase == PhaseStopped {
		return nil
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}

	if (s.stepCount-1)%s.interval == 0 {
		s.evaluate()
	}

	s.phase = PhaseSampleBatch
	t0 := time.Now()
	batch, err := s.graph.SampleMiniBatch(s.graph.NumPieces(), s.strategy)
	if err != nil {
		return errors.Wrap(err, "sampling mini-batch")
	}
	edges := s.orderEdges(batch.Edges)
	nodes := batchNodes(edges)
	s.stats.Phases.SampleMiniBatch += time.Since(t0)

	eps := s.stepSize.At(s.stepCount)

	s.phase = PhaseUpdateNodes
	t0 = time.Now()
	updates := make([]NodeUpdate, len(nodes))
	for i, node := range nodes {
		neighbors, err := s.sampleNeighborNodes(s.numNodeSample, node)
		if err != nil {
			return err
		}
		updates[i] = NodeUpdate{
			Node:      node,
			Neighbors: neighbors,
			Noise:     s.phiRand.Normal(s.state.Hyper.K),
		}
	}
	s.stats.Phases.SampleNeighbors += time.Since(t0)

	t0 = time.Now()
	ctx := &UpdateContext{
		State:     s.state,
		Linked:    s.linked,
		Eps:       eps,
		NodeScale: float64(s.state.N) / float64(s.numNodeSample),
	}
	rows, err := s.updater.Update(ctx, updates)
	if err != nil {
		return err
	}
	for i, u := range updates {
		// a wrong-length row is logged by SetPhiRow and the old row kept
		_ = s.state.SetPhiRow(u.Node, rows[i])
	}
	s.stats.Phases.UpdatePhi += time.Since(t0)

	s.phase = PhaseUpdatePi
	t0 = time.Now()
	if err := s.state.UpdatePiFromPhi(); err != nil {
		if !errors.Is(err, ErrDimensionMismatch) {
			return err
		}
		s.logger.Warn().Err(err).Int("step", s.stepCount).Msg("Continuing with stale pi")
	}
	s.stats.Phases.UpdatePi += time.Since(t0)

	s.phase = PhaseUpdateTheta
	t0 = time.Now()
	theta, err := thetaStep(s.state, edges, s.linked, batch.Scale, eps, s.betaRand.Normal(2*s.state.Hyper.K))
	if err != nil {
		return err
	}
	if err := s.state.SetTheta(theta); err != nil {
		return err
	}
	if err := s.state.UpdateBetaFromTheta(); err != nil {
		return err
	}
	s.stats.Phases.UpdateBeta += time.Since(t0)

	s.stats.NodesUpdated += int64(len(nodes))
	s.stats.EdgesProcessed += int64(len(edges))
	s.stats.TotalIterations++
	s.stepCount++

	if s.config.EnableProgress() && s.config.ProgressInterval() > 0 && s.stepCount%s.config.ProgressInterval() == 0 {
		s.logger.Info().
			Int("step", s.stepCount).
			Int("batch_edges", len(edges)).
			Int("batch_nodes", len(nodes)).
			Float64("eps", eps).
			Dur("elapsed", s.elapsed()).
			Msg("Sampler progress")
	}

	s.checkStop()
	return nil
}

func (s *Sampler) checkStop() {
	s.phase = PhaseCheckStop
	switch {
	case s.monitor.Converged():
		s.converged = true
		s.phase = PhaseStopped
		s.logger.Info().Int("step", s.stepCount).Msg("Held-out perplexity converged")
	case s.stepCount >= s.maxIteration:
		s.phase = PhaseStopped
	default:
		s.phase = PhaseRunning
	}
}

func (s *Sampler) evaluate() Evaluation {
	prev := s.phase
	s.phase = PhaseEvaluate
	t0 := time.Now()
	ev := s.monitor.Evaluate(s.state, s.stepCount, s.elapsed())
	s.stats.Phases.Perplexity += time.Since(t0)
	s.phase = prev

	s.logger.Info().
		Int("step", ev.Step).
		Float64("elapsed_s", ev.Elapsed.Seconds()).
		Float64("perplexity", ev.Perplexity).
		Float64("averaged_perplexity", ev.AveragedPerplexity).
		Msg("Held-out perplexity")

	for _, fn := range s.observers {
		fn(ev)
	}
	return ev
}

// orderEdges puts the batch into canonical order in deterministic mode
func (s *Sampler) orderEdges(edges []network.Edge) []network.Edge {
	if !s.deterministic {
		return edges
	}
	set := treeset.NewWith(network.CompareEdges)
	for _, e := range edges {
		set.Add(e)
	}
	out := make([]network.Edge, 0, set.Size())
	for _, v := range set.Values() {
		out = append(out, v.(network.Edge))
	}
	return out
}

// batchNodes returns the distinct endpoints of edges in ascending order
func batchNodes(edges []network.Edge) []int {
	mb := network.MiniBatch{Edges: edges}
	raw := mb.Nodes()
	nodes := make([]int, len(raw))
	for i, v := range raw {
		nodes[i] = int(v)
	}
	sort.Ints(nodes)
	return nodes
}

// sampleNeighborNodes draws size distinct nodes other than node whose edge
// with node is neither held out nor in the test set. Candidates are drawn in
// batches of 2*size and filtered; in deterministic mode each batch is sorted
// first, so the smallest valid ids of a batch are taken.
func (s *Sampler) sampleNeighborNodes(size, node int) ([]int, error) {
	n := s.state.N
	if size > n-1 {
		return nil, errors.Wrapf(ErrSamplingExhausted, "node %d: %d neighbors requested from %d nodes", node, size, n)
	}

	chosen := make(map[int]struct{}, size)
	seen := make(map[int]struct{}, 2*size)
	neighbors := make([]int, 0, size)

	for round := 0; len(neighbors) < size; round++ {
		if round >= maxNeighborRounds || len(seen) == n {
			return nil, errors.Wrapf(ErrSamplingExhausted, "node %d: found %d of %d neighbors", node, len(neighbors), size)
		}
		candidates := s.neighborRand.SampleRange(n, 2*size)
		if s.deterministic {
			sort.Ints(candidates)
		}
		for _, c := range candidates {
			if len(neighbors) == size {
				break
			}
			seen[c] = struct{}{}
			if c == node {
				continue
			}
			if _, ok := chosen[c]; ok {
				continue
			}
			e := network.NewEdge(int32(node), int32(c))
			if s.heldOut.Contains(e) || s.test.Contains(e) {
				continue
			}
			chosen[c] = struct{}{}
			neighbors = append(neighbors, c)
		}
	}

	if s.deterministic {
		sort.Ints(neighbors)
	}
	return neighbors, nil
}

// getMemoryUsage returns current memory usage in MB
func getMemoryUsage() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}

package mmsb

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
	"github.com/gilchrisn/mmsb-sampler/pkg/snapshot"
)

// Snapshot captures everything needed to continue the chain later:
// phi, theta, the step counter, the monitor history and the positions of
// all random streams.
func (s *Sampler) Snapshot() (*snapshot.Model, error) {
	streams, err := s.src.State()
	if err != nil {
		return nil, errors.Wrap(err, "capturing random streams")
	}

	hyper := s.state.Hyper
	m := &snapshot.Model{
		RunID:         s.runID,
		CreatedAt:     time.Now().UTC(),
		Step:          s.stepCount,
		Seed:          s.src.Seed(),
		N:             s.state.N,
		K:             hyper.K,
		Alpha:         hyper.Alpha,
		Eta0:          hyper.Eta[0],
		Eta1:          hyper.Eta[1],
		Epsilon:       hyper.Epsilon,
		Phi:           make([][]float64, s.state.N),
		Theta:         make([][2]float64, hyper.K),
		AvgLikelihood: append([]float64(nil), s.monitor.avgLik...),
		Streams:       streams,
	}
	for i := range m.Phi {
		m.Phi[i] = append([]float64(nil), s.state.phiRow(i)...)
	}
	for k := range m.Theta {
		m.Theta[k] = [2]float64{s.state.theta.At(k, 0), s.state.theta.At(k, 1)}
	}
	for _, ev := range s.monitor.History() {
		m.History = append(m.History, snapshot.Point{
			Step:               ev.Step,
			Perplexity:         ev.Perplexity,
			AveragedPerplexity: ev.AveragedPerplexity,
			ElapsedNS:          int64(ev.Elapsed),
		})
	}
	return m, nil
}

// NewSamplerFromSnapshot continues the chain recorded in m. The graph must be
// the one the snapshot was taken on and src must carry the same seed; the
// random streams are moved to their recorded positions so the resumed chain
// draws exactly what an uninterrupted run would have drawn.
func NewSamplerFromSnapshot(graph Graph, config *Config, src *rng.Source, m *snapshot.Model, logger zerolog.Logger) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.N != graph.NumNodes() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "snapshot has %d nodes, graph has %d", m.N, graph.NumNodes())
	}
	if m.K != config.K() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "snapshot has K=%d, config has K=%d", m.K, config.K())
	}
	if m.Seed != src.Seed() {
		return nil, fmt.Errorf("%w: snapshot seed %d differs from source seed %d", ErrInvalidConfig, m.Seed, src.Seed())
	}

	if err := src.Restore(m.Streams); err != nil {
		return nil, errors.Wrap(err, "restoring random streams")
	}

	hyper := Hyper{K: m.K, Alpha: m.Alpha, Eta: [2]float64{m.Eta0, m.Eta1}, Epsilon: m.Epsilon}
	state, err := NewStateFromRows(m.Phi, m.Theta, hyper, logger)
	if err != nil {
		return nil, err
	}

	s, err := newSampler(graph, config, src, state, m.RunID, m.Step, logger)
	if err != nil {
		return nil, err
	}

	history := make([]Evaluation, len(m.History))
	for i, p := range m.History {
		history[i] = Evaluation{
			Step:               p.Step,
			Perplexity:         p.Perplexity,
			AveragedPerplexity: p.AveragedPerplexity,
			Elapsed:            time.Duration(p.ElapsedNS),
		}
	}
	s.monitor.restore(m.AvgLikelihood, history)
	if len(history) > 0 {
		s.elapsedBefore = history[len(history)-1].Elapsed
	}

	logger.Info().
		Str("run_id", m.RunID).
		Int("step", m.Step).
		Int("evaluations", len(history)).
		Msg("Resumed sampler from snapshot")
	return s, nil
}

package mmsb

import (
	"math"
	"time"

	"github.com/emirpasic/gods/queues/circularbuffer"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

// Evaluation is one perplexity measurement of the held-out set
type Evaluation struct {
	Step               int           `json:"step" yaml:"step"`
	Perplexity         float64       `json:"perplexity" yaml:"perplexity"`
	AveragedPerplexity float64       `json:"averaged_perplexity" yaml:"averaged_perplexity"`
	Elapsed            time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Perplexity returns exp(mean(-log L)) over edges, where L is p for a link
// and 1-p for a non-link under the current pi and beta. An empty edge list
// has perplexity 1.
func Perplexity(s *State, edges []network.LabeledEdge) float64 {
	if len(edges) == 0 {
		return 1
	}
	var nll float64
	for _, e := range edges {
		nll -= math.Log(edgeLikelihood(s, e))
	}
	return math.Exp(nll / float64(len(edges)))
}

func edgeLikelihood(s *State, e network.LabeledEdge) float64 {
	p := s.linkProbability(int(e.First), int(e.Second))
	if e.Linked {
		return p
	}
	return 1 - p
}

// Monitor evaluates held-out perplexity and decides convergence. Besides the
// instantaneous value it keeps, per held-out edge, the running mean of the
// edge likelihood over all evaluations so far; the averaged perplexity is
// computed from those means.
type Monitor struct {
	edges     []network.LabeledEdge
	avgLik    []float64
	count     int
	recent    *circularbuffer.Queue
	span      int
	threshold float64
	history   []Evaluation
}

// NewMonitor prepares a monitor over heldOut. The last span values of a
// window sized ring buffer must agree within threshold (relative) for the
// chain to count as converged.
func NewMonitor(heldOut network.EdgeMap, window, span int, threshold float64) *Monitor {
	if window < 2 {
		window = 2
	}
	if span < 2 || span > window {
		span = window
	}
	edges := heldOut.Labeled()
	return &Monitor{
		edges:     edges,
		avgLik:    make([]float64, len(edges)),
		recent:    circularbuffer.New(window),
		span:      span,
		threshold: threshold,
	}
}

// Evaluate measures the state and records the result
func (m *Monitor) Evaluate(s *State, step int, elapsed time.Duration) Evaluation {
	ev := Evaluation{Step: step, Elapsed: elapsed, Perplexity: 1, AveragedPerplexity: 1}

	if len(m.edges) > 0 {
		var nll, avgNLL float64
		n := float64(m.count)
		for i, e := range m.edges {
			lik := edgeLikelihood(s, e)
			nll -= math.Log(lik)
			m.avgLik[i] = (m.avgLik[i]*n + lik) / (n + 1)
			avgNLL -= math.Log(m.avgLik[i])
		}
		size := float64(len(m.edges))
		ev.Perplexity = math.Exp(nll / size)
		ev.AveragedPerplexity = math.Exp(avgNLL / size)
	}
	m.count++

	m.recent.Enqueue(ev.Perplexity)
	m.history = append(m.history, ev)
	return ev
}

// Converged reports whether the most recent perplexities have plateaued
func (m *Monitor) Converged() bool {
	if m.recent.Size() < m.span {
		return false
	}
	values := m.recent.Values()
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values[len(values)-m.span:] {
		f := v.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if lo <= 0 {
		return false
	}
	return (hi-lo)/lo <= m.threshold
}

// History returns every evaluation so far, oldest first
func (m *Monitor) History() []Evaluation {
	out := make([]Evaluation, len(m.history))
	copy(out, m.history)
	return out
}

// Last returns the most recent evaluation
func (m *Monitor) Last() (Evaluation, bool) {
	if len(m.history) == 0 {
		return Evaluation{}, false
	}
	return m.history[len(m.history)-1], true
}

// Count is the number of evaluations recorded
func (m *Monitor) Count() int { return m.count }

// restore reseeds the rolling average and the history after a resume
func (m *Monitor) restore(avgLik []float64, history []Evaluation) {
	if len(avgLik) == len(m.avgLik) {
		copy(m.avgLik, avgLik)
		m.count = len(history)
	}
	m.history = append(m.history[:0], history...)
	for _, ev := range history {
		m.recent.Enqueue(ev.Perplexity)
	}
}

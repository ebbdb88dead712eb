package trace

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/gilchrisn/mmsb-sampler/pkg/mmsb"
)

// EvaluationEvent is one line of the perplexity trace
type EvaluationEvent struct {
	RunID              string  `json:"run_id"`
	Step               int     `json:"step"`
	Perplexity         float64 `json:"perplexity"`
	AveragedPerplexity float64 `json:"averaged_perplexity"`
	ElapsedSeconds     float64 `json:"elapsed_s"`
	Timestamp          int64   `json:"timestamp"`
}

// Tracker appends every evaluation of a run to a JSON lines file. A nil
// Tracker discards everything.
type Tracker struct {
	file    *os.File
	encoder *json.Encoder
	runID   string
	count   int
	err     error
}

// NewTracker opens filename for appending, so a resumed run continues the
// trace of the original one
func NewTracker(filename, runID string) (*Tracker, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening trace file %s", filename)
	}

	return &Tracker{
		file:    file,
		encoder: json.NewEncoder(file),
		runID:   runID,
	}, nil
}

// Record writes ev. The first write error is kept and returned by Close.
func (t *Tracker) Record(ev mmsb.Evaluation) {
	if t == nil || t.err != nil {
		return
	}

	event := EvaluationEvent{
		RunID:              t.runID,
		Step:               ev.Step,
		Perplexity:         ev.Perplexity,
		AveragedPerplexity: ev.AveragedPerplexity,
		ElapsedSeconds:     ev.Elapsed.Seconds(),
		Timestamp:          time.Now().Unix(),
	}
	if err := t.encoder.Encode(event); err != nil {
		t.err = errors.Wrap(err, "writing trace event")
		return
	}
	t.count++
}

// Attach registers the tracker with s
func (t *Tracker) Attach(s *mmsb.Sampler) {
	if t == nil {
		return
	}
	s.OnEvaluate(t.Record)
}

// Count is the number of events written
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	return t.count
}

func (t *Tracker) Close() error {
	if t == nil || t.file == nil {
		return nil
	}
	if err := t.file.Close(); err != nil && t.err == nil {
		t.err = errors.Wrap(err, "closing trace file")
	}
	t.file = nil
	return t.err
}

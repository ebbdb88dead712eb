package snapshot

import (
	"time"

	"github.com/pkg/errors"
)

// Errors
var (
	ErrNotFound = errors.New("snapshot not found")
	ErrCorrupt  = errors.New("snapshot is corrupt")
)

// Point is one recorded perplexity evaluation
type Point struct {
	Step               int     `json:"step"`
	Perplexity         float64 `json:"perplexity"`
	AveragedPerplexity float64 `json:"averaged_perplexity"`
	ElapsedNS          int64   `json:"elapsed_ns"`
}

// Model is the resumable state of a sampler run
type Model struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Step      int       `json:"step"`
	Seed      int64     `json:"seed"`

	N       int     `json:"n"`
	K       int     `json:"k"`
	Alpha   float64 `json:"alpha"`
	Eta0    float64 `json:"eta0"`
	Eta1    float64 `json:"eta1"`
	Epsilon float64 `json:"epsilon"`

	Phi   [][]float64  `json:"-"` // stored one row per key
	Theta [][2]float64 `json:"theta"`

	// AvgLikelihood is the running mean likelihood of every held-out edge,
	// in canonical edge order
	AvgLikelihood []float64 `json:"avg_likelihood"`
	History       []Point   `json:"history"`

	// Streams holds the serialized position of every named random stream
	Streams map[string][]byte `json:"streams"`
}

// Validate checks the shape of the model
func (m *Model) Validate() error {
	if m.RunID == "" {
		return errors.Wrap(ErrCorrupt, "missing run id")
	}
	if m.N <= 0 || m.K <= 0 {
		return errors.Wrapf(ErrCorrupt, "run %s: %d nodes, %d communities", m.RunID, m.N, m.K)
	}
	if len(m.Phi) != m.N {
		return errors.Wrapf(ErrCorrupt, "run %s: %d phi rows, want %d", m.RunID, len(m.Phi), m.N)
	}
	for i, row := range m.Phi {
		if len(row) != m.K {
			return errors.Wrapf(ErrCorrupt, "run %s: phi row %d has %d entries, want %d", m.RunID, i, len(row), m.K)
		}
	}
	if len(m.Theta) != m.K {
		return errors.Wrapf(ErrCorrupt, "run %s: %d theta rows, want %d", m.RunID, len(m.Theta), m.K)
	}
	return nil
}

package trace

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/mmsb-sampler/pkg/mmsb"
	"github.com/gilchrisn/mmsb-sampler/pkg/quality"
)

// Summary is the human readable record of a finished run
type Summary struct {
	RunID              string            `yaml:"run_id"`
	Dataset            string            `yaml:"dataset"`
	Nodes              int               `yaml:"nodes"`
	Communities        int               `yaml:"communities"`
	Strategy           string            `yaml:"strategy"`
	Steps              int               `yaml:"steps"`
	Converged          bool              `yaml:"converged"`
	Perplexity         float64           `yaml:"perplexity"`
	AveragedPerplexity float64           `yaml:"averaged_perplexity"`
	TestPerplexity     float64           `yaml:"test_perplexity"`
	Beta               []float64         `yaml:"beta"`
	Statistics         SummaryStatistics `yaml:"statistics"`
	Quality            *quality.Report   `yaml:"quality,omitempty"`
	Evaluations        []mmsb.Evaluation `yaml:"evaluations,omitempty"`
}

// SummaryStatistics mirrors mmsb.Statistics with durations in milliseconds
type SummaryStatistics struct {
	Iterations     int              `yaml:"iterations"`
	NodesUpdated   int64            `yaml:"nodes_updated"`
	EdgesProcessed int64            `yaml:"edges_processed"`
	RuntimeMS      int64            `yaml:"runtime_ms"`
	MemoryPeakMB   int64            `yaml:"memory_peak_mb"`
	Updater        string           `yaml:"updater"`
	PhaseMS        map[string]int64 `yaml:"phase_ms"`
}

// NewSummary collects the reportable parts of result
func NewSummary(dataset string, nodes int, strategy string, result *mmsb.Result) *Summary {
	st := result.Statistics
	return &Summary{
		RunID:              result.RunID,
		Dataset:            dataset,
		Nodes:              nodes,
		Communities:        len(result.Beta),
		Strategy:           strategy,
		Steps:              result.Steps,
		Converged:          result.Converged,
		Perplexity:         result.Perplexity,
		AveragedPerplexity: result.AveragedPerplexity,
		TestPerplexity:     result.TestPerplexity,
		Beta:               result.Beta,
		Evaluations:        result.Evaluations,
		Statistics: SummaryStatistics{
			Iterations:     st.TotalIterations,
			NodesUpdated:   st.NodesUpdated,
			EdgesProcessed: st.EdgesProcessed,
			RuntimeMS:      st.RuntimeMS,
			MemoryPeakMB:   st.MemoryPeakMB,
			Updater:        st.Updater,
			PhaseMS: map[string]int64{
				"sample_mini_batch": st.Phases.SampleMiniBatch.Milliseconds(),
				"sample_neighbors":  st.Phases.SampleNeighbors.Milliseconds(),
				"update_phi":        st.Phases.UpdatePhi.Milliseconds(),
				"update_pi":         st.Phases.UpdatePi.Milliseconds(),
				"update_beta":       st.Phases.UpdateBeta.Milliseconds(),
				"perplexity":        st.Phases.Perplexity.Milliseconds(),
			},
		},
	}
}

// WriteSummary stores s as YAML at path
func WriteSummary(path string, s *Summary) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding summary")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "writing summary %s", path)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary
func ReadSummary(path string) (*Summary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading summary %s", path)
	}
	var s Summary
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrapf(err, "decoding summary %s", path)
	}
	return &s, nil
}

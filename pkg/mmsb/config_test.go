package mmsb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

func TestConfigDefaults(t *testing.T) {
	c := NewConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, 300, c.K())
	assert.Equal(t, 0.01, c.Alpha())
	assert.Equal(t, 0.05, c.Epsilon())
	assert.Equal(t, 50, c.NumNodeSample())
	assert.Equal(t, 10000000, c.MaxIteration())
	assert.Equal(t, 0.55, c.StepSizeC())
	assert.Equal(t, int64(42), c.RandomSeed())

	strategy, err := c.Strategy()
	require.NoError(t, err)
	assert.Equal(t, network.StratifiedRandomNode, strategy)

	hyper := c.Hyper()
	assert.Equal(t, [2]float64{1, 1}, hyper.Eta)
	assert.Equal(t, network.Options{HeldOutRatio: 0.1, MiniBatchSize: 50}, c.NetworkOptions())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"zero k", "model.k", 0},
		{"negative alpha", "model.alpha", -0.1},
		{"zero eta", "model.eta1", 0.0},
		{"epsilon one", "model.epsilon", 1.0},
		{"zero neighbors", "sampler.num_node_sample", 0},
		{"zero batch", "sampler.mini_batch_size", 0},
		{"zero interval", "sampler.interval", 0},
		{"unknown strategy", "sampler.strategy", "snowball"},
		{"zero b", "stepsize.b", 0.0},
		{"span over window", "convergence.span", 20},
		{"negative threshold", "convergence.threshold", -1.0},
		{"held out ratio", "network.held_out_ratio", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			c.Set(tt.key, tt.value)
			err := c.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestConfigLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmsb.yaml")
	content := []byte(`model:
  k: 8
  epsilon: 0.01
sampler:
  strategy: random-pair
  deterministic: true
stepsize:
  a: 0
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	c := NewConfig()
	require.NoError(t, c.LoadFromFile(path))
	require.NoError(t, c.Validate())

	assert.Equal(t, 8, c.K())
	assert.Equal(t, 0.01, c.Epsilon())
	assert.True(t, c.Deterministic())
	assert.Equal(t, 0.0, c.StepSizeA())
	assert.Equal(t, 0.01, c.Alpha())

	strategy, err := c.Strategy()
	require.NoError(t, err)
	assert.Equal(t, network.RandomPair, strategy)
}

package mmsb

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mmsb-sampler/pkg/dataset"
	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

// fixedGraph always hands out the same mini-batch
type fixedGraph struct {
	n       int
	linked  network.EdgeSet
	heldOut network.EdgeMap
	test    network.EdgeMap
	batch   []network.Edge
	scale   float64
}

func (g *fixedGraph) NumNodes() int { return g.n }
func (g *fixedGraph) NumPieces() int { return 1 }
func (g *fixedGraph) LinkedEdges() network.EdgeSet { return g.linked }
func (g *fixedGraph) HeldOutSet() network.EdgeMap { return g.heldOut }
func (g *fixedGraph) TestSet() network.EdgeMap { return g.test }
func (g *fixedGraph) SampleMiniBatch(int, network.Strategy) (*network.MiniBatch, error) {
	edges := append([]network.Edge(nil), g.batch...)
	return &network.MiniBatch{Edges: edges, Scale: g.scale}, nil
}

func edgeSet(edges ...network.Edge) network.EdgeSet {
	s := make(network.EdgeSet)
	for _, e := range edges {
		s.Add(e)
	}
	return s
}

func testConfig() *Config {
	c := NewConfig()
	c.Set("model.k", 3)
	c.Set("sampler.num_node_sample", 5)
	c.Set("sampler.mini_batch_size", 10)
	c.Set("sampler.max_iteration", 30)
	c.Set("sampler.interval", 5)
	c.Set("sampler.deterministic", true)
	c.Set("sampler.random_seed", 7)
	c.Set("performance.parallel", false)
	c.Set("logging.enable_progress", false)
	return c
}

// plantedNetwork builds a 60 node, 3 block graph split with seed
func plantedNetwork(t *testing.T, config *Config, seed int64) (*network.Network, *rng.Source) {
	t.Helper()
	src := rng.NewSource(seed)
	data, _, err := dataset.PlantedPartition{Nodes: 60, Communities: 3, PIn: 0.4, POut: 0.02}.Generate(src)
	require.NoError(t, err)
	net, err := data.Network(config.NetworkOptions(), src, zerolog.Nop())
	require.NoError(t, err)
	return net, src
}

func newTestSampler(t *testing.T, config *Config, seed int64) *Sampler {
	t.Helper()
	net, src := plantedNetwork(t, config, seed)
	s, err := NewSampler(net, config, src, zerolog.Nop())
	require.NoError(t, err)
	return s
}

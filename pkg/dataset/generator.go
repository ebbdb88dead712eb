package dataset

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

// PlantedPartition describes a synthetic graph of Communities equal sized
// blocks where pairs inside a block link with probability PIn and pairs
// across blocks with probability POut.
type PlantedPartition struct {
	Nodes       int
	Communities int
	PIn         float64
	POut        float64
}

// Generate draws the graph from the "graph generator" stream of src. The
// returned labels give the planted block of every node.
func (pp PlantedPartition) Generate(src *rng.Source) (*Data, []int, error) {
	if pp.Nodes < 2 || pp.Communities < 1 || pp.Communities > pp.Nodes {
		return nil, nil, errors.Errorf("invalid planted partition: %d nodes, %d communities", pp.Nodes, pp.Communities)
	}
	if pp.PIn < 0 || pp.PIn > 1 || pp.POut < 0 || pp.POut > 1 {
		return nil, nil, errors.Errorf("link probabilities must lie in [0, 1]: pIn=%g pOut=%g", pp.PIn, pp.POut)
	}

	labels := make([]int, pp.Nodes)
	for i := range labels {
		labels[i] = i * pp.Communities / pp.Nodes
	}

	st := src.Stream(rng.StreamGenerator)
	edges := make(network.EdgeSet)
	for i := 0; i < pp.Nodes; i++ {
		for j := i + 1; j < pp.Nodes; j++ {
			p := pp.POut
			if labels[i] == labels[j] {
				p = pp.PIn
			}
			if st.Float64() < p {
				edges.Add(network.NewEdge(int32(i), int32(j)))
			}
		}
	}
	if len(edges) == 0 {
		return nil, nil, errors.Wrap(ErrEmpty, "planted partition")
	}

	ids := make([]int64, pp.Nodes)
	for i := range ids {
		ids[i] = int64(i)
	}

	return &Data{
		Name:        fmt.Sprintf("planted-%dx%d", pp.Nodes, pp.Communities),
		NumNodes:    pp.Nodes,
		Edges:       edges,
		OriginalIDs: ids,
	}, labels, nil
}

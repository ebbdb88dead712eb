package network

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

// Options controls how the network is split and mini-batched
type Options struct {
	HeldOutRatio  float64 // fraction of |E| placed in each of held-out and test
	MiniBatchSize int     // edges per mini-batch for the pair strategies
}

// DefaultOptions holds a 10% held-out ratio and mini-batches of 50 pairs
func DefaultOptions() Options {
	return Options{
		HeldOutRatio:  0.1,
		MiniBatchSize: 50,
	}
}

// Network is the graph store consumed by the sampler. It owns the linked
// edges, the held-out and test splits and the per-node training links used
// for stratified sampling.
type Network struct {
	numNodes      int
	linked        EdgeSet
	linkedList    []Edge // canonical order, for index-based sampling
	heldOut       EdgeMap
	test          EdgeMap
	trainLinks    []map[int32]struct{}
	miniBatchSize int

	batchRand *rng.Stream
	logger    zerolog.Logger
}

// New builds a network from linked edges and carves out held-out and test
// sets of HeldOutRatio*|E| edges each, half links and half non-links.
func New(numNodes int, linked EdgeSet, opts Options, src *rng.Source, logger zerolog.Logger) (*Network, error) {
	net, err := newNetwork(numNodes, linked, opts, src, logger)
	if err != nil {
		return nil, err
	}

	ratio := opts.HeldOutRatio
	if ratio <= 0 {
		ratio = DefaultOptions().HeldOutRatio
	}
	heldOutSize := int(ratio * float64(len(linked)))

	split := src.Stream(rng.StreamHeldOut)
	if err := net.initHeldOutSet(heldOutSize/2, split); err != nil {
		return nil, err
	}
	if err := net.initTestSet(heldOutSize/2, split); err != nil {
		return nil, err
	}

	net.logger.Info().
		Int("nodes", net.numNodes).
		Int("linked_edges", len(net.linked)).
		Int("held_out", len(net.heldOut)).
		Int("test", len(net.test)).
		Msg("Network split completed")

	return net, nil
}

// NewWithSplit builds a network whose held-out and test sets are given
// explicitly. Held-out or test entries labelled as links are removed from
// the training links.
func NewWithSplit(numNodes int, linked EdgeSet, heldOut, test EdgeMap, opts Options, src *rng.Source, logger zerolog.Logger) (*Network, error) {
	net, err := newNetwork(numNodes, linked, opts, src, logger)
	if err != nil {
		return nil, err
	}

	for e, label := range heldOut {
		if err := net.checkEdge(e); err != nil {
			return nil, err
		}
		net.heldOut[e] = label
		net.removeTrainLink(e)
	}
	for e, label := range test {
		if err := net.checkEdge(e); err != nil {
			return nil, err
		}
		if net.heldOut.Contains(e) {
			return nil, errors.Wrapf(ErrBadNetwork, "edge %v is in both held-out and test sets", e)
		}
		net.test[e] = label
		net.removeTrainLink(e)
	}
	return net, nil
}

func newNetwork(numNodes int, linked EdgeSet, opts Options, src *rng.Source, logger zerolog.Logger) (*Network, error) {
	if numNodes < 2 {
		return nil, errors.Wrapf(ErrBadNetwork, "need at least 2 nodes, got %d", numNodes)
	}
	if src == nil {
		return nil, errors.Wrap(ErrBadNetwork, "nil random source")
	}
	if opts.MiniBatchSize <= 0 {
		opts.MiniBatchSize = DefaultOptions().MiniBatchSize
	}

	net := &Network{
		numNodes:      numNodes,
		linked:        make(EdgeSet, len(linked)),
		heldOut:       make(EdgeMap),
		test:          make(EdgeMap),
		trainLinks:    make([]map[int32]struct{}, numNodes),
		miniBatchSize: opts.MiniBatchSize,
		batchRand:     src.Stream(rng.StreamMiniBatch),
		logger:        logger,
	}
	for i := range net.trainLinks {
		net.trainLinks[i] = make(map[int32]struct{})
	}

	for e := range linked {
		if err := net.checkEdge(e); err != nil {
			return nil, err
		}
		net.linked.Add(e)
		net.trainLinks[e.First][e.Second] = struct{}{}
		net.trainLinks[e.Second][e.First] = struct{}{}
	}
	net.linkedList = net.linked.Sorted()

	return net, nil
}

func (n *Network) checkEdge(e Edge) error {
	if e.IsSelfLoop() {
		return errors.Wrapf(ErrBadNetwork, "self loop %v", e)
	}
	if e.First > e.Second {
		return errors.Wrapf(ErrBadNetwork, "edge %v is not canonical", e)
	}
	if e.First < 0 || int(e.Second) >= n.numNodes {
		return errors.Wrapf(ErrBadNetwork, "edge %v out of range for %d nodes", e, n.numNodes)
	}
	return nil
}

func (n *Network) removeTrainLink(e Edge) {
	delete(n.trainLinks[e.First], e.Second)
	delete(n.trainLinks[e.Second], e.First)
}

// maxPairAttempts bounds accept/reject loops over random node pairs
const maxPairAttempts = 100000

// initHeldOutSet samples p linked edges and p non-linked edges
func (n *Network) initHeldOutSet(p int, split *rng.Stream) error {
	if len(n.linkedList) < p {
		return errors.Wrapf(ErrHeldOutTooLarge, "held-out needs %d links, network has %d", p, len(n.linkedList))
	}

	for _, idx := range split.SampleRange(len(n.linkedList), p) {
		e := n.linkedList[idx]
		n.heldOut[e] = true
		n.removeTrainLink(e)
	}

	for i := 0; i < p; i++ {
		e, err := n.sampleNonLink(split, func(e Edge) bool { return n.heldOut.Contains(e) })
		if err != nil {
			return errors.Wrap(err, "held-out non-link")
		}
		n.heldOut[e] = false
	}
	return nil
}

// initTestSet samples p linked edges not already held out, plus p non-links
func (n *Network) initTestSet(p int, split *rng.Stream) error {
	candidates := make([]Edge, 0, len(n.linkedList))
	for _, e := range n.linkedList {
		if !n.heldOut.Contains(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) < p {
		return errors.Wrapf(ErrHeldOutTooLarge, "test set needs %d links, %d remain", p, len(candidates))
	}

	for _, idx := range split.SampleRange(len(candidates), p) {
		e := candidates[idx]
		n.test[e] = true
		n.removeTrainLink(e)
	}

	for i := 0; i < p; i++ {
		e, err := n.sampleNonLink(split, func(e Edge) bool {
			return n.heldOut.Contains(e) || n.test.Contains(e)
		})
		if err != nil {
			return errors.Wrap(err, "test non-link")
		}
		n.test[e] = false
	}
	return nil
}

// sampleNonLink draws random pairs until one is neither linked nor excluded
func (n *Network) sampleNonLink(st *rng.Stream, excluded func(Edge) bool) (Edge, error) {
	for attempt := 0; attempt < maxPairAttempts; attempt++ {
		a := int32(st.IntN(n.numNodes))
		b := int32(st.IntN(n.numNodes))
		if a == b {
			continue
		}
		e := NewEdge(a, b)
		if n.linked.Contains(e) || excluded(e) {
			continue
		}
		return e, nil
	}
	return Edge{}, errors.Wrap(ErrSamplingExhausted, "no free non-link pair found")
}

// NumNodes returns N
func (n *Network) NumNodes() int { return n.numNodes }

// NumLinkedEdges returns |E|
func (n *Network) NumLinkedEdges() int { return len(n.linked) }

// NumPieces is the number of pieces the non-link space of a node is split
// into by stratified random-node sampling.
func (n *Network) NumPieces() int {
	pieces := n.numNodes / n.miniBatchSize
	if pieces < 1 {
		pieces = 1
	}
	return pieces
}

// MiniBatchSize returns the configured pair mini-batch size
func (n *Network) MiniBatchSize() int { return n.miniBatchSize }

// LinkedEdges returns the observed links (including held-out and test links)
func (n *Network) LinkedEdges() EdgeSet { return n.linked }

// TrainingEdges returns the linked edges that are neither held out nor in
// the test set
func (n *Network) TrainingEdges() EdgeSet {
	train := make(EdgeSet, len(n.linked))
	for e := range n.linked {
		if !n.excluded(e) {
			train.Add(e)
		}
	}
	return train
}

// HeldOutSet returns the held-out edges with their labels
func (n *Network) HeldOutSet() EdgeMap { return n.heldOut }

// TestSet returns the test edges with their labels
func (n *Network) TestSet() EdgeMap { return n.test }

// TrainDegree returns the number of training links of node
func (n *Network) TrainDegree(node int32) int { return len(n.trainLinks[node]) }

// LinkRatio is |E| / (N(N-1)/2)
func (n *Network) LinkRatio() float64 {
	return float64(len(n.linked)) / n.numPairs()
}

func (n *Network) numPairs() float64 {
	N := float64(n.numNodes)
	return N * (N - 1) / 2
}

// excluded reports whether e is reserved for evaluation
func (n *Network) excluded(e Edge) bool {
	return n.heldOut.Contains(e) || n.test.Contains(e)
}

func (n *Network) String() string {
	return fmt.Sprintf("Network{N=%d E=%d heldOut=%d test=%d}", n.numNodes, len(n.linked), len(n.heldOut), len(n.test))
}

package network

import (
	"strings"

	"github.com/pkg/errors"
)

// Strategy selects how a mini-batch is drawn from the edge universe
type Strategy int

const (
	RandomPair Strategy = iota
	RandomNode
	StratifiedRandomPair
	StratifiedRandomNode
)

var strategyNames = map[Strategy]string{
	RandomPair:           "random-pair",
	RandomNode:           "random-node",
	StratifiedRandomPair: "stratified-random-pair",
	StratifiedRandomNode: "stratified-random-node",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy accepts the dashed names as well as underscore variants
func ParseStrategy(name string) (Strategy, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
	for s, n := range strategyNames {
		if n == norm {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrBadStrategy, "%q", name)
}

// MiniBatch is one piece of the edge universe together with the inverse of
// its selection probability
type MiniBatch struct {
	Edges    []Edge
	Scale    float64
	Strategy Strategy
}

// Nodes returns the distinct endpoints of the batch in first-seen order
func (mb *MiniBatch) Nodes() []int32 {
	seen := make(map[int32]struct{}, 2*len(mb.Edges))
	nodes := make([]int32, 0, 2*len(mb.Edges))
	for _, e := range mb.Edges {
		for _, v := range [2]int32{e.First, e.Second} {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			nodes = append(nodes, v)
		}
	}
	return nodes
}

// SampleMiniBatch draws a mini-batch with the given strategy. numPieces is
// only used by StratifiedRandomNode.
func (n *Network) SampleMiniBatch(numPieces int, strategy Strategy) (*MiniBatch, error) {
	var (
		mb  *MiniBatch
		err error
	)
	switch strategy {
	case RandomPair:
		mb, err = n.randomPairSampling()
	case RandomNode:
		mb, err = n.randomNodeSampling()
	case StratifiedRandomPair:
		mb, err = n.stratifiedRandomPairSampling()
	case StratifiedRandomNode:
		if numPieces < 1 {
			numPieces = 1
		}
		mb, err = n.stratifiedRandomNodeSampling(numPieces)
	default:
		return nil, errors.Wrapf(ErrBadStrategy, "strategy %d", int(strategy))
	}
	if err != nil {
		return nil, err
	}
	mb.Strategy = strategy
	return mb, nil
}

// randomPairSampling draws miniBatchSize distinct pairs uniformly from all
// pairs outside the held-out and test sets
func (n *Network) randomPairSampling() (*MiniBatch, error) {
	size := n.miniBatchSize
	if available := int(n.numPairs()) - len(n.heldOut) - len(n.test); size > available {
		return nil, errors.Wrapf(ErrSamplingExhausted, "mini-batch of %d pairs, only %d available", size, available)
	}

	batch := make(EdgeSet, size)
	edges := make([]Edge, 0, size)
	for attempt := 0; len(edges) < size; attempt++ {
		if attempt >= maxPairAttempts {
			return nil, errors.Wrap(ErrSamplingExhausted, "random pair mini-batch")
		}
		a := int32(n.batchRand.IntN(n.numNodes))
		b := int32(n.batchRand.IntN(n.numNodes))
		if a == b {
			continue
		}
		e := NewEdge(a, b)
		if n.excluded(e) || batch.Contains(e) {
			continue
		}
		batch.Add(e)
		edges = append(edges, e)
	}

	return &MiniBatch{
		Edges: edges,
		Scale: n.numPairs() / float64(size),
	}, nil
}

// randomNodeSampling returns every usable pair incident to one random node
func (n *Network) randomNodeSampling() (*MiniBatch, error) {
	node := int32(n.batchRand.IntN(n.numNodes))
	edges := make([]Edge, 0, n.numNodes-1)
	for i := int32(0); int(i) < n.numNodes; i++ {
		if i == node {
			continue
		}
		e := NewEdge(node, i)
		if n.excluded(e) {
			continue
		}
		edges = append(edges, e)
	}

	return &MiniBatch{
		Edges: edges,
		Scale: float64(n.numNodes),
	}, nil
}

// stratifiedRandomPairSampling flips a fair coin between the link stratum
// and the non-link stratum and samples miniBatchSize pairs from it
func (n *Network) stratifiedRandomPairSampling() (*MiniBatch, error) {
	size := n.miniBatchSize
	numLinks := float64(len(n.linked))

	if n.batchRand.IntN(2) == 0 {
		edges := make([]Edge, 0, size)
		for _, idx := range n.batchRand.SampleRange(len(n.linkedList), 2*size) {
			if len(edges) == size {
				break
			}
			e := n.linkedList[idx]
			if n.excluded(e) {
				continue
			}
			edges = append(edges, e)
		}
		return &MiniBatch{
			Edges: edges,
			Scale: numLinks / float64(size),
		}, nil
	}

	batch := make(EdgeSet, size)
	edges := make([]Edge, 0, size)
	for attempt := 0; len(edges) < size; attempt++ {
		if attempt >= maxPairAttempts {
			return nil, errors.Wrap(ErrSamplingExhausted, "stratified non-link mini-batch")
		}
		a := int32(n.batchRand.IntN(n.numNodes))
		b := int32(n.batchRand.IntN(n.numNodes))
		if a == b {
			continue
		}
		e := NewEdge(a, b)
		if n.linked.Contains(e) || n.excluded(e) || batch.Contains(e) {
			continue
		}
		batch.Add(e)
		edges = append(edges, e)
	}

	return &MiniBatch{
		Edges: edges,
		Scale: (n.numPairs() - numLinks) / float64(size),
	}, nil
}

// stratifiedRandomNodeSampling picks one node, then with equal probability
// either all of its training links or a 1/numPieces share of its non-links
func (n *Network) stratifiedRandomNodeSampling(numPieces int) (*MiniBatch, error) {
	node := int32(n.batchRand.IntN(n.numNodes))

	if n.batchRand.IntN(2) == 1 {
		edges := make([]Edge, 0, len(n.trainLinks[node]))
		for neighbor := range n.trainLinks[node] {
			edges = append(edges, NewEdge(node, neighbor))
		}
		// map iteration order is random; keep the batch reproducible
		SortEdges(edges)
		return &MiniBatch{
			Edges: edges,
			Scale: float64(n.numNodes),
		}, nil
	}

	size := (n.numNodes - len(n.trainLinks[node])) / numPieces
	batch := make(EdgeSet, size)
	edges := make([]Edge, 0, size)
	rejected := make(map[int32]struct{})

	// the stratum may hold fewer than size pairs on small graphs; once every
	// node has been seen the batch is the whole stratum
	for round := 0; len(edges) < size && len(rejected)+len(edges) < n.numNodes; round++ {
		if round >= maxPairAttempts {
			return nil, errors.Wrapf(ErrSamplingExhausted, "non-links of node %d", node)
		}
		for _, idx := range n.batchRand.SampleRange(n.numNodes, 2*size) {
			if len(edges) == size {
				break
			}
			neighbor := int32(idx)
			if neighbor == node {
				rejected[neighbor] = struct{}{}
				continue
			}
			e := NewEdge(node, neighbor)
			if batch.Contains(e) {
				continue
			}
			if n.linked.Contains(e) || n.excluded(e) {
				rejected[neighbor] = struct{}{}
				continue
			}
			batch.Add(e)
			edges = append(edges, e)
		}
	}

	return &MiniBatch{
		Edges: edges,
		Scale: float64(n.numNodes * numPieces),
	}, nil
}

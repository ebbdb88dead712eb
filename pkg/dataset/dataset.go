package dataset

import (
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

// Data is an undirected graph with node ids compacted to [0, NumNodes)
type Data struct {
	Name     string
	NumNodes int
	Edges    network.EdgeSet

	// OriginalIDs maps a compacted id back to the id found in the source
	OriginalIDs []int64

	SelfLoops  int // dropped
	Duplicates int // dropped, including reversed pairs
}

// Network splits the data into training, held-out and test sets
func (d *Data) Network(opts network.Options, src *rng.Source, logger zerolog.Logger) (*network.Network, error) {
	return network.New(d.NumNodes, d.Edges, opts, src, logger)
}

// builder compacts arbitrary node ids in order of first appearance
type builder struct {
	name  string
	ids   map[int64]int32
	order []int64
	edges network.EdgeSet
	self  int
	dups  int
}

func newBuilder(name string) *builder {
	return &builder{
		name:  name,
		ids:   make(map[int64]int32),
		edges: make(network.EdgeSet),
	}
}

func (b *builder) node(raw int64) int32 {
	if id, ok := b.ids[raw]; ok {
		return id
	}
	id := int32(len(b.order))
	b.ids[raw] = id
	b.order = append(b.order, raw)
	return id
}

func (b *builder) addEdge(src, dst int64) {
	a := b.node(src)
	c := b.node(dst)
	if a == c {
		b.self++
		return
	}
	e := network.NewEdge(a, c)
	if b.edges.Contains(e) {
		b.dups++
		return
	}
	b.edges.Add(e)
}

func (b *builder) data() *Data {
	return &Data{
		Name:        b.name,
		NumNodes:    len(b.order),
		Edges:       b.edges,
		OriginalIDs: b.order,
		SelfLoops:   b.self,
		Duplicates:  b.dups,
	}
}

func logLoaded(logger zerolog.Logger, d *Data, source string) {
	stats := d.Stats()
	logger.Info().
		Str("dataset", d.Name).
		Str("source", source).
		Int("nodes", d.NumNodes).
		Int("edges", len(d.Edges)).
		Int("self_loops", d.SelfLoops).
		Int("duplicates", d.Duplicates).
		Int("components", stats.Components).
		Int("largest_component", stats.LargestComponent).
		Float64("mean_degree", stats.MeanDegree).
		Msg("Dataset loaded")
}

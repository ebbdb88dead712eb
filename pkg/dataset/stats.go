package dataset

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Stats summarizes the shape of a graph
type Stats struct {
	Nodes            int     `json:"nodes" yaml:"nodes"`
	Edges            int     `json:"edges" yaml:"edges"`
	Components       int     `json:"components" yaml:"components"`
	LargestComponent int     `json:"largest_component" yaml:"largest_component"`
	Isolated         int     `json:"isolated" yaml:"isolated"`
	MaxDegree        int     `json:"max_degree" yaml:"max_degree"`
	MeanDegree       float64 `json:"mean_degree" yaml:"mean_degree"`
	Density          float64 `json:"density" yaml:"density"`
}

// Graph builds the gonum view of the data. Every node id in [0, NumNodes)
// is present, including isolated ones.
func (d *Data) Graph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for i := 0; i < d.NumNodes; i++ {
		g.AddNode(simple.Node(int64(i)))
	}
	for e := range d.Edges {
		g.SetEdge(simple.Edge{F: simple.Node(int64(e.First)), T: simple.Node(int64(e.Second))})
	}
	return g
}

// Stats computes component and degree statistics
func (d *Data) Stats() Stats {
	s := Stats{Nodes: d.NumNodes, Edges: len(d.Edges)}
	if d.NumNodes == 0 {
		return s
	}

	g := d.Graph()
	components := topo.ConnectedComponents(g)
	s.Components = len(components)
	for _, c := range components {
		if len(c) > s.LargestComponent {
			s.LargestComponent = len(c)
		}
	}

	nodes := g.Nodes()
	for nodes.Next() {
		deg := g.From(nodes.Node().ID()).Len()
		if deg == 0 {
			s.Isolated++
		}
		if deg > s.MaxDegree {
			s.MaxDegree = deg
		}
	}

	n := float64(d.NumNodes)
	s.MeanDegree = 2 * float64(s.Edges) / n
	if d.NumNodes > 1 {
		s.Density = float64(s.Edges) / (n * (n - 1) / 2)
	}
	return s
}

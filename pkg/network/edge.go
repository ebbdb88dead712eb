package network

import (
	"fmt"
	"sort"
)

// Edge is an undirected node pair stored in canonical order (First < Second)
type Edge struct {
	First  int32 `json:"first"`
	Second int32 `json:"second"`
}

// NewEdge returns the canonical edge for the pair (a, b)
func NewEdge(a, b int32) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{First: a, Second: b}
}

// Less orders edges lexicographically
func (e Edge) Less(o Edge) bool {
	if e.First != o.First {
		return e.First < o.First
	}
	return e.Second < o.Second
}

// IsSelfLoop reports whether both endpoints are the same node
func (e Edge) IsSelfLoop() bool { return e.First == e.Second }

func (e Edge) String() string {
	return fmt.Sprintf("(%d, %d)", e.First, e.Second)
}

// CompareEdges is a three-way comparator over Edge values boxed as interface{}
func CompareEdges(a, b interface{}) int {
	ea := a.(Edge)
	eb := b.(Edge)
	switch {
	case ea.Less(eb):
		return -1
	case eb.Less(ea):
		return 1
	default:
		return 0
	}
}

// SortEdges sorts edges in canonical order
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Less(edges[j]) })
}

// EdgeSet is a set of canonical edges
type EdgeSet map[Edge]struct{}

// Add inserts e
func (s EdgeSet) Add(e Edge) { s[e] = struct{}{} }

// Contains reports whether e is in the set
func (s EdgeSet) Contains(e Edge) bool {
	_, ok := s[e]
	return ok
}

// Sorted returns the members in canonical order
func (s EdgeSet) Sorted() []Edge {
	out := make([]Edge, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	SortEdges(out)
	return out
}

// EdgeMap maps canonical edges to their observed label (true for a link)
type EdgeMap map[Edge]bool

// Contains reports whether e is in the map, regardless of label
func (m EdgeMap) Contains(e Edge) bool {
	_, ok := m[e]
	return ok
}

// Sorted returns the keys in canonical order
func (m EdgeMap) Sorted() []Edge {
	out := make([]Edge, 0, len(m))
	for e := range m {
		out = append(out, e)
	}
	SortEdges(out)
	return out
}

// LabeledEdge is an edge together with its observed label
type LabeledEdge struct {
	Edge
	Linked bool `json:"linked"`
}

// Labeled returns the entries in canonical order
func (m EdgeMap) Labeled() []LabeledEdge {
	keys := m.Sorted()
	out := make([]LabeledEdge, len(keys))
	for i, e := range keys {
		out[i] = LabeledEdge{Edge: e, Linked: m[e]}
	}
	return out
}

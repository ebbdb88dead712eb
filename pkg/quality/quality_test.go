package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

func TestHardAssignment(t *testing.T) {
	pi := mat.NewDense(3, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.1, 0.8,
		0.4, 0.4, 0.2,
	})
	assert.Equal(t, []int{0, 2, 0}, HardAssignment(pi))
}

func TestNMI(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
		want float64
	}{
		{"identical", []int{0, 0, 1, 1}, []int{0, 0, 1, 1}, 1},
		{"relabeled", []int{0, 0, 1, 1}, []int{5, 5, 3, 3}, 1},
		{"independent", []int{0, 0, 1, 1}, []int{0, 1, 0, 1}, 0},
		{"both trivial", []int{2, 2, 2}, []int{7, 7, 7}, 1},
		{"one trivial", []int{0, 0, 0, 0}, []int{0, 0, 1, 1}, 0},
		{"length mismatch", []int{0, 1}, []int{0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NMI(tt.a, tt.b), 1e-12)
		})
	}
}

func twoTriangles() network.EdgeSet {
	edges := make(network.EdgeSet)
	for _, p := range [][2]int32{{0, 1}, {1, 2}, {0, 2}, {3, 4}, {4, 5}, {3, 5}, {2, 3}} {
		edges.Add(network.NewEdge(p[0], p[1]))
	}
	return edges
}

func TestModularity(t *testing.T) {
	edges := twoTriangles()

	// each triangle: 3 internal links, degree sum 7, m = 7
	want := 2 * (3.0/7 - (7.0/14)*(7.0/14))
	assert.InDelta(t, want, Modularity(edges, []int{0, 0, 0, 1, 1, 1}), 1e-12)
	assert.InDelta(t, 0, Modularity(edges, []int{0, 0, 0, 0, 0, 0}), 1e-12)
	assert.Equal(t, 0.0, Modularity(network.EdgeSet{}, nil))
}

func TestEvaluate(t *testing.T) {
	pi := mat.NewDense(6, 2, []float64{
		0.9, 0.1,
		0.8, 0.2,
		0.6, 0.4,
		0.3, 0.7,
		0.1, 0.9,
		0.2, 0.8,
	})

	r := Evaluate(pi, twoTriangles(), []int{1, 1, 1, 0, 0, 0})
	assert.Equal(t, 2, r.Communities)
	assert.Greater(t, r.Modularity, 0.3)
	require.NotNil(t, r.NMI)
	assert.InDelta(t, 1.0, *r.NMI, 1e-12)

	assert.Nil(t, Evaluate(pi, twoTriangles(), nil).NMI)
}

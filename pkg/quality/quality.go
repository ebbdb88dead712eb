package quality

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

// HardAssignment returns, for every row of pi, the community with the
// largest membership. Ties go to the lower community index.
func HardAssignment(pi mat.Matrix) []int {
	rows, cols := pi.Dims()
	labels := make([]int, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, pi)
		labels[i] = floats.MaxIdx(row)
	}
	return labels
}

// NMI is the normalized mutual information between two labelings of the
// same nodes, in [0, 1]. Two single-community labelings agree perfectly.
func NMI(a, b []int) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	// contingency table
	contingency := make(map[int]map[int]int)
	marginalA := make(map[int]int)
	marginalB := make(map[int]int)
	for i := range a {
		if contingency[a[i]] == nil {
			contingency[a[i]] = make(map[int]int)
		}
		contingency[a[i]][b[i]]++
		marginalA[a[i]]++
		marginalB[b[i]]++
	}

	n := float64(len(a))
	mi := 0.0
	for ca, row := range contingency {
		for cb, count := range row {
			pij := float64(count) / n
			pi := float64(marginalA[ca]) / n
			pj := float64(marginalB[cb]) / n
			mi += pij * math.Log2(pij/(pi*pj))
		}
	}

	ha := entropy(marginalA, n)
	hb := entropy(marginalB, n)
	if ha == 0 && hb == 0 {
		return 1
	}
	if ha == 0 || hb == 0 {
		return 0
	}
	return mi / math.Sqrt(ha*hb)
}

func entropy(marginal map[int]int, n float64) float64 {
	h := 0.0
	for _, count := range marginal {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Modularity is Newman's Q of the partition labels over the undirected
// graph given by edges:
//
//	Q = sum_c [ L_c / m - (d_c / 2m)^2 ]
//
// with L_c the links inside c, d_c the degree sum of c and m the link count.
func Modularity(edges network.EdgeSet, labels []int) float64 {
	m := float64(len(edges))
	if m == 0 {
		return 0
	}

	internal := make(map[int]float64)
	degree := make(map[int]float64)
	for e := range edges {
		ca, cb := labels[e.First], labels[e.Second]
		degree[ca]++
		degree[cb]++
		if ca == cb {
			internal[ca]++
		}
	}

	q := 0.0
	for c, d := range degree {
		q += internal[c]/m - (d/(2*m))*(d/(2*m))
	}
	return q
}

// Report scores a fitted membership matrix
type Report struct {
	Communities int      `json:"communities" yaml:"communities"`
	Modularity  float64  `json:"modularity" yaml:"modularity"`
	NMI         *float64 `json:"nmi,omitempty" yaml:"nmi,omitempty"`
}

// Evaluate builds a Report for pi on the training links. truth may be nil
// when no ground truth labels are known.
func Evaluate(pi mat.Matrix, edges network.EdgeSet, truth []int) Report {
	labels := HardAssignment(pi)
	used := make(map[int]struct{})
	for _, c := range labels {
		used[c] = struct{}{}
	}

	r := Report{
		Communities: len(used),
		Modularity:  Modularity(edges, labels),
	}
	if truth != nil {
		nmi := NMI(labels, truth)
		r.NMI = &nmi
	}
	return r
}

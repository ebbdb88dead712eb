package mmsb

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

func TestZeroResponsibilitiesAreDegenerate(t *testing.T) {
	hyper := Hyper{K: 2, Alpha: 0.1, Eta: [2]float64{1, 1}, Epsilon: 0.01}
	// pi is one-hot on community 0 for both nodes and beta[0] is 0, so a
	// link between them has probability 0 under every community
	s, err := NewStateFromRows(
		[][]float64{{1, 0}, {1, 0}},
		[][2]float64{{1, 0}, {1, 1}},
		hyper, zerolog.Nop())
	require.NoError(t, err)
	linked := edgeSet(network.NewEdge(0, 1))

	tests := []struct {
		name string
		step func() error
	}{
		{
			name: "phi step",
			step: func() error {
				ctx := &UpdateContext{State: s, Linked: linked, Eps: 0.01, NodeScale: 2}
				_, err := phiStep(ctx, &NodeUpdate{Node: 0, Neighbors: []int{1}, Noise: []float64{0, 0}})
				return err
			},
		},
		{
			name: "theta step",
			step: func() error {
				_, err := thetaStep(s, []network.Edge{network.NewEdge(0, 1)}, linked, 1, 0.01, make([]float64, 4))
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step()
			assert.True(t, errors.Is(err, ErrNumericDegeneracy), "got %v", err)
		})
	}
}

// TestToyIterationReference runs one iteration by hand on the 4 node graph
// with (0,1) and (1,2) linked and (0,2) held out, from a fixed state and fixed
// noise, and compares against precomputed values.
func TestToyIterationReference(t *testing.T) {
	hyper := Hyper{K: 2, Alpha: 0.1, Eta: [2]float64{1, 1}, Epsilon: 0.01}
	s, err := NewStateFromRows(
		[][]float64{{2, 1}, {1, 3}, {0.5, 0.5}, {1, 1}},
		[][2]float64{{1, 2}, {3, 1}},
		hyper, zerolog.Nop())
	require.NoError(t, err)
	linked := edgeSet(network.NewEdge(0, 1), network.NewEdge(1, 2))

	stepSize, err := NewStepSize(0.01, 1024, 0.55)
	require.NoError(t, err)
	eps := stepSize.At(1)
	assert.InDelta(t, 0.009994632967915399, eps, 1e-15)

	updates := []NodeUpdate{
		{Node: 0, Neighbors: []int{1, 3}, Noise: []float64{0.3, -0.7}},
		{Node: 1, Neighbors: []int{2, 3}, Noise: []float64{-1.1, 0.4}},
		{Node: 2, Neighbors: []int{1, 3}, Noise: []float64{0.8, 0.2}},
	}
	ctx := &UpdateContext{State: s, Linked: linked, Eps: eps, NodeScale: 4.0 / 2.0}
	rows, err := SequentialUpdater{}.Update(ctx, updates)
	require.NoError(t, err)
	for i, u := range updates {
		require.NoError(t, s.SetPhiRow(u.Node, rows[i]))
	}
	require.NoError(t, s.UpdatePiFromPhi())

	wantPhi := [][]float64{
		{2.032505686152297, 0.9263500676518565},
		{0.8871987663259604, 3.054215610551739},
		{0.5527604402528882, 0.5139334068079784},
		{1, 1},
	}
	for i, want := range wantPhi {
		assert.InDeltaSlice(t, want, s.Phi().RawRowView(i), 1e-9, "phi[%d]", i)
	}

	edges := []network.Edge{network.NewEdge(0, 1), network.NewEdge(1, 2)}
	theta, err := thetaStep(s, edges, linked, 3, eps, []float64{0.1, -0.2, 0.5, 0.4})
	require.NoError(t, err)

	wantTheta := []float64{1.004757357466397, 1.9693459827455297, 3.073260222451668, 1.0499625902226308}
	assert.InDeltaSlice(t, wantTheta, theta.RawMatrix().Data, 1e-9)
}

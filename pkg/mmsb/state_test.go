package mmsb

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

var testHyper = Hyper{K: 4, Alpha: 0.01, Eta: [2]float64{1, 1}, Epsilon: 0.05}

func TestNewStateInvariants(t *testing.T) {
	s, err := NewState(25, testHyper, rng.NewSource(3), zerolog.Nop())
	require.NoError(t, err)

	pi := s.Pi()
	phi := s.Phi()
	for i := 0; i < 25; i++ {
		assert.InDelta(t, 1.0, floats.Sum(pi.RawRowView(i)), 1e-12)
		for k := 0; k < testHyper.K; k++ {
			assert.Greater(t, phi.At(i, k), 0.0)
			assert.True(t, pi.At(i, k) >= 0 && pi.At(i, k) <= 1)
		}
	}
	for _, b := range s.Beta() {
		assert.True(t, b >= 0 && b <= 1, "beta %g", b)
	}
}

func TestNewStateReproducible(t *testing.T) {
	a, err := NewState(10, testHyper, rng.NewSource(5), zerolog.Nop())
	require.NoError(t, err)
	b, err := NewState(10, testHyper, rng.NewSource(5), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, a.Phi().RawMatrix().Data, b.Phi().RawMatrix().Data)
	assert.Equal(t, a.Theta().RawMatrix().Data, b.Theta().RawMatrix().Data)
}

func TestNewStateFromRows(t *testing.T) {
	hyper := Hyper{K: 2, Alpha: 0.01, Eta: [2]float64{1, 1}, Epsilon: 0.05}

	s, err := NewStateFromRows([][]float64{{1, 3}, {2, 2}}, [][2]float64{{1, 3}, {4, 1}}, hyper, zerolog.Nop())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, s.Pi().RawRowView(0), 1e-15)
	assert.InDeltaSlice(t, []float64{0.75, 0.2}, s.Beta(), 1e-15)

	tests := []struct {
		name  string
		phi   [][]float64
		theta [][2]float64
		want  error
	}{
		{"ragged phi row", [][]float64{{1, 2}, {1}}, [][2]float64{{1, 1}, {1, 1}}, ErrDimensionMismatch},
		{"theta rows", [][]float64{{1, 2}}, [][2]float64{{1, 1}}, ErrDimensionMismatch},
		{"zero phi row", [][]float64{{0, 0}}, [][2]float64{{1, 1}, {1, 1}}, ErrNumericDegeneracy},
		{"zero theta row", [][]float64{{1, 1}}, [][2]float64{{0, 0}, {1, 1}}, ErrNumericDegeneracy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStateFromRows(tt.phi, tt.theta, hyper, zerolog.Nop())
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSetPhiRowRejectsWrongLength(t *testing.T) {
	s, err := NewState(3, testHyper, rng.NewSource(1), zerolog.Nop())
	require.NoError(t, err)
	before := s.Phi()

	err = s.SetPhiRow(1, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, before.RawMatrix().Data, s.Phi().RawMatrix().Data)
	require.NoError(t, s.UpdatePiFromPhi())
}

func TestUpdatePiFromPhiDegenerate(t *testing.T) {
	s, err := NewState(3, testHyper, rng.NewSource(1), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SetPhiRow(2, []float64{math.NaN(), 1, 1, 1}))
	assert.True(t, errors.Is(s.UpdatePiFromPhi(), ErrNumericDegeneracy))
}

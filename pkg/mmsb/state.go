package mmsb

import (
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mmsb-sampler/pkg/rng"
)

// Hyper holds the hyperparameters of one run
type Hyper struct {
	K       int
	Alpha   float64
	Eta     [2]float64
	Epsilon float64
}

// State owns phi and theta and the derived pi and beta. pi and beta are
// only valid after the matching Update call following a mutation.
type State struct {
	N     int
	Hyper Hyper

	phi   *mat.Dense // N x K
	theta *mat.Dense // K x 2
	pi    *mat.Dense // N x K, rows on the simplex
	beta  []float64  // K

	logger zerolog.Logger
}

// NewState draws phi ~ Gamma(1, 1) and theta ~ Gamma(eta0, eta1) from the
// "phi init" and "theta init" streams and derives pi and beta.
func NewState(n int, hyper Hyper, src *rng.Source, logger zerolog.Logger) (*State, error) {
	if n <= 0 || hyper.K <= 0 {
		return nil, errors.Wrapf(ErrDimensionMismatch, "state of %d nodes and %d communities", n, hyper.K)
	}

	theta := mat.NewDense(hyper.K, 2, src.Stream(rng.StreamThetaInit).Gamma(hyper.Eta[0], hyper.Eta[1], 2*hyper.K))
	phi := mat.NewDense(n, hyper.K, src.Stream(rng.StreamPhiInit).Gamma(1, 1, n*hyper.K))

	return newState(phi, theta, hyper, logger)
}

// NewStateFromRows builds a state from explicit phi and theta rows, for
// resuming from a snapshot or for tests. Every phi row must have K entries.
func NewStateFromRows(phiRows [][]float64, thetaRows [][2]float64, hyper Hyper, logger zerolog.Logger) (*State, error) {
	if len(thetaRows) != hyper.K {
		return nil, errors.Wrapf(ErrDimensionMismatch, "theta has %d rows, want %d", len(thetaRows), hyper.K)
	}
	if len(phiRows) == 0 {
		return nil, errors.Wrap(ErrDimensionMismatch, "phi has no rows")
	}

	phi := mat.NewDense(len(phiRows), hyper.K, nil)
	for i, row := range phiRows {
		if len(row) != hyper.K {
			return nil, errors.Wrapf(ErrDimensionMismatch, "phi row %d has %d entries, want %d", i, len(row), hyper.K)
		}
		phi.SetRow(i, row)
	}
	theta := mat.NewDense(hyper.K, 2, nil)
	for k, row := range thetaRows {
		theta.SetRow(k, row[:])
	}

	return newState(phi, theta, hyper, logger)
}

func newState(phi, theta *mat.Dense, hyper Hyper, logger zerolog.Logger) (*State, error) {
	n, _ := phi.Dims()
	s := &State{
		N:      n,
		Hyper:  hyper,
		phi:    phi,
		theta:  theta,
		pi:     mat.NewDense(n, hyper.K, nil),
		beta:   make([]float64, hyper.K),
		logger: logger,
	}
	if err := s.UpdatePiFromPhi(); err != nil {
		return nil, err
	}
	if err := s.UpdateBetaFromTheta(); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdatePiFromPhi recomputes every row of pi from phi
func (s *State) UpdatePiFromPhi() error {
	pr, pc := s.phi.Dims()
	qr, qc := s.pi.Dims()
	if pr != qr || pc != qc || pc != s.Hyper.K {
		s.logger.Error().
			Int("phi_rows", pr).Int("phi_cols", pc).
			Int("pi_rows", qr).Int("pi_cols", qc).
			Int("k", s.Hyper.K).
			Msg("phi and pi shapes disagree")
		return errors.Wrapf(ErrDimensionMismatch, "phi %dx%d, pi %dx%d", pr, pc, qr, qc)
	}

	for i := 0; i < s.N; i++ {
		if err := s.updatePiRow(i); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) updatePiRow(i int) error {
	phiRow := s.phi.RawRowView(i)
	sum := floats.Sum(phiRow)
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return errors.Wrapf(ErrNumericDegeneracy, "phi row %d sums to %g", i, sum)
	}
	piRow := s.pi.RawRowView(i)
	copy(piRow, phiRow)
	floats.Scale(1/sum, piRow)
	return nil
}

// UpdateBetaFromTheta recomputes beta[k] = theta[k][1] / (theta[k][0] + theta[k][1])
func (s *State) UpdateBetaFromTheta() error {
	for k := range s.beta {
		sum := s.theta.At(k, 0) + s.theta.At(k, 1)
		if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
			return errors.Wrapf(ErrNumericDegeneracy, "theta row %d sums to %g", k, sum)
		}
		s.beta[k] = s.theta.At(k, 1) / sum
	}
	return nil
}

// SetPhiRow replaces row i of phi. pi is stale until UpdatePiFromPhi.
func (s *State) SetPhiRow(i int, row []float64) error {
	if len(row) != s.Hyper.K {
		s.logger.Warn().
			Int("node", i).
			Int("len", len(row)).
			Int("k", s.Hyper.K).
			Msg("Ignoring phi row of wrong length")
		return errors.Wrapf(ErrDimensionMismatch, "phi row %d has %d entries, want %d", i, len(row), s.Hyper.K)
	}
	s.phi.SetRow(i, row)
	return nil
}

// SetTheta replaces theta. beta is stale until UpdateBetaFromTheta.
func (s *State) SetTheta(theta *mat.Dense) error {
	r, c := theta.Dims()
	if r != s.Hyper.K || c != 2 {
		return errors.Wrapf(ErrDimensionMismatch, "theta %dx%d, want %dx2", r, c, s.Hyper.K)
	}
	s.theta.Copy(theta)
	return nil
}

// Phi returns a copy of phi
func (s *State) Phi() *mat.Dense { return mat.DenseCopyOf(s.phi) }

// Theta returns a copy of theta
func (s *State) Theta() *mat.Dense { return mat.DenseCopyOf(s.theta) }

// Pi returns a copy of pi
func (s *State) Pi() *mat.Dense { return mat.DenseCopyOf(s.pi) }

// Beta returns a copy of beta
func (s *State) Beta() []float64 {
	out := make([]float64, len(s.beta))
	copy(out, s.beta)
	return out
}

// piRow and phiRow are read-only views for the update engine
func (s *State) piRow(i int) []float64  { return s.pi.RawRowView(i) }
func (s *State) phiRow(i int) []float64 { return s.phi.RawRowView(i) }

// linkProbability is sum_k pi_a pi_b beta_k + (1 - sum_k pi_a pi_b) * epsilon
func (s *State) linkProbability(a, b int) float64 {
	piA := s.piRow(a)
	piB := s.piRow(b)
	var shared, weighted float64
	for k, pa := range piA {
		w := pa * piB[k]
		shared += w
		weighted += w * s.beta[k]
	}
	return weighted + (1-shared)*s.Hyper.Epsilon
}

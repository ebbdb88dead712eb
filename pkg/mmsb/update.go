package mmsb

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

// NodeUpdate carries the pre-drawn randomness for one node's phi step
type NodeUpdate struct {
	Node      int
	Neighbors []int
	Noise     []float64 // K standard normals
}

// UpdateContext is the frozen input shared by all node updates of one
// iteration. State must not be mutated while an update is running.
type UpdateContext struct {
	State     *State
	Linked    network.EdgeSet
	Eps       float64
	NodeScale float64 // N / num_node_sample
}

// PhiUpdater computes the new phi row of every node in updates, in order.
// Implementations must not draw randomness.
type PhiUpdater interface {
	Name() string
	Update(ctx *UpdateContext, updates []NodeUpdate) ([][]float64, error)
}

// SequentialUpdater runs every node update on the calling goroutine
type SequentialUpdater struct{}

func (SequentialUpdater) Name() string { return "sequential" }

func (SequentialUpdater) Update(ctx *UpdateContext, updates []NodeUpdate) ([][]float64, error) {
	rows := make([][]float64, len(updates))
	for i := range updates {
		row, err := phiStep(ctx, &updates[i])
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// ParallelUpdater splits the node updates into chunks handled by a bounded
// pool of goroutines. Each result depends only on its own inputs, so the
// output matches SequentialUpdater exactly.
type ParallelUpdater struct {
	NumWorkers int
	ChunkSize  int
}

func (p ParallelUpdater) Name() string { return "parallel" }

func (p ParallelUpdater) Update(ctx *UpdateContext, updates []NodeUpdate) ([][]float64, error) {
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	numWorkers := p.NumWorkers
	if numWorkers <= 1 || len(updates) <= chunkSize {
		return SequentialUpdater{}.Update(ctx, updates)
	}

	rows := make([][]float64, len(updates))
	numChunks := (len(updates) + chunkSize - 1) / chunkSize
	chunkErrs := make([]error, numChunks)

	var g errgroup.Group
	g.SetLimit(numWorkers)
	for c := 0; c < numChunks; c++ {
		start := c * chunkSize
		end := start + chunkSize
		if end > len(updates) {
			end = len(updates)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				row, err := phiStep(ctx, &updates[i])
				if err != nil {
					chunkErrs[c] = err
					return err
				}
				rows[i] = row
			}
			return nil
		})
	}
	if g.Wait() != nil {
		// report the failure of the lowest node position, independent of scheduling
		for _, err := range chunkErrs {
			if err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

// phiStep applies the Langevin update to one row of phi:
//
//	phi[a][k] = |phi[a][k] + eps/2 * (alpha - phi[a][k] + N/n * grad[k]) + sqrt(eps) * sqrt(phi[a][k]) * noise[k]|
func phiStep(ctx *UpdateContext, u *NodeUpdate) ([]float64, error) {
	s := ctx.State
	K := s.Hyper.K
	a := u.Node
	if len(u.Noise) != K {
		return nil, errors.Wrapf(ErrDimensionMismatch, "node %d: %d noise values for %d communities", a, len(u.Noise), K)
	}

	phiA := s.phiRow(a)
	phiSum := floats.Sum(phiA)
	if phiSum <= 0 || math.IsNaN(phiSum) || math.IsInf(phiSum, 0) {
		return nil, errors.Wrapf(ErrNumericDegeneracy, "node %d: phi row sums to %g", a, phiSum)
	}
	piA := s.piRow(a)
	eps := s.Hyper.Epsilon

	grad := make([]float64, K)
	probs := make([]float64, K)
	for _, b := range u.Neighbors {
		linked := ctx.Linked.Contains(network.NewEdge(int32(a), int32(b)))
		piB := s.piRow(b)

		var probSum float64
		for k := 0; k < K; k++ {
			var link, nonLink float64
			if linked {
				link = s.beta[k] * piA[k] * piB[k]
				nonLink = eps * piA[k] * (1 - piB[k])
			} else {
				link = (1 - s.beta[k]) * piA[k] * piB[k]
				nonLink = (1 - eps) * piA[k] * (1 - piB[k])
			}
			probs[k] = link + nonLink
			probSum += probs[k]
		}
		if probSum == 0 || math.IsNaN(probSum) || math.IsInf(probSum, 0) {
			return nil, errors.Wrapf(ErrNumericDegeneracy, "node %d, neighbor %d: responsibilities sum to %g", a, b, probSum)
		}

		for k := 0; k < K; k++ {
			grad[k] += (probs[k]/probSum)/phiA[k] - 1/phiSum
		}
	}

	sqrtEps := math.Sqrt(ctx.Eps)
	row := make([]float64, K)
	for k := 0; k < K; k++ {
		v := phiA[k] +
			ctx.Eps/2*(s.Hyper.Alpha-phiA[k]+ctx.NodeScale*grad[k]) +
			sqrtEps*math.Sqrt(phiA[k])*u.Noise[k]
		v = math.Abs(v)
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(ErrNumericDegeneracy, "node %d: phi[%d] updated to %g", a, k, v)
		}
		row[k] = v
	}
	return row, nil
}

// thetaStep computes the updated theta for one mini-batch. noise holds K*2
// standard normals laid out row-major (k, c).
//
//	theta[k][c] = |theta[k][c] + eps/2 * (eta[c] - theta[k][c] + scale * grads[k][c]) + sqrt(eps) * sqrt(theta[k][c]) * noise[k][c]|
func thetaStep(s *State, edges []network.Edge, linked network.EdgeSet, scale, stepEps float64, noise []float64) (*mat.Dense, error) {
	K := s.Hyper.K
	if len(noise) != 2*K {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d theta noise values for %d communities", len(noise), K)
	}

	thetaSum := make([]float64, K)
	for k := 0; k < K; k++ {
		thetaSum[k] = s.theta.At(k, 0) + s.theta.At(k, 1)
		if thetaSum[k] <= 0 || math.IsNaN(thetaSum[k]) || math.IsInf(thetaSum[k], 0) {
			return nil, errors.Wrapf(ErrNumericDegeneracy, "theta row %d sums to %g", k, thetaSum[k])
		}
	}

	eps := s.Hyper.Epsilon
	grads := mat.NewDense(K, 2, nil)
	probs := make([]float64, K)
	for _, e := range edges {
		y := 0.0
		if linked.Contains(e) {
			y = 1
		}
		piI := s.piRow(int(e.First))
		piJ := s.piRow(int(e.Second))

		var piSum, probSum float64
		for k := 0; k < K; k++ {
			w := piI[k] * piJ[k]
			piSum += w
			if y == 1 {
				probs[k] = s.beta[k] * w
			} else {
				probs[k] = (1 - s.beta[k]) * w
			}
			probSum += probs[k]
		}
		if y == 1 {
			probSum += eps * (1 - piSum)
		} else {
			probSum += (1 - eps) * (1 - piSum)
		}
		if probSum == 0 || math.IsNaN(probSum) || math.IsInf(probSum, 0) {
			return nil, errors.Wrapf(ErrNumericDegeneracy, "edge %v: probabilities sum to %g", e, probSum)
		}

		for k := 0; k < K; k++ {
			r := probs[k] / probSum
			grads.Set(k, 0, grads.At(k, 0)+r*(math.Abs(1-y)/s.theta.At(k, 0)-1/thetaSum[k]))
			grads.Set(k, 1, grads.At(k, 1)+r*(math.Abs(-y)/s.theta.At(k, 1)-1/thetaSum[k]))
		}
	}

	sqrtEps := math.Sqrt(stepEps)
	next := mat.NewDense(K, 2, nil)
	for k := 0; k < K; k++ {
		for c := 0; c < 2; c++ {
			t := s.theta.At(k, c)
			v := t +
				stepEps/2*(s.Hyper.Eta[c]-t+scale*grads.At(k, c)) +
				sqrtEps*math.Sqrt(t)*noise[2*k+c]
			v = math.Abs(v)
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrapf(ErrNumericDegeneracy, "theta[%d][%d] updated to %g", k, c, v)
			}
			next.Set(k, c, v)
		}
	}
	return next, nil
}

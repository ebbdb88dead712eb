package rng

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Stream names used by the sampler and the graph store. Each logical use of
// randomness gets its own stream so that draws in one place never shift the
// sequence observed in another.
const (
	StreamThetaInit       = "theta init"
	StreamPhiInit         = "phi init"
	StreamPhiUpdate       = "phi update"
	StreamBetaUpdate      = "beta update"
	StreamNeighborSampler = "neighbor sampler"
	StreamMiniBatch       = "minibatch sampler"
	StreamHeldOut         = "held-out sampler"
	StreamGenerator       = "graph generator"
)

// Source hands out named random streams derived from a single run seed.
type Source struct {
	seed    int64
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewSource creates a source for the given run seed
func NewSource(seed int64) *Source {
	return &Source{
		seed:    seed,
		streams: make(map[string]*Stream),
	}
}

// Seed returns the run seed the streams are derived from
func (s *Source) Seed() int64 { return s.seed }

// Stream returns the stream registered under name, creating it on first use.
// The stream state depends only on (seed, name).
func (s *Source) Stream(name string) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.streams[name]; ok {
		return st
	}
	st := newStream(name, uint64(s.seed), xxhash.Sum64String(name))
	s.streams[name] = st
	return st
}

// Names returns the names of all streams created so far, sorted
func (s *Source) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// State captures the position of every stream created so far
func (s *Source) State() (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte, len(s.streams))
	for name, st := range s.streams {
		buf, err := st.src.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "stream %q", name)
		}
		out[name] = buf
	}
	return out, nil
}

// Restore moves streams to the positions recorded by State. Streams that
// already exist are rewound in place, so holders of a *Stream see the
// restored sequence.
func (s *Source) Restore(state map[string][]byte) error {
	for name, buf := range state {
		st := s.Stream(name)
		if err := st.src.UnmarshalBinary(buf); err != nil {
			return errors.Wrapf(err, "stream %q", name)
		}
	}
	return nil
}

// Stream is a single reproducible generator. It is not safe for concurrent
// use; callers draw from it on one goroutine.
type Stream struct {
	name string
	src  *rand.PCG
	rnd  *rand.Rand
}

func newStream(name string, seed, salt uint64) *Stream {
	src := rand.NewPCG(seed, salt)
	return &Stream{
		name: name,
		src:  src,
		rnd:  rand.New(src),
	}
}

// Name returns the stream name
func (st *Stream) Name() string { return st.name }

// Float64 returns a uniform draw in [0, 1)
func (st *Stream) Float64() float64 { return st.rnd.Float64() }

// IntN returns a uniform draw in [0, n)
func (st *Stream) IntN(n int) int { return st.rnd.IntN(n) }

// Gamma draws n values from a Gamma distribution with the given shape and
// scale (scale = 1/rate).
func (st *Stream) Gamma(shape, scale float64, n int) []float64 {
	dist := distuv.Gamma{Alpha: shape, Beta: 1 / scale, Src: st.src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// Normal draws n standard normal values
func (st *Stream) Normal(n int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: st.src}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// SampleRange draws count distinct integers from [0, n). A count larger than
// n is clamped to n, which yields a permutation of the full range.
func (st *Stream) SampleRange(n, count int) []int {
	if count > n {
		count = n
	}
	if count <= 0 {
		return nil
	}
	idxs := make([]int, count)
	sampleuv.WithoutReplacement(idxs, n, st.src)
	return idxs
}

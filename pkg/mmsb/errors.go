package mmsb

import (
	"github.com/pkg/errors"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

// Errors
var (
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidConfig     = errors.New("invalid configuration")

	// ErrSamplingExhausted is shared with the graph store so callers can test
	// for either source with a single errors.Is
	ErrSamplingExhausted = network.ErrSamplingExhausted
)

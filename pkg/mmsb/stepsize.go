package mmsb

import (
	"fmt"
	"math"
)

// StepSize is the polynomially decaying schedule eps_t = a * (1 + t/b)^(-c)
type StepSize struct {
	A, B, C float64
}

// NewStepSize validates the schedule. a == 0 selects a = b^(-c).
func NewStepSize(a, b, c float64) (StepSize, error) {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return StepSize{}, fmt.Errorf("%w: stepsize.b must be a positive real, got %g", ErrInvalidConfig, b)
	}
	if c <= 0 || math.IsNaN(c) {
		return StepSize{}, fmt.Errorf("%w: stepsize.c must be positive, got %g", ErrInvalidConfig, c)
	}
	if a < 0 || math.IsNaN(a) {
		return StepSize{}, fmt.Errorf("%w: stepsize.a must not be negative, got %g", ErrInvalidConfig, a)
	}
	if a == 0 {
		a = math.Pow(b, -c)
	}
	return StepSize{A: a, B: b, C: c}, nil
}

// At returns eps for the given step count
func (s StepSize) At(step int) float64 {
	return s.A * math.Pow(1+float64(step)/s.B, -s.C)
}

package network

import "github.com/pkg/errors"

// Errors
var (
	ErrSamplingExhausted = errors.New("sampling exhausted")
	ErrBadStrategy       = errors.New("unknown sampling strategy")
	ErrBadNetwork        = errors.New("invalid network")
	ErrHeldOutTooLarge   = errors.New("not enough linked edges for held-out and test sets")
)

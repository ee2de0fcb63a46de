package semcache

import "errors"

var (
	// ErrNotFound is returned by point lookups when no row exists for the key.
	// A similarity miss is not an error; FindSimilar returns (nil, nil).
	ErrNotFound = errors.New("cache entry not found")

	// ErrDimensionMismatch is returned when an embedding does not have the
	// expected number of dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Package apperrors collects the sentinel error categories referenced by
// spec.md §7 so callers can distinguish them with errors.Is.
package apperrors

import "errors"

var (
	// ErrConfiguration marks an invalid enum value, negative size, or
	// missing required field — surfaced before a run starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataUnavailable marks "no candles for requested range" and similar
	// fail-fast-before-iteration conditions.
	ErrDataUnavailable = errors.New("data availability error")

	// ErrStoreIO marks a persistence-layer failure. Coverage state remains
	// consistent because writes are transactional.
	ErrStoreIO = errors.New("store i/o error")
)

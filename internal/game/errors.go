package game

import "errors"

var (
	// ErrExtraction means a page query returned no usable data
	ErrExtraction = errors.New("extraction failed")

	// ErrNavigationTimeout means an observer wait exceeded its bound
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrPersist means the workbook could not be read or written
	ErrPersist = errors.New("persist failed")

	// ErrMalformedIdentifier means a game key or header could not be parsed
	ErrMalformedIdentifier = errors.New("malformed game identifier")

	// ErrPriceHistoryUnavailable means the history feed gave no samples
	ErrPriceHistoryUnavailable = errors.New("price history unavailable")
)

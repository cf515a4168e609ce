package seace

import "errors"

// Sentinel errors surfaced by the extraction pipeline. Everything else is
// wrapped context-specific.
var (
	// ErrResultsTimeout means the results table never became ready.
	ErrResultsTimeout = errors.New("results table not ready before timeout")

	// ErrNavigationTimeout means a pagination step exceeded its budget.
	ErrNavigationTimeout = errors.New("page navigation timed out")

	// ErrSubmitNotFound means no search submit control could be located.
	// There is no safe fallback for this one.
	ErrSubmitNotFound = errors.New("search submit control not found")

	// ErrJobNotFound is returned by job stores for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
)

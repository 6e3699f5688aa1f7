package models

import "errors"

// Error taxonomy. Callers classify with errors.Is; wrapping sites add
// context with fmt.Errorf("...: %w", err).
var (
	// ErrConfiguration marks invalid configuration (e.g. chunk overlap not
	// smaller than chunk size). Fatal, caught before processing starts.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrExtractionRecoverable marks model output that stayed unparseable
	// through all retries. The affected chunk degrades to zero candidates;
	// the surrounding document continues.
	ErrExtractionRecoverable = errors.New("extraction output unparseable")

	// ErrValidation marks a malformed candidate fact (empty name, blank
	// relation type). The candidate is dropped; the batch continues.
	ErrValidation = errors.New("invalid candidate")

	// ErrDanglingReference marks a relationship whose endpoint could not be
	// resolved after the batch's entities were merged. The edge is dropped
	// with a warning; the batch continues.
	ErrDanglingReference = errors.New("unresolved relationship endpoint")

	// ErrStorageTransient marks a backend timeout or connection issue.
	// Eligible for retry with backoff.
	ErrStorageTransient = errors.New("transient storage failure")

	// ErrMergeFailed marks a storage failure that exceeded the retry bound.
	// Scoped to one batch; merges are safely re-runnable.
	ErrMergeFailed = errors.New("graph merge failed")
)

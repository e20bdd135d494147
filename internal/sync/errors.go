package sync

import "fmt"

// FetchError is a sync call failure: no sub-fetch of the directive
// could be processed. The registry store is untouched when it occurs.
type FetchError struct {
	Registry string
	Selector string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("sync %s: fetch failed for selector %q: %v", e.Registry, e.Selector, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ConflictError is returned when a sync is already in flight for the
// registry. The caller decides whether to retry later.
type ConflictError struct {
	Registry string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync already in progress for registry %q", e.Registry)
}

package contract

import "errors"

// Sentinel errors shared across the module.
var (
	// ErrNoData marks a query that matched no rows.
	ErrNoData = errors.New("no data for query")

	// ErrUnsupportedBackend marks an unrecognized database backend.
	ErrUnsupportedBackend = errors.New("unsupported database backend")

	// ErrEmptyQueue marks a lease attempt against an empty work queue.
	ErrEmptyQueue = errors.New("work queue is empty")

	// ErrCacheMiss marks a cache lookup without a stored value.
	ErrCacheMiss = errors.New("cache miss")
)

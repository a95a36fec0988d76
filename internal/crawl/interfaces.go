package crawl

import (
	"context"
	"time"
)

// Handle is a leased navigation context. A handle is owned exclusively by
// the worker holding it between checkout and checkin.
type Handle interface {
	// Navigate fetches the target's page. Errors wrap the sentinels in
	// this package where the cause is known.
	Navigate(ctx context.Context, target Target) (Page, error)
	// Close destroys the underlying navigation context.
	Close() error
}

// Pool hands out up to N reusable handles.
type Pool interface {
	// Acquire blocks until a handle is available or ctx ends.
	Acquire(ctx context.Context) (Handle, error)
	// Release returns a handle to the pool. An unhealthy handle is
	// discarded and its slot freed for lazy re-creation.
	Release(h Handle, healthy bool)
	// Close destroys all handles. Safe to call while workers are
	// mid-flight; leased handles are destroyed on checkin.
	Close(ctx context.Context) error
}

// Extractor turns a fetched page into a Record. Implementations must be
// pure: no network I/O, no shared state.
type Extractor interface {
	Extract(page Page) (Record, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

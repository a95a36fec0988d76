package crawl

import (
	"context"
	"errors"
	"net"
)

// FailureKind buckets everything that can go wrong with a target or a run.
type FailureKind string

// Failure kinds surfaced in the RunSummary. Only ConfigurationError and an
// unwritable output IOError abort a run; the rest are per-target.
const (
	FailureInvalidTarget       FailureKind = "invalid_target"
	FailureNavigationTransient FailureKind = "navigation_transient"
	FailureNavigationFatal     FailureKind = "navigation_fatal"
	FailureExtractionDegraded  FailureKind = "extraction_degraded"
	FailureExtractionFatal     FailureKind = "extraction_fatal"
	FailureConfiguration       FailureKind = "configuration_error"
	FailureIO                  FailureKind = "io_error"
)

// Sentinel errors shared between the navigator and the coordinator.
var (
	// ErrProfileNotFound means the remote confirmed the target is absent
	// or blocked; retrying cannot help.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrRateLimited means the remote asked us to back off (HTTP 429).
	ErrRateLimited = errors.New("rate limited")
	// ErrHandleCorrupted means the navigation context died and the handle
	// must not return to circulation.
	ErrHandleCorrupted = errors.New("navigation handle corrupted")
	// ErrKeyUnderivable means the extraction pipeline could not produce a
	// dedup key for the page.
	ErrKeyUnderivable = errors.New("dedup key underivable")
)

// Classify maps a navigation/extraction error to a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProfileNotFound):
		return FailureNavigationFatal
	case errors.Is(err, ErrKeyUnderivable):
		return FailureExtractionFatal
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrHandleCorrupted):
		return FailureNavigationTransient
	case errors.Is(err, context.DeadlineExceeded):
		return FailureNavigationTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNavigationTransient
	}
	return FailureNavigationTransient
}

// Retryable reports whether the error class is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return Classify(err) == FailureNavigationTransient
}

package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies why a fetch failed.
type ErrorCategory string

const (
	CategoryNetwork     ErrorCategory = "network"
	CategoryUnavailable ErrorCategory = "unavailable"
	CategoryUnsupported ErrorCategory = "unsupported"
	CategoryFilesystem  ErrorCategory = "filesystem"
	CategoryCancelled   ErrorCategory = "cancelled"
)

// FetchError is returned by fetchers. The orchestrator turns it into a
// failure result.
type FetchError struct {
	Category ErrorCategory
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

func wrapCategory(category ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = CategoryCancelled
	}
	return &FetchError{Category: category, Err: err}
}

// CategoryOf reports the category of err, or "" when err carries none.
func CategoryOf(err error) ErrorCategory {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryCancelled
	}
	return ""
}

// ErrBatchAborted is wrapped by RunBatch when the batch context ends before
// every task has run.
var ErrBatchAborted = errors.New("batch aborted")

func abortError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrBatchAborted, context.Cause(ctx))
}

var restrictedMarkers = []string{
	"private",
	"sign in",
	"login",
	"members only",
	"premium",
	"copyright",
	"unavailable",
	"age-restricted",
	"age restricted",
	"not available",
}

// isRestrictedAccess matches error text the video host uses for content
// that cannot be fetched without other credentials or from this region.
func isRestrictedAccess(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, marker := range restrictedMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

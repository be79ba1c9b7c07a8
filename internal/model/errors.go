package model

import "fmt"

// ValidationError reports malformed input detected before any work starts.
// Err, when set, is the underlying cause.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg = fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

package shared

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Upstream errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrTransientUpstream  = fmt.Errorf("transient upstream error")
	ErrPermanentUpstream  = fmt.Errorf("upstream error persisted after retries")
	ErrPlaylistCreate     = fmt.Errorf("playlist creation failed")
	ErrPartialBatch       = fmt.Errorf("some playlist batches failed")

	// Data errors
	ErrNotFound    = fmt.Errorf("not found")
	ErrCorruptData = fmt.Errorf("corrupt data")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrCancelled       = fmt.Errorf("cancelled by user")
)

// OpError records the operation that was in progress when Err occurred.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp returns nil for a nil err, otherwise an [OpError].
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// Op returns the innermost operation name attached to err, or "".
func Op(err error) string {
	var op string
	for err != nil {
		var oe *OpError
		if !errors.As(err, &oe) {
			break
		}
		op = oe.Op
		err = oe.Err
	}
	return op
}

// kinds is checked in order, so narrower sentinels come first.
var kinds = []struct {
	err  error
	name string
}{
	{ErrPartialBatch, "PartialBatchFailure"},
	{ErrPlaylistCreate, "PlaylistCreateFailure"},
	{ErrPermanentUpstream, "PermanentUpstreamError"},
	{ErrAuthFailed, "AuthFailure"},
	{ErrNotAuthenticated, "AuthFailure"},
	{ErrMissingCredentials, "AuthFailure"},
	{ErrInvalidCredentials, "AuthFailure"},
	{ErrCorruptData, "CorruptData"},
	{ErrNotFound, "NotFound"},
	{ErrRateLimited, "RateLimited"},
	{ErrTransientUpstream, "TransientUpstream"},
	{ErrInvalidConfig, "InvalidConfig"},
	{ErrMissingConfig, "InvalidConfig"},
	{ErrCancelled, "Cancelled"},
	{context.Canceled, "Cancelled"},
	{context.DeadlineExceeded, "Timeout"},
	{ErrTimeout, "Timeout"},
}

// Kind names the error category of err for operator-facing reports.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}

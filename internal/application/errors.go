package application

import (
	"errors"
	"fmt"

	"github.com/sftdash/tornpanel/internal/domain/model"
)

// Sentinel errors returned by application services.
var (
	// ErrNoAvailableKey indicates every candidate credential was skipped or
	// rotated past. The concrete error is *NoAvailableKeyError.
	ErrNoAvailableKey = errors.New("no available key")

	// ErrSyncIterationExhausted indicates pagination hit MaxIterations. It is
	// logged and reported through SyncResult.Truncated, never returned.
	ErrSyncIterationExhausted = errors.New("sync iteration guard exhausted")

	// ErrSnapshotFresh indicates a snapshot refresh was refused because the
	// last pull is too recent.
	ErrSnapshotFresh = errors.New("snapshot recently refreshed")

	// ErrInvalidCredential indicates a registration request is incomplete.
	ErrInvalidCredential = errors.New("invalid credential")
)

// NoAvailableKeyError carries the attempt trace of a request that found no
// usable credential. Err holds the last credential lookup failure, if any.
type NoAvailableKeyError struct {
	Attempts []model.Attempt
	Err      error
}

func (e *NoAvailableKeyError) Error() string {
	msg := "no available key"
	if len(e.Attempts) > 0 {
		msg += " (attempts: " + model.FormatAttempts(e.Attempts) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrNoAvailableKey as a match.
func (e *NoAvailableKeyError) Is(target error) bool { return target == ErrNoAvailableKey }

func (e *NoAvailableKeyError) Unwrap() error { return e.Err }

// UpstreamHTTPError is a non-2xx upstream response.
type UpstreamHTTPError struct {
	Status int
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream http status %d", e.Status)
}

// UpstreamAPIError is an error object in an otherwise successful upstream
// response body.
type UpstreamAPIError struct {
	Code    int
	Message string
}

func (e *UpstreamAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream api error %d", e.Code)
	}
	return fmt.Sprintf("upstream api error %d: %s", e.Code, e.Message)
}

package player

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingElement means a collaborator the operation needs was never
	// attached. The operation degrades to a no-op.
	ErrMissingElement = errors.New("player is missing a required component")
	// ErrNoResource means there is nothing loaded to act on.
	ErrNoResource = errors.New("no track loaded")
	// ErrPending means another transport operation is still running; the
	// new one was dropped.
	ErrPending = errors.New("transport operation already in progress")
	// ErrAborted means a newer load superseded this one.
	ErrAborted = errors.New("load aborted")
)

// AcquisitionError is a failure to fetch or decode a track. It is the only
// failure shown to the user.
type AcquisitionError struct {
	Track string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Track, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

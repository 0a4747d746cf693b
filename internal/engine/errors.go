// ABOUTME: Error taxonomy for engine calls: unreachable, rejected, decode failure
// ABOUTME: Callers classify with errors.Is / errors.As; detail never leaves the process

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the engine could not be reached (refused, timeout, reset).
	ErrUnreachable = errors.New("engine unreachable")

	// ErrDecode means the engine replied but the body did not match the expected schema.
	ErrDecode = errors.New("engine response decode failure")
)

// RejectedError is returned when the engine answers with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("engine rejected request: status %d: %s", e.StatusCode, e.Body)
}

// IsRejected reports whether err is a RejectedError and returns it.
func IsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

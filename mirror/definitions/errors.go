package definitions

import (
	"errors"
	"fmt"
)

var (
	ErrCommandTimeout       = errors.New("remote command timed out")
	ErrCommandFailed        = errors.New("remote command failed")
	ErrProbeParse           = errors.New("unexpected remote output")
	ErrDeploymentIncomplete = errors.New("helper deployment incomplete")
	ErrValidationFailed     = errors.New("helper self-test failed")
	ErrProcessNotFound      = errors.New("helper process not found")
	ErrInvalidState         = errors.New("invalid session state")

	ErrIncompleteBanner = errors.New("stream closed before the banner was complete")
	ErrTruncatedFrame   = errors.New("stream closed in the middle of a frame")
	ErrFrameTooLarge    = errors.New("frame length exceeds limit")
	ErrTransport        = errors.New("transport error")
	ErrStreamClosed     = errors.New("frame stream closed by peer")
	ErrClientClosed     = errors.New("client closed")
)

// ProtocolError reports a malformed or cut-off frame stream. Kind is one of
// ErrIncompleteBanner, ErrTruncatedFrame or ErrFrameTooLarge.
type ProtocolError struct {
	Kind     error
	Expected int
	Read     int
	Err      error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol error: %v (read %d of %d bytes)", e.Kind, e.Read, e.Expected)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

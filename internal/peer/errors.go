package peer

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("session closed")
	ErrWrongRole        = errors.New("step not valid for this role")
	ErrWrongState       = errors.New("step not valid in this state")
	ErrNoLocalStream    = errors.New("local stream not attached")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
)

// SessionError is a failed negotiation step.
type SessionError struct {
	Op  string
	ID  string
	Err error
}

func (e *SessionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newError(op, id string, err error) *SessionError {
	return &SessionError{Op: op, ID: id, Err: err}
}

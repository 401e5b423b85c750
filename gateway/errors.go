package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers an unreachable gateway and any non-2xx reply.
	ErrTransport = errors.New("gateway: transport failure")
	// ErrMalformedPayload covers a reply that is not JSON or not a list.
	ErrMalformedPayload = errors.New("gateway: malformed payload")
)

// Error describes a failed gateway call. Kind is one of the sentinels above.
type Error struct {
	Op     string
	Kind   error
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func transportErr(op string, status int, err error) error {
	return &Error{Op: op, Kind: ErrTransport, Status: status, Err: err}
}

func malformedErr(op string, err error) error {
	return &Error{Op: op, Kind: ErrMalformedPayload, Err: err}
}

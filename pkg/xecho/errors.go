package xecho

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConnectFailed = errors.New("connect failed")
	ErrBindFailed    = errors.New("bind failed")
	ErrAcceptFailed  = errors.New("accept failed")
	ErrSendFailed    = errors.New("send failed")
	ErrReceiveFailed = errors.New("receive failed")
	ErrTimedOut      = errors.New("timed out")
)

// EchoError ends a loop. errors.Is matches both Op and the underlying cause.
type EchoError struct {
	Op   error
	Addr string
	Err  error
}

func newEchoError(op error, addr string, err error) *EchoError {
	return &EchoError{Op: op, Addr: addr, Err: err}
}

func (e *EchoError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%v: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%v %s: %v", e.Op, e.Addr, e.Err)
}

func (e *EchoError) Unwrap() []error {
	return []error{e.Op, e.Err}
}

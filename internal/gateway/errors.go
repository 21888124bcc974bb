package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrGateway     = errors.New("payment gateway error")
	ErrCapture     = errors.New("payment capture failed")
	ErrRefund      = errors.New("payment refund failed")
	ErrUnsupported = errors.New("unsupported payment gateway")
)

const unknownError = "Unknown payment gateway error"

// Error is a failed provider call. It matches ErrGateway, plus Kind when set.
type Error struct {
	Gateway  string
	Endpoint string
	Status   int
	Message  string
	Kind     error
	Err      error
	timeout  bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = unknownError
	}
	return fmt.Sprintf("%s: %s", e.Gateway, msg)
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrGateway}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Timeout reports whether the provider did not answer in time.
func (e *Error) Timeout() bool { return e.timeout }

type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported payment gateway: %s", e.Name)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

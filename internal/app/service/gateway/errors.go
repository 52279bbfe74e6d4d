package gateway

import (
	"errors"
	"fmt"
)

// ErrBadSignature means a webhook payload failed authentication. The caller
// must reject with 401 and produce no side effects, not even a dedup record.
var ErrBadSignature = errors.New("invalid webhook signature")

// ValidationError is a malformed or out-of-range request, rejected before any
// network call. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// DeclinedError is a provider-level business decline. Terminal: retrying
// cannot change the outcome.
type DeclinedError struct {
	Code string
	Msg  string
}

func (e *DeclinedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Msg)
	}
	return "payment declined: " + e.Msg
}

// NetworkError is a transport-level failure (timeout, connection reset,
// provider 5xx). Retryable by the router within its attempt bound.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable classifies an adapter error for the router's retry loop. Only
// network-level failures qualify; declines and validation short-circuit.
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

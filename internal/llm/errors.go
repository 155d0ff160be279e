package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError marks a failure in reaching the provider or a
// server-side condition worth retrying: connection failures, timeouts,
// 429s, and 5xx responses. The retry wrapper treats exactly these as
// transient.
type TransportError struct {
	Provider string
	Status   int // HTTP status when known, else 0
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider error %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider unreachable: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError marks a response the client could not interpret: bad
// JSON, a missing expected field, or a type mismatch. Retrying will
// not help; these surface immediately.
type ProtocolError struct {
	Provider string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol error: %v", e.Provider, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: transport-level
// failures and raw network errors qualify; protocol and context errors
// do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryableStatus reports whether an HTTP status from a provider
// should be classified as transient.
func retryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

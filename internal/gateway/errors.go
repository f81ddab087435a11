package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind partitions gateway failures into the categories the sync core
// reacts to differently.
type Kind int

const (
	// KindNetwork is a transport-level failure: timeout, refused
	// connection, DNS error. Recoverable; mutations roll back.
	KindNetwork Kind = iota

	// KindUnauthorized means the credentials were rejected. Propagated
	// to the session layer; optimistic mutations are not rolled back.
	KindUnauthorized

	// KindNotFound means the targeted record no longer exists
	// server-side. Mutations treat it as success.
	KindNotFound

	// KindServer is a 5xx, an unexpected 4xx, or a malformed payload.
	// Recoverable; mutations roll back.
	KindServer
)

// String returns the kind name for logs and error text.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Error is a classified gateway failure.
type Error struct {
	Kind       Kind
	StatusCode int // 0 for transport-level failures
	Message    string
	Err        error // underlying transport error, if any
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindNetwork when err is
// not a gateway error (a bare transport error from a lower layer).
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindNetwork
}

// IsKind reports whether err (or any error in its chain) is a gateway
// error of the given kind.
func IsKind(err error, kind Kind) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == kind
}

// classifyStatus maps a non-2xx HTTP response to a gateway error.
func classifyStatus(status int, message string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindUnauthorized
	case status == http.StatusNotFound:
		kind = KindNotFound
	default:
		kind = KindServer
	}
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// classifyTransport wraps a failed round trip. Context cancellation is
// passed through so torn-down callers see ctx.Err, not a gateway error.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
}

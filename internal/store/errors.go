package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error kinds returned by the client. Check them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConnection = errors.New("connection failure")
	ErrTimeout    = errors.New("timeout")
	ErrValidation = errors.New("validation failure")
	ErrServer     = errors.New("server error")
)

// RequestError describes a failed call to the data-store service.
type RequestError struct {
	Kind   error
	Method string
	Path   string
	Status int
	Detail string
	Err    error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// transportKind classifies an error returned by http.Client.Do.
func transportKind(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrConnection
}

// statusKind classifies a non-successful HTTP status.
func statusKind(status int) error {
	switch {
	case status == 404:
		return ErrNotFound
	case status == 400 || status == 422:
		return ErrValidation
	case status == 408 || status == 504:
		return ErrTimeout
	default:
		return ErrServer
	}
}

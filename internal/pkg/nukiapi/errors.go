package nukiapi

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	// The request failed or returned a non-2xx status
	KindTransport ErrorKind = iota
	// The API answered with its error envelope (detailMessage)
	KindVendor
	// No lock or pin matched the lookup
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport error"
	case KindVendor:
		return "vendor error"
	case KindNotFound:
		return "not found"
	}

	return fmt.Sprintf("unknown error kind (%d)", int(k))
}

// APIError is returned by every WebAPI operation that fails
type APIError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Status     string
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Op + ": " + e.Kind.String()

	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP status %d", e.StatusCode)
		if e.Status != "" {
			msg += " (" + e.Status + ")"
		}
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Cause() error {
	return e.Err
}

func notFound(op string, format string, args ...interface{}) *APIError {
	return &APIError{
		Kind:   KindNotFound,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	}
}

func errorKindIs(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

func IsTransport(err error) bool {
	return errorKindIs(err, KindTransport)
}

func IsVendor(err error) bool {
	return errorKindIs(err, KindVendor)
}

func IsNotFound(err error) bool {
	return errorKindIs(err, KindNotFound)
}

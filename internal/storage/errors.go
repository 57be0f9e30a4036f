package storage

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Kind classifies a blob store failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindTransient    Kind = "transient"
	KindUnknown      Kind = "unknown"
)

// Error is the tagged failure returned by every BlobStore call.
// Recoverable marks failures an alternate retrieval transport may get past.
type Error struct {
	Op          string
	Path        string
	Kind        Kind
	Recoverable bool
	Err         error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error with the recoverable flag derived from kind.
func NewError(op, path string, kind Kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Recoverable: kind == KindTransient, Err: err}
}

// KindOf returns the kind of a storage error, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a classified not-found failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRecoverable reports whether err justifies trying an alternate retrieval strategy.
func IsRecoverable(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Recoverable
}

// KindFromStatus maps an HTTP status code to a failure kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	}
	return KindUnknown
}

// isDecodeError reports response-parsing incompatibilities: the remote answered
// but the client could not make sense of the body.
func isDecodeError(err error) bool {
	var (
		xmlSyntax  *xml.SyntaxError
		xmlUnmarsh xml.UnmarshalError
		jsonSyntax *json.SyntaxError
		jsonType   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &xmlSyntax), errors.As(err, &xmlUnmarsh):
		return true
	case errors.As(err, &jsonSyntax), errors.As(err, &jsonType):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}

// classifyTransport handles failures that carry no remote status code.
func classifyTransport(op, path string, err error) *Error {
	if isDecodeError(err) {
		return &Error{Op: op, Path: path, Kind: KindUnknown, Recoverable: true, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(op, path, KindTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(op, path, KindTransient, err)
	}
	return NewError(op, path, KindUnknown, err)
}

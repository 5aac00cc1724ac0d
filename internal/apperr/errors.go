// Package apperr defines the failure kinds surfaced by the service and how
// they map onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidToken      = errors.New("invalid authentication token")
	ErrSessionNotFound   = errors.New("session not found")
	ErrLLMUnavailable    = errors.New("language model unavailable")
	ErrPersistence       = errors.New("failed to persist conversation")
	ErrDataCorruption    = errors.New("stored data is corrupted")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrTransient         = errors.New("infrastructure temporarily unavailable")
	ErrBadRequest        = errors.New("bad request")
	ErrNotFound          = errors.New("not found")
)

var kinds = []error{
	ErrInvalidToken,
	ErrSessionNotFound,
	ErrLLMUnavailable,
	ErrPersistence,
	ErrDataCorruption,
	ErrUnsupportedFormat,
	ErrTransient,
	ErrBadRequest,
	ErrNotFound,
}

// Error is a classified failure. Its Error text carries the whole cause
// chain for the logs while Message only exposes kind and msg.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	text := e.public()
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func (e *Error) public() string {
	if e.msg == "" {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.msg
}

// Wrap tags err with kind. The returned error matches both kind and err
// under errors.Is.
func Wrap(kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, cause: err}
}

// New builds an error of the given kind carrying a descriptive message.
func New(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Kind returns the taxonomy sentinel err belongs to, or nil. The outermost
// classification wins.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch Kind(err) {
	case ErrInvalidToken:
		return http.StatusUnauthorized
	case ErrSessionNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrLLMUnavailable:
		return http.StatusBadGateway
	case ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message is the human readable text exposed to API clients. Errors outside
// the taxonomy are reported generically so driver or provider details stay
// in the logs.
func Message(err error) string {
	if err == nil {
		return ""
	}
	kind := Kind(err)
	if kind == nil {
		return "internal server error"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.public()
	}
	return kind.Error()
}

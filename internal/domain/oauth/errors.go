package oauth

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidScope indicates a requested scope the client does not carry.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidToken indicates a missing, expired, mistyped or redeemed token or code.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnauthorized indicates a token that cannot be trusted or whose owner is gone.
	ErrUnauthorized = errors.New("unauthorized request")
	ErrNotFound     = errors.New("not found")
)

// Error pairs one of the sentinel kinds with the message returned to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// New returns an error of the given kind with a caller-facing message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidScope):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show the caller.
func Message(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Error()
	}
	for _, kind := range []error{ErrInvalidRequest, ErrInvalidScope, ErrInvalidToken, ErrUnauthorized, ErrNotFound} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}

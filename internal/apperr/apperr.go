// Package apperr defines the error kinds shared by the services and their
// HTTP translation.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindInvalidRefreshToken
	KindInvalidUser
	KindInvalidToken
	KindInactiveUser
	KindForbidden
	KindNotFound
	KindBadRequest
	KindConflict
	KindMalformedDigest
	KindUnencodableClaims
	KindServiceUnavailable
)

// Error carries a kind and a message that is safe to return to clients.
// Status overrides the kind's default status, used for upstream passthrough.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden)
// holds regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Message: message, Status: e.Status}
}

// Wrap keeps the public message and attaches cause for logging.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Status: e.Status, Err: cause}
}

var (
	ErrInvalidCredentials  = New(KindInvalidCredentials, "incorrect username or password")
	ErrInvalidRefreshToken = New(KindInvalidRefreshToken, "invalid refresh token")
	ErrInvalidUser         = New(KindInvalidUser, "user no longer exists")
	ErrInvalidToken        = New(KindInvalidToken, "could not validate credentials")
	ErrInactiveUser        = New(KindInactiveUser, "inactive user")
	ErrForbidden           = New(KindForbidden, "not enough permissions")
	ErrNotFound            = New(KindNotFound, "not found")
	ErrBadRequest          = New(KindBadRequest, "bad request")
	ErrConflict            = New(KindConflict, "already exists")
	ErrMalformedDigest     = New(KindMalformedDigest, "internal server error")
	ErrUnencodableClaims   = New(KindUnencodableClaims, "internal server error")
	ErrServiceUnavailable  = New(KindServiceUnavailable, "service unavailable")
)

// FromStatus builds an error for a 4xx answer received from another service.
func FromStatus(status int, message string) *Error {
	var kind Kind
	switch status {
	case http.StatusBadRequest:
		kind = KindBadRequest
	case http.StatusUnauthorized:
		kind = KindInvalidCredentials
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	default:
		kind = KindBadRequest
	}
	return &Error{Kind: kind, Message: message, Status: status}
}

// HTTPStatus maps err to a response status and client message. Errors outside
// the taxonomy become 500 with a generic message.
func HTTPStatus(err error) (int, string) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "internal server error"
	}
	if e.Status != 0 {
		return e.Status, e.Message
	}
	return statusOf(e.Kind), e.Message
}

func statusOf(kind Kind) int {
	switch kind {
	case KindInvalidCredentials, KindInvalidRefreshToken, KindInvalidUser, KindInvalidToken:
		return http.StatusUnauthorized
	case KindInactiveUser, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest, KindConflict:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

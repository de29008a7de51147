package service

import (
	"errors"
	"net/http"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindConflict
	KindRateLimit
)

// Status maps an error kind to its HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type every service operation returns for expected
// failures. Message is safe to show to callers; Err is for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func AuthenticationError(msg string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: msg, Err: cause}
}

func AuthorizationError(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func ConflictError(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func RateLimitError(msg string) *Error {
	return &Error{Kind: KindRateLimit, Message: msg}
}

var (
	// ErrNotAuthenticated never says why a credential was rejected.
	ErrNotAuthenticated   = AuthenticationError("Invalid or expired token", nil)
	ErrInvalidCredentials = AuthenticationError("Invalid credentials", nil)
	ErrTempTokenExpired   = AuthenticationError("temporary token expired", nil)
	ErrDomainNotAllowed   = AuthorizationError("domain not allowed")
	ErrAppNotAllowed      = AuthorizationError("app access not permitted")
	ErrEmailTaken         = ConflictError("email already registered")
)

// KindOf returns the kind of err, KindInternal for anything unrecognized.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// IsNotAuthenticated reports whether err is an authentication failure.
func IsNotAuthenticated(err error) bool {
	return KindOf(err) == KindAuthentication
}

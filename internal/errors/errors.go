package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodePayload     Code = 14
	CodeNotFound    Code = 15
	CodeBlocked     Code = 16
	CodeConflict    Code = 17
	CodeAmbiguous   Code = 18
	CodeTxFailed    Code = 19
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	cErr, ok := As(err)
	return ok && cErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName returns the stable snake_case label used in error envelopes.
func TypeName(err error) string {
	cErr, ok := As(err)
	if !ok {
		return "internal_error"
	}
	switch cErr.Code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodePayload:
		return "malformed_payload"
	case CodeNotFound:
		return "not_found"
	case CodeBlocked:
		return "command_blocked"
	case CodeConflict:
		return "conflict"
	case CodeAmbiguous:
		return "ambiguous_result"
	case CodeTxFailed:
		return "transaction_failed"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps an error to the status code the HTTP surface returns.
func HTTPStatus(err error) int {
	cErr, ok := As(err)
	if !ok {
		return 500
	}
	switch cErr.Code {
	case CodeUsage:
		return 400
	case CodeAuth:
		return 401
	case CodeBlocked:
		return 403
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeRateLimited:
		return 429
	case CodePayload:
		return 502
	case CodeUnavailable:
		return 503
	case CodeUnsupported:
		return 501
	default:
		return 500
	}
}

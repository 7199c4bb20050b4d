package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine readable error code surfaced to clients.
type Code string

const (
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeProviderCallFailed  Code = "PROVIDER_CALL_FAILED"
	CodeUnknownProvider     Code = "UNKNOWN_PROVIDER"
	CodeNoUserMessage       Code = "NO_USER_MESSAGE"
	CodeSummaryFailed       Code = "SUMMARY_FAILED"
	CodeValidationFailed    Code = "VALIDATION_FAILED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL"
)

// Error is a coded error. Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors for errors.Is checks.
var (
	ErrSessionNotFound     = &Error{Code: CodeSessionNotFound, Message: "session not found"}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable, Message: "provider unavailable"}
	ErrProviderCallFailed  = &Error{Code: CodeProviderCallFailed, Message: "provider call failed"}
	ErrUnknownProvider     = &Error{Code: CodeUnknownProvider, Message: "unknown provider"}
	ErrNoUserMessage       = &Error{Code: CodeNoUserMessage, Message: "no user message found"}
	ErrSummaryFailed       = &Error{Code: CodeSummaryFailed, Message: "summary failed"}
	ErrValidationFailed    = &Error{Code: CodeValidationFailed, Message: "validation failed"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrRateLimited         = &Error{Code: CodeRateLimited, Message: "too many requests"}
)

// NewError returns a coded error with the given message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to cause.
func WrapError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// CodeOf returns the code of the first coded error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code == CodeProviderCallFailed || e.Code == CodeSummaryFailed {
			return e.Error()
		}
		return e.Message
	}
	return "internal server error"
}

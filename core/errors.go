package core

import (
	"errors"
	"fmt"
)

// Code classifies a protocol failure so callers can choose their remedy:
// restart the flow, retry with a fresh signature, or back off and retry.
type Code string

const (
	CodeInvalidArgument  Code = "invalid-argument"
	CodeNotFound         Code = "not-found"
	CodeDeadlineExceeded Code = "deadline-exceeded"
	CodeUnauthenticated  Code = "unauthenticated"
	CodeInternal         Code = "internal"
)

// Error is a coded protocol error. It wraps an optional cause and is
// compatible with errors.Is / errors.As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a coded error without a cause.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds a coded error around an underlying cause.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the protocol code from err, or CodeInternal if err
// carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Signature verification failures. AddressMismatch is deliberately
// distinct from InvalidSignature: a valid signature recovering to the
// wrong address means someone else's signature was presented as this
// wallet's, not that the bytes were malformed.
var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrAddressMismatch        = errors.New("recovered address does not match wallet address")
	ErrSafeVerificationFailed = errors.New("safe wallet verification failed")
	ErrTokenExpired           = errors.New("token has expired")
	ErrTokenInvalidated       = errors.New("token has been invalidated")
	ErrInvalidToken           = errors.New("invalid token")
)

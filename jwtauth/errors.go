package jwtauth

import (
	"errors"
	"fmt"
)

// Kind classifies why a bearer token was rejected.
type Kind string

const (
	KindMalformedToken       Kind = "MalformedToken"
	KindUnsupportedAlgorithm Kind = "UnsupportedAlgorithm"
	KindInvalidSignature     Kind = "InvalidSignature"
	KindExpiredToken         Kind = "ExpiredToken"
	KindMissingRequiredClaim Kind = "MissingRequiredClaim"
	KindInvalidClaim         Kind = "InvalidClaim"
	KindMissingToken         Kind = "MissingToken"
)

// Error is a verification failure. Kind is for logs and metrics only and must
// not be echoed to clients.
type Error struct {
	Kind  Kind
	Claim string // set for claim-related kinds
	Err   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Claim != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Claim)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrMalformedToken       = &Error{Kind: KindMalformedToken}
	ErrUnsupportedAlgorithm = &Error{Kind: KindUnsupportedAlgorithm}
	ErrInvalidSignature     = &Error{Kind: KindInvalidSignature}
	ErrExpiredToken         = &Error{Kind: KindExpiredToken}
	ErrMissingRequiredClaim = &Error{Kind: KindMissingRequiredClaim}
	ErrInvalidClaim         = &Error{Kind: KindInvalidClaim}
	ErrMissingToken         = &Error{Kind: KindMissingToken}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func claimError(kind Kind, claim string, err error) *Error {
	return &Error{Kind: kind, Claim: claim, Err: err}
}

// KindOf returns the Kind carried by err, or "" if err is not a verification error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

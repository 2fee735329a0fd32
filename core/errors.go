package core

import (
	"context"
	"errors"
	"fmt"
)

// Code is the stable identifier of a domain error.
type Code string

const (
	CodeMalformedIdentifier  Code = "CAL-4001"
	CodeAccountNotFound      Code = "CAL-4041"
	CodeNotFound             Code = "CAL-4040"
	CodeFolderMismatch       Code = "CAL-4002"
	CodeMandatoryField       Code = "CAL-4003"
	CodeConflict             Code = "CAL-4090"
	CodeUnsupportedOperation Code = "CAL-5010"
	CodeCapabilityMismatch   Code = "CAL-5011"
	CodeUnexpected           Code = "CAL-5000"
	CodeNoResultProduced     Code = "CAL-5001"
	CodeTimedOut             Code = "CAL-5040"
	CodeFreeBusyNotAvailable Code = "CAL-5030"
	CodeResultTooLarge       Code = "CAL-4130"
)

// Error is a domain error. Account, Provider and Folder carry the context the
// composition layer attaches before the error reaches a caller; Folder is
// account-local inside backends and composite once re-contextualized.
type Error struct {
	Code     Code
	Message  string
	Account  AccountID
	Provider string
	Folder   string
	Err      error
}

// Sentinels for errors.Is; matching is by code.
var (
	ErrMalformedIdentifier  = &Error{Code: CodeMalformedIdentifier, Message: "malformed identifier", Account: NoAccount}
	ErrAccountNotFound      = &Error{Code: CodeAccountNotFound, Message: "account not found", Account: NoAccount}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "object not found", Account: NoAccount}
	ErrFolderMismatch       = &Error{Code: CodeFolderMismatch, Message: "folder does not match", Account: NoAccount}
	ErrMandatoryField       = &Error{Code: CodeMandatoryField, Message: "mandatory field missing", Account: NoAccount}
	ErrConflict             = &Error{Code: CodeConflict, Message: "concurrent modification", Account: NoAccount}
	ErrUnsupportedOperation = &Error{Code: CodeUnsupportedOperation, Message: "operation not supported by provider", Account: NoAccount}
	ErrCapabilityMismatch   = &Error{Code: CodeCapabilityMismatch, Message: "backend does not match declared capabilities", Account: NoAccount}
	ErrUnexpected           = &Error{Code: CodeUnexpected, Message: "unexpected error", Account: NoAccount}
	ErrNoResultProduced     = &Error{Code: CodeNoResultProduced, Message: "no result produced for key", Account: NoAccount}
	ErrTimedOut             = &Error{Code: CodeTimedOut, Message: "timed out", Account: NoAccount}
	ErrFreeBusyNotAvailable = &Error{Code: CodeFreeBusyNotAvailable, Message: "no free/busy data available", Account: NoAccount}
	ErrResultTooLarge       = &Error{Code: CodeResultTooLarge, Message: "result size exceeded", Account: NoAccount}
)

// NewError creates a domain error of the sentinel's code with a specific
// message.
func NewError(sentinel *Error, format string, args ...any) *Error {
	return &Error{Code: sentinel.Code, Message: fmt.Sprintf(format, args...), Account: NoAccount}
}

// Wrap creates a domain error of the sentinel's code around a cause.
func Wrap(sentinel *Error, cause error, format string, args ...any) *Error {
	e := NewError(sentinel, format, args...)
	e.Err = cause
	return e
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Folder != "" {
		msg += " [folder " + e.Folder + "]"
	}
	if e.Account != NoAccount {
		msg += fmt.Sprintf(" [account %d", e.Account)
		if e.Provider != "" {
			msg += ", provider " + e.Provider
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Clone returns a shallow copy that can be re-contextualized without touching
// shared instances.
func (e *Error) Clone() *Error {
	cp := *e
	return &cp
}

// AsError returns err as a domain error. Errors that are not domain errors
// (and context errors) are wrapped into ErrUnexpected and ErrTimedOut.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if isContextErr(err) {
		return Wrap(ErrTimedOut, err, "operation abandoned")
	}
	return Wrap(ErrUnexpected, err, "unexpected error")
}

// IsUnsupported reports whether err signals an operation the provider does
// not offer, as opposed to a failure while performing it.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}

// Unsupported builds the error returned when no declared capability serves an
// operation.
func Unsupported(providerID string) *Error {
	e := NewError(ErrUnsupportedOperation, "operation not supported by provider %q", providerID)
	e.Provider = providerID
	return e
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

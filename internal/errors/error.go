// Package errors holds the error taxonomy shared by the storage layer.
//
// Every error returned by a storage operation belongs to one category sentinel
// (ErrRequestNotValid, ErrNotFound, ErrAlreadyExists, ErrGeneric) and may also
// carry the underlying cause; errors.Is works against either.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented  = errors.New("this function is not yet implemented")
	ErrRequestNotValid = errors.New("request not valid")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrGeneric         = errors.New("storage failure")
)

// StorageError is a categorised storage failure.
type StorageError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap exposes both the category and the cause.
func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, cause error, format string, args ...any) error {
	return &StorageError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// NotValid reports a malformed request: bad rule, bad storage path shape, reserved characters.
func NotValid(format string, args ...any) error {
	return newError(ErrRequestNotValid, nil, format, args...)
}

// NotFound reports a missing entity, version or history.
func NotFound(cause error, format string, args ...any) error {
	return newError(ErrNotFound, cause, format, args...)
}

// AlreadyExists reports a create on an occupied physical location.
func AlreadyExists(cause error, format string, args ...any) error {
	return newError(ErrAlreadyExists, cause, format, args...)
}

// Generic reports an I/O failure or unexpected filesystem state.
func Generic(cause error, format string, args ...any) error {
	return newError(ErrGeneric, cause, format, args...)
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("the %s configuration value must be set", config)
}

package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures so views can decide how to surface them.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindSync            Kind = "sync"
	KindUnauthenticated Kind = "unauthenticated"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrSync            = &Error{Kind: KindSync}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
)

// Error is the single error type crossing the gateway and view boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind only, so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of err, or KindSync for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSync
}

// UserMessage is the text shown in a notification for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

func Conflict(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: msg}
}

func Unauthenticated(op, msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Op: op, Message: msg}
}

// Sync wraps a transport or server failure.
func Sync(op string, err error) *Error {
	return &Error{Kind: KindSync, Op: op, Err: err}
}

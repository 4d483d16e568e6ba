package docstore

import (
	"errors"
	"fmt"
)

// ErrorKind separates an unreachable store from one that answered with a refusal.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "StoreUnavailable"
	KindRejected    ErrorKind = "StoreRejected"
)

// StoreError is returned by every Gateway operation that fails.
type StoreError struct {
	Kind       ErrorKind
	Action     Action
	Collection Kind
	Message    string
	// Suggestion is the remediation hint reported by the store, passed through verbatim.
	Suggestion string
	StatusCode int
	Err        error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Kind, e.Action, e.Collection)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

func unavailable(action Action, collection Kind, status int, err error) *StoreError {
	return &StoreError{Kind: KindUnavailable, Action: action, Collection: collection, StatusCode: status, Err: err}
}

func rejected(action Action, collection Kind, status int, message, suggestion string) *StoreError {
	return &StoreError{Kind: KindRejected, Action: action, Collection: collection, StatusCode: status, Message: message, Suggestion: suggestion}
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == KindUnavailable
}

// IsRejected reports whether the store was reached but refused the operation.
func IsRejected(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == KindRejected
}

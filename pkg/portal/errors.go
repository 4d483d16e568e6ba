package portal

import (
	"errors"
	"fmt"
)

var (
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrPageNotConnected = errors.New("page has no access token")
	ErrEmptyMessage     = errors.New("message text is empty")
)

// NotFoundError is returned when an entity is unknown to both the cache and the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InputError is returned for requests that can never succeed as sent.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func invalid(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

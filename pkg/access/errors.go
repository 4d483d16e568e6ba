package access

import (
	"errors"
	"fmt"
)

// ErrAuthenticationFailed is returned for any failed login. It never says which part was wrong.
var ErrAuthenticationFailed = errors.New("invalid email or credential")

// DeniedError is returned when an actor is not allowed to perform an action.
type DeniedError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s: %s", e.Action, e.Reason)
}

func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}

func deny(actor string, action, reason string) *DeniedError {
	return &DeniedError{ActorID: actor, Action: action, Reason: reason}
}

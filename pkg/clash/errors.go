package clash

import (
	"errors"
	"fmt"
)

// ErrActionNotAllowed is returned when a user action is not offered in the
// current state. Nothing is sent.
type ErrActionNotAllowed struct {
	Action string
	Reason string
}

func (e *ErrActionNotAllowed) Error() string {
	return fmt.Sprintf("%s not allowed: %s", e.Action, e.Reason)
}

func IsActionNotAllowed(err error) bool {
	var target *ErrActionNotAllowed
	return errors.As(err, &target)
}

func notAllowed(action, reason string, args ...interface{}) error {
	return &ErrActionNotAllowed{Action: action, Reason: fmt.Sprintf(reason, args...)}
}

// ErrNotStarted is returned by Engine actions before Start or after Stop.
type ErrNotStarted struct{}

func (e *ErrNotStarted) Error() string {
	return "engine is not running"
}

func IsNotStarted(err error) bool {
	var target *ErrNotStarted
	return errors.As(err, &target)
}

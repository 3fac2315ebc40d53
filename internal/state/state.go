// Package state defines the error returned when a lifecycle operation is
// attempted from an invalid source state.
package state

import (
	"fmt"
	"strings"
)

// Error reports an invalid state transition with the expected and actual states.
type Error struct {
	Entity   string
	ID       string
	Expected []string
	Actual   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: expected status %s, got %s",
		e.Entity, e.ID, strings.Join(e.Expected, "/"), e.Actual)
}

// NewError builds a state transition error.
func NewError(entity, id string, expected []string, actual string) *Error {
	return &Error{Entity: entity, ID: id, Expected: expected, Actual: actual}
}

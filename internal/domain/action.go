// Package domain provides core domain models and types.
package domain

import "fmt"

// Action represents a portfolio mutation or query command.
// The set is closed: every executor dispatch switches exhaustively over
// these values, so adding an action is a compile-visible change.
type Action string

const (
	// ActionAdd adds shares to a position (creating it if needed)
	ActionAdd Action = "add"
	// ActionRemove removes shares from a position (deleting it when drained)
	ActionRemove Action = "remove"
	// ActionUpdate sets quantity and/or average cost on an existing position
	ActionUpdate Action = "update"
	// ActionShow reads a single position or the whole portfolio
	ActionShow Action = "show"
)

// ParseAction converts a raw tag to an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAdd, ActionRemove, ActionUpdate, ActionShow:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// IsMutation reports whether the action writes to the store.
func (a Action) IsMutation() bool {
	return a == ActionAdd || a == ActionRemove || a == ActionUpdate
}

func (a Action) String() string {
	return string(a)
}

package app

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentity is fatal to the new connection attempt.
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrAlreadyInSession  = errors.New("already in a conversation")
	ErrTargetUnavailable = errors.New("user is not available")
	ErrNotFound          = errors.New("user not found")
	ErrMessageTooLong    = errors.New("message too long")
	ErrRateLimited       = errors.New("message sent too quickly")
)

// InsufficientBalanceError refuses a monetized session before it is created.
type InsufficientBalanceError struct {
	Required int64
	Current  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, current %d", e.Required, e.Current)
}

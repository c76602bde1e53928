// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors for the user-facing failure kinds. Callers match them with
// errors.Is; the command layer turns them into plain-language replies.
var (
	ErrDuplicateRule  = errors.New("redirection id already exists")
	ErrRuleNotFound   = errors.New("redirection not found")
	ErrIncompleteRule = errors.New("redirection is missing a source or destination chat")
	// ErrRulePending is returned by Add while the user still has an
	// unconfigured redirection, so Configure always has exactly one target.
	ErrRulePending   = errors.New("another redirection is still being configured")
	ErrNoPendingRule = errors.New("no redirection is awaiting configuration")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUserNotFound  = errors.New("user not found")
	// ErrPasswordRequired is the two-factor challenge raised by the
	// transport after code verification. Expected control flow, not a
	// failure.
	ErrPasswordRequired = errors.New("two-factor password required")
	// ErrNoAuthFlow means there is no authentication in progress for the
	// user; the command layer prompts them to start one.
	ErrNoAuthFlow = errors.New("no authentication in progress")
)

// ConnectionError wraps a transport failure. The core surfaces it to the
// caller without retrying; only the startup reconciler retries, and it does
// so against the backend, not the transport.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// BackendError wraps a persistence API failure.
type BackendError struct {
	Op     string
	Status int
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend %s failed with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

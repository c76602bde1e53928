// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"time"
)

// ChatRole distinguishes the two chat records persisted per redirection.
type ChatRole string

const (
	ChatRoleSource      ChatRole = "source"
	ChatRoleDestination ChatRole = "destination"
)

// UserProfile is the per-user record kept by the persistence backend.
type UserProfile struct {
	ID              int64
	Username        string
	Name            string
	Phone           string
	LastPaymentDate time.Time
	NextPaymentDate time.Time
	CreatedAt       time.Time
}

// StoredRedirection is one persisted redirection rule as returned by the
// backend. Only complete rules (both chat ids present) are stored this way.
type StoredRedirection struct {
	UserID            int64
	RuleID            string
	SourceChatID      int64
	DestinationChatID int64
}

// Store is the persistence collaborator. The production implementation is
// the HTTP RPC client in pkg/relay/backend; tests inject in-memory fakes.
type Store interface {
	// GetUser returns ErrUserNotFound when no record exists.
	GetUser(ctx context.Context, userID int64) (*UserProfile, error)
	CreateUser(ctx context.Context, profile *UserProfile) error

	ListRedirections(ctx context.Context) ([]StoredRedirection, error)
	InsertRedirection(ctx context.Context, userID int64, ruleID string) error
	InsertChatRedirection(ctx context.Context, userID int64, ruleID string, role ChatRole, chatID int64) error
	// DeleteRedirection returns ErrRuleNotFound when no record exists.
	DeleteRedirection(ctx context.Context, userID int64, ruleID string) error
}

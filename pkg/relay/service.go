// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"

	"github.com/rs/zerolog"
)

// Service wires the session manager, registry, subscription engine and
// persistence client behind the operations the command/UI layer calls.
type Service struct {
	log        zerolog.Logger
	store      Store
	sessions   *SessionManager
	registry   *Registry
	engine     *Engine
	mirrors    *MirrorMap
	reconciler *Reconciler
}

// NewService assembles the relay core from its collaborators.
func NewService(cfg *Config, store Store, dialer Dialer, log zerolog.Logger) *Service {
	sessions := NewSessionManager(dialer, log)
	mirrors := NewMirrorMap()
	engine := NewEngine(sessions, mirrors, cfg.Relay, log)
	registry := NewRegistry(store, engine, sessions, cfg.Backend.RetryAttempts, cfg.Backend.RetryDelayDuration(), log)
	return &Service{
		log:        log.With().Str("component", "service").Logger(),
		store:      store,
		sessions:   sessions,
		registry:   registry,
		engine:     engine,
		mirrors:    mirrors,
		reconciler: NewReconciler(store, registry, cfg.Backend.RetryAttempts, cfg.Backend.RetryDelayDuration(), log),
	}
}

// Close stops background work. Live subscriptions die with the process.
func (s *Service) Close() {
	s.registry.Close()
}

// Reconcile replays all persisted redirections through the registry's
// activation path. Called once at process start.
func (s *Service) Reconcile(ctx context.Context) error {
	return s.reconciler.Reconcile(ctx)
}

// AddRedirection creates a new pending redirection for the user.
func (s *Service) AddRedirection(ctx context.Context, userID int64, ruleID string) error {
	return s.registry.Add(ctx, userID, ruleID)
}

// ConfigureRedirection supplies the chat ids for the user's pending
// redirection and activates forwarding.
func (s *Service) ConfigureRedirection(ctx context.Context, userID, sourceChatID, destinationChatID int64) (*Rule, error) {
	return s.registry.Configure(ctx, userID, sourceChatID, destinationChatID)
}

// DeleteRedirection stops and removes a redirection.
func (s *Service) DeleteRedirection(ctx context.Context, userID int64, ruleID string) error {
	return s.registry.Remove(ctx, userID, ruleID)
}

// ListRedirections returns the user's rules sorted by id.
func (s *Service) ListRedirections(userID int64) []*Rule {
	return s.registry.List(userID)
}

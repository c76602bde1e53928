// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Session is one user's transport connection plus the transient
// authentication state attached while the user signs in.
type Session struct {
	UserID int64

	// mu guards client and auth. It is per-session so operations on
	// unrelated users never serialize against each other.
	mu     sync.Mutex
	client Client
	auth   *AuthFlow
}

// Client returns the session's transport connection. Only valid after a
// successful SessionManager.Acquire.
func (s *Session) Client() Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// EnsureConnected reconnects the underlying transport if it reports itself
// disconnected.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureConnectedLocked(ctx)
}

func (s *Session) ensureConnectedLocked(ctx context.Context) error {
	if s.client == nil {
		return &ConnectionError{Op: "connect", Err: errors.New("no transport client")}
	}
	if s.client.IsConnected() {
		return nil
	}
	if err := s.client.Connect(ctx); err != nil {
		_ = s.client.Disconnect()
		return &ConnectionError{Op: "connect", Err: err}
	}
	return nil
}

// SessionManager owns the user to session map. The invariant it maintains is
// that at most one live transport connection exists per user at any time.
type SessionManager struct {
	dialer Dialer
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewSessionManager creates a session manager that dials connections on
// demand through dialer.
func NewSessionManager(dialer Dialer, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		dialer:   dialer,
		log:      log.With().Str("component", "sessions").Logger(),
		sessions: make(map[int64]*Session),
	}
}

// Acquire returns the user's live session, dialing a new transport connection
// if none exists. It is idempotent: concurrent calls for the same user share
// one connection. The map lock is held only for the lookup, so dialing one
// user's connection never blocks another user.
func (sm *SessionManager) Acquire(ctx context.Context, userID int64) (*Session, error) {
	sm.mu.Lock()
	s, ok := sm.sessions[userID]
	if !ok {
		s = &Session{UserID: userID}
		sm.sessions[userID] = s
	}
	sm.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		client, err := sm.dialer.Dial(ctx, userID)
		if err != nil {
			return nil, &ConnectionError{Op: "dial", Err: err}
		}
		s.client = client
		sm.log.Debug().Int64("user_id", userID).Msg("Dialed new transport connection")
	}
	if err := s.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Peek returns the user's session without dialing or connecting.
func (sm *SessionManager) Peek(userID int64) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[userID]
	return s, ok
}

// Release disconnects and evicts the user's session. Safe to call when no
// session exists.
func (sm *SessionManager) Release(userID int64) {
	sm.mu.Lock()
	s, ok := sm.sessions[userID]
	delete(sm.sessions, userID)
	sm.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		if err := s.client.Disconnect(); err != nil {
			sm.log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to disconnect transport client")
		}
		s.client = nil
	}
	s.auth = nil
	sm.log.Info().Int64("user_id", userID).Msg("Session released")
}

// evict drops the session entry without touching the connection. Used by
// auth teardown paths that already hold the session lock.
func (sm *SessionManager) evict(userID int64) {
	sm.mu.Lock()
	delete(sm.sessions, userID)
	sm.mu.Unlock()
}

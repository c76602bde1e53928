// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// codePrefix is the literal marker users must put in front of the
// verification code (e.g. "aa12345"). Telegram blocks accounts that forward
// their login code verbatim, so the bare code is never accepted.
const codePrefix = "aa"

// AuthStage is one step of the multi-step account authentication flow.
type AuthStage int

const (
	StageAwaitingPhone AuthStage = iota
	StageAwaitingCode
	StageAwaitingPassword
	StageComplete
)

func (s AuthStage) String() string {
	switch s {
	case StageAwaitingPhone:
		return "awaiting_phone"
	case StageAwaitingCode:
		return "awaiting_code"
	case StageAwaitingPassword:
		return "awaiting_password"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// AuthFlow is the transient authentication state attached to a session while
// the user signs in. It is discarded on success and on cancellation.
type AuthFlow struct {
	Stage     AuthStage
	Phone     string
	CodeToken string

	// Profile metadata captured when the flow starts, persisted to the
	// backend once the flow completes.
	Username string
	Name     string
}

// AuthEvent tells the command layer what the flow produced and what it needs
// next.
type AuthEvent int

const (
	// AuthCodeSent means a verification code is on its way to the user's
	// devices and the flow now awaits it.
	AuthCodeSent AuthEvent = iota
	// AuthPasswordNeeded is the two-factor challenge: the code was correct
	// but the account requires its password.
	AuthPasswordNeeded
	// AuthCompleted means the account is authorized and the flow is gone.
	AuthCompleted
)

// validatePhone checks that the string is a well-formed international phone
// number in "+<country><number>" form.
func validatePhone(phone string) error {
	parsed, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return fmt.Errorf("%w: phone number must be in international format, e.g. +123456789", ErrInvalidInput)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return fmt.Errorf("%w: phone number is not valid", ErrInvalidInput)
	}
	return nil
}

// stripCodePrefix validates the literal code marker and returns the bare code.
func stripCodePrefix(input string) (string, error) {
	if !strings.HasPrefix(input, codePrefix) || len(input) == len(codePrefix) {
		return "", fmt.Errorf("%w: verification code must carry the %q prefix", ErrInvalidInput, codePrefix)
	}
	return strings.TrimPrefix(input, codePrefix), nil
}

// Connect begins (or short-circuits) the authentication flow for a user.
// It returns true when the account is already authorized, in which case no
// flow is started. Username and name are kept on the flow and persisted to
// the backend when authentication completes.
func (s *Service) Connect(ctx context.Context, userID int64, username, name string) (bool, error) {
	sess, err := s.sessions.Acquire(ctx, userID)
	if err != nil {
		return false, err
	}
	authorized, err := sess.Client().IsAuthorized(ctx)
	if err != nil {
		return false, &ConnectionError{Op: "authorization check", Err: err}
	}
	if authorized {
		return true, nil
	}

	sess.mu.Lock()
	sess.auth = &AuthFlow{Stage: StageAwaitingPhone, Username: username, Name: name}
	sess.mu.Unlock()
	s.log.Info().Int64("user_id", userID).Msg("Authentication flow started")
	return false, nil
}

// SubmitAuthInput advances the user's authentication flow with one piece of
// user input. Invalid phone numbers and unprefixed codes are recoverable: the
// stage is unchanged and the user is reprompted. A failed code or password
// submission discards the whole flow.
func (s *Service) SubmitAuthInput(ctx context.Context, userID int64, input string) (AuthEvent, error) {
	sess, ok := s.sessions.Peek(userID)
	if !ok {
		return 0, ErrNoAuthFlow
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	flow := sess.auth
	if flow == nil {
		return 0, ErrNoAuthFlow
	}
	if err := sess.ensureConnectedLocked(ctx); err != nil {
		return 0, err
	}

	input = strings.TrimSpace(input)
	switch flow.Stage {
	case StageAwaitingPhone:
		if err := validatePhone(input); err != nil {
			return 0, err
		}
		token, err := sess.client.SendCodeRequest(ctx, input)
		if err != nil {
			return 0, &ConnectionError{Op: "code request", Err: err}
		}
		flow.Phone = input
		flow.CodeToken = token
		flow.Stage = StageAwaitingCode
		s.log.Debug().Int64("user_id", userID).Msg("Verification code requested")
		return AuthCodeSent, nil

	case StageAwaitingCode:
		code, err := stripCodePrefix(input)
		if err != nil {
			return 0, err
		}
		err = sess.client.SignIn(ctx, flow.Phone, code, flow.CodeToken)
		if errors.Is(err, ErrPasswordRequired) {
			flow.Stage = StageAwaitingPassword
			s.log.Debug().Int64("user_id", userID).Msg("Two-factor password required")
			return AuthPasswordNeeded, nil
		}
		if err != nil {
			s.abortAuthLocked(sess)
			return 0, fmt.Errorf("sign in failed: %w", err)
		}
		return s.completeAuthLocked(ctx, sess, flow)

	case StageAwaitingPassword:
		err := sess.client.SignInWithPassword(ctx, input)
		if err != nil {
			s.abortAuthLocked(sess)
			return 0, fmt.Errorf("two-factor sign in failed: %w", err)
		}
		return s.completeAuthLocked(ctx, sess, flow)

	default:
		return 0, ErrNoAuthFlow
	}
}

// CancelAuth discards an in-progress authentication flow unconditionally,
// disconnecting the authentication connection. Returns ErrNoAuthFlow when the
// user has nothing to cancel.
func (s *Service) CancelAuth(_ context.Context, userID int64) error {
	sess, ok := s.sessions.Peek(userID)
	if !ok {
		return ErrNoAuthFlow
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.auth == nil {
		return ErrNoAuthFlow
	}
	s.abortAuthLocked(sess)
	s.log.Info().Int64("user_id", userID).Msg("Authentication flow cancelled")
	return nil
}

// completeAuthLocked finishes a successful sign-in: the user profile is
// persisted, the authentication connection is dropped (a redirection-serving
// connection is dialed separately on demand) and the flow is discarded.
// Caller holds sess.mu.
func (s *Service) completeAuthLocked(ctx context.Context, sess *Session, flow *AuthFlow) (AuthEvent, error) {
	flow.Stage = StageComplete

	now := time.Now().UTC()
	profile := &UserProfile{
		ID:              sess.UserID,
		Username:        flow.Username,
		Name:            flow.Name,
		Phone:           flow.Phone,
		LastPaymentDate: now,
		NextPaymentDate: now.Add(24 * time.Hour),
		CreatedAt:       now,
	}
	if err := s.upsertUser(ctx, profile); err != nil {
		// In-memory state still advances: the account is authorized even
		// when the profile write fails.
		s.log.Error().Err(err).Int64("user_id", sess.UserID).Msg("Failed to persist user profile")
	}

	s.abortAuthLocked(sess)
	s.log.Info().Int64("user_id", sess.UserID).Msg("Authentication complete")
	return AuthCompleted, nil
}

// abortAuthLocked drops the flow and the authentication connection, and
// evicts the session entry so the next Acquire dials fresh. Caller holds
// sess.mu; the manager map lock is safe to take here because no path holds it
// while waiting on a session lock it already owns.
func (s *Service) abortAuthLocked(sess *Session) {
	sess.auth = nil
	if sess.client != nil {
		if err := sess.client.Disconnect(); err != nil {
			s.log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("Failed to disconnect auth connection")
		}
		sess.client = nil
	}
	s.sessions.evict(sess.UserID)
}

// upsertUser creates the user's backend record if it does not exist yet.
func (s *Service) upsertUser(ctx context.Context, profile *UserProfile) error {
	_, err := s.store.GetUser(ctx, profile.ID)
	if errors.Is(err, ErrUserNotFound) {
		return s.store.CreateUser(ctx, profile)
	}
	return err
}

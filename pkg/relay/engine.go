// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// subscriptionState tracks the lifecycle of one live subscription.
type subscriptionState int

const (
	subActive subscriptionState = iota
	subStopped // terminal
)

// Subscription binds one active rule to the listener pair installed on its
// owner's transport connection. It carries its bound conversation ids as
// data, so unregistering one redirection never disturbs another's listeners
// on a shared session.
type Subscription struct {
	UserID      int64
	RuleID      string
	Source      int64
	Destination int64

	client  Client
	handles []ListenerHandle
	state   subscriptionState
}

// Engine attaches live listeners for active rules and performs the
// forward/edit/reply mirroring against destination conversations.
type Engine struct {
	sessions *SessionManager
	mirrors  *MirrorMap
	log      zerolog.Logger

	sendRate  rate.Limit
	sendBurst int

	mu       sync.Mutex
	subs     map[subKey]*Subscription
	limiters map[int64]*rate.Limiter
}

var _ Activator = (*Engine)(nil)

// NewEngine creates a subscription engine. cfg.SendRate caps mirrored sends
// per user (messages per second); zero disables the limiter.
func NewEngine(sessions *SessionManager, mirrors *MirrorMap, cfg RelayConfig, log zerolog.Logger) *Engine {
	sendRate := rate.Inf
	if cfg.SendRate > 0 {
		sendRate = rate.Limit(cfg.SendRate)
	}
	sendBurst := cfg.SendBurst
	if sendBurst <= 0 {
		sendBurst = 1
	}
	return &Engine{
		sessions:  sessions,
		mirrors:   mirrors,
		log:       log.With().Str("component", "engine").Logger(),
		sendRate:  sendRate,
		sendBurst: sendBurst,
		subs:      make(map[subKey]*Subscription),
		limiters:  make(map[int64]*rate.Limiter),
	}
}

// Activate installs the listener pair for an active rule on its owner's
// session. Re-activating an already-live subscription is a no-op that logs
// and returns without installing duplicate listeners.
func (e *Engine) Activate(ctx context.Context, rule *Rule) error {
	if rule.Status != RuleActive || !rule.Complete() {
		return fmt.Errorf("%w: %q", ErrIncompleteRule, rule.ID)
	}
	key := makeSubKey(rule.UserID, rule.ID)

	e.mu.Lock()
	_, exists := e.subs[key]
	e.mu.Unlock()
	if exists {
		e.log.Info().Stringer("subscription", key).Msg("Subscription already active, skipping")
		return nil
	}

	sess, err := e.sessions.Acquire(ctx, rule.UserID)
	if err != nil {
		return err
	}
	client := sess.Client()

	sub := &Subscription{
		UserID:      rule.UserID,
		RuleID:      rule.ID,
		Source:      *rule.Source,
		Destination: *rule.Destination,
		client:      client,
		state:       subActive,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.subs[key]; exists {
		// Lost the race to a concurrent activation of the same rule.
		e.log.Info().Stringer("subscription", key).Msg("Subscription already active, skipping")
		return nil
	}
	sub.handles = []ListenerHandle{
		client.On(EventNewMessage, sub.Source, func(ctx context.Context, msg Message) {
			e.handleNewMessage(ctx, sub, msg)
		}),
		client.On(EventMessageEdited, sub.Source, func(ctx context.Context, msg Message) {
			e.handleEdited(ctx, sub, msg)
		}),
	}
	e.subs[key] = sub
	e.log.Info().
		Stringer("subscription", key).
		Int64("source", sub.Source).
		Int64("destination", sub.Destination).
		Msg("Subscription activated")
	return nil
}

// Deactivate removes exactly the listeners Activate installed and transitions
// the subscription to its terminal stopped state. It is synchronous: once it
// returns, no further events are processed for the rule. Sibling
// subscriptions on the same connection are unaffected.
func (e *Engine) Deactivate(_ context.Context, rule *Rule) error {
	key := makeSubKey(rule.UserID, rule.ID)
	e.mu.Lock()
	sub, ok := e.subs[key]
	delete(e.subs, key)
	e.mu.Unlock()
	if !ok {
		e.log.Debug().Stringer("subscription", key).Msg("No live subscription to stop")
		return nil
	}

	for _, handle := range sub.handles {
		sub.client.RemoveListener(handle)
	}
	sub.state = subStopped
	e.log.Info().Stringer("subscription", key).Msg("Subscription stopped")
	return nil
}

// handleNewMessage mirrors one source message into the destination chat. When
// the message replies to something already mirrored, the copy is sent as a
// reply to the mirrored counterpart; a reply to a never-mirrored message
// falls through as a top-level message. Failures are isolated per event: the
// message is simply not mirrored.
func (e *Engine) handleNewMessage(ctx context.Context, sub *Subscription, msg Message) {
	log := e.log.With().
		Int64("user_id", sub.UserID).
		Str("redirection_id", sub.RuleID).
		Int64("message_id", msg.ID).
		Logger()

	content := MessageContent{Text: msg.Text, Media: msg.Media}
	if msg.ReplyToID != 0 {
		if destID, ok := e.mirrors.Get(MakeMessageRef(sub.Source, msg.ReplyToID)); ok {
			content.ReplyTo = destID
		}
	}

	if err := e.waitSend(ctx, sub.UserID); err != nil {
		log.Warn().Err(err).Msg("Send limiter interrupted, message not mirrored")
		return
	}
	destID, err := sub.client.SendMessage(ctx, sub.Destination, content)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to mirror message")
		return
	}
	e.mirrors.Put(MakeMessageRef(sub.Source, msg.ID), destID)
	log.Debug().Int64("mirror_id", destID).Msg("Mirrored message")
}

// handleEdited applies a source edit to the mirrored copy in place. Edits of
// messages that were never mirrored are ignored. An edit carrying media
// replaces the mirrored media; otherwise only the text is updated.
func (e *Engine) handleEdited(ctx context.Context, sub *Subscription, msg Message) {
	log := e.log.With().
		Int64("user_id", sub.UserID).
		Str("redirection_id", sub.RuleID).
		Int64("message_id", msg.ID).
		Logger()

	destID, ok := e.mirrors.Get(MakeMessageRef(sub.Source, msg.ID))
	if !ok {
		log.Debug().Msg("Edit for unmirrored message, ignoring")
		return
	}

	if err := e.waitSend(ctx, sub.UserID); err != nil {
		log.Warn().Err(err).Msg("Send limiter interrupted, edit not mirrored")
		return
	}
	content := MessageContent{Text: msg.Text, Media: msg.Media}
	if err := sub.client.EditMessage(ctx, sub.Destination, destID, content); err != nil {
		log.Warn().Err(err).Int64("mirror_id", destID).Msg("Failed to mirror edit")
		return
	}
	log.Debug().Int64("mirror_id", destID).Msg("Mirrored edit")
}

// waitSend applies the per-user send limiter. Mirrored sends for one user
// share a budget so a busy source chat cannot trip destination-side flood
// control.
func (e *Engine) waitSend(ctx context.Context, userID int64) error {
	e.mu.Lock()
	limiter, ok := e.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(e.sendRate, e.sendBurst)
		e.limiters[userID] = limiter
	}
	e.mu.Unlock()
	return limiter.Wait(ctx)
}

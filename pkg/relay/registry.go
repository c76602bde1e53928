// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"
)

// RuleStatus is the activation status of a redirection rule.
type RuleStatus int

const (
	// RulePending means the rule exists but is still missing its chat ids.
	RulePending RuleStatus = iota
	// RuleActive means both chat ids are set and forwarding is live.
	RuleActive
)

func (s RuleStatus) String() string {
	if s == RuleActive {
		return "active"
	}
	return "pending"
}

// Rule is one named redirection owned by a user.
type Rule struct {
	UserID int64
	ID     string
	// Source and Destination are nil until the user supplies chat ids.
	Source      *int64
	Destination *int64
	Status      RuleStatus
}

// Complete reports whether both chat ids are set.
func (r *Rule) Complete() bool {
	return r.Source != nil && r.Destination != nil
}

func (r *Rule) clone() *Rule {
	cp := *r
	if r.Source != nil {
		cp.Source = ptr.Ptr(*r.Source)
	}
	if r.Destination != nil {
		cp.Destination = ptr.Ptr(*r.Destination)
	}
	return &cp
}

// Activator realizes active rules as live subscriptions. Implemented by
// Engine; an interface so registry tests can record calls.
type Activator interface {
	Activate(ctx context.Context, rule *Rule) error
	Deactivate(ctx context.Context, rule *Rule) error
}

// sessionReleaser lets the registry drop a user's connection after their last
// rule is deleted.
type sessionReleaser interface {
	Release(userID int64)
}

// Registry is the durable-plus-in-memory catalog of redirection rules. All
// writes go through here so interactive configuration and startup
// reconciliation share one activation path.
type Registry struct {
	store    Store
	engine   Activator
	sessions sessionReleaser
	log      zerolog.Logger

	mu    sync.RWMutex
	rules map[int64]map[string]*Rule

	retry *persistQueue
}

// NewRegistry creates a registry persisting through store and activating
// through engine. Failed backend writes are retried asynchronously with the
// given attempt count and fixed delay; in-memory state never rolls back.
func NewRegistry(store Store, engine Activator, sessions sessionReleaser, attempts int, delay time.Duration, log zerolog.Logger) *Registry {
	log = log.With().Str("component", "registry").Logger()
	return &Registry{
		store:    store,
		engine:   engine,
		sessions: sessions,
		log:      log,
		rules:    make(map[int64]map[string]*Rule),
		retry:    newPersistQueue(log, attempts, delay),
	}
}

// Close drains the persistence retry queue.
func (r *Registry) Close() {
	r.retry.Close()
}

// Add creates a pending rule and persists it. It fails with ErrDuplicateRule
// when the id is already taken and with ErrRulePending while the user has
// another rule awaiting configuration.
func (r *Registry) Add(ctx context.Context, userID int64, ruleID string) error {
	r.mu.Lock()
	userRules, ok := r.rules[userID]
	if !ok {
		userRules = make(map[string]*Rule)
		r.rules[userID] = userRules
	}
	if _, exists := userRules[ruleID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateRule, ruleID)
	}
	for _, rule := range userRules {
		if rule.Status == RulePending {
			r.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrRulePending, rule.ID)
		}
	}
	userRules[ruleID] = &Rule{UserID: userID, ID: ruleID, Status: RulePending}
	r.mu.Unlock()

	r.persist(ctx, "insert redirection", func(ctx context.Context) error {
		return r.store.InsertRedirection(ctx, userID, ruleID)
	})
	r.log.Info().Int64("user_id", userID).Str("redirection_id", ruleID).Msg("Redirection created")
	return nil
}

// Configure fills in the chat ids on the user's single pending rule, persists
// them, marks the rule active and starts its subscription.
func (r *Registry) Configure(ctx context.Context, userID, sourceChatID, destinationChatID int64) (*Rule, error) {
	r.mu.Lock()
	var pending *Rule
	for _, rule := range r.rules[userID] {
		if rule.Status == RulePending {
			pending = rule
			break
		}
	}
	if pending == nil {
		r.mu.Unlock()
		return nil, ErrNoPendingRule
	}
	pending.Source = ptr.Ptr(sourceChatID)
	pending.Destination = ptr.Ptr(destinationChatID)
	pending.Status = RuleActive
	rule := pending
	r.mu.Unlock()

	ruleID := rule.ID
	r.persist(ctx, "insert source chat", func(ctx context.Context) error {
		return r.store.InsertChatRedirection(ctx, userID, ruleID, ChatRoleSource, sourceChatID)
	})
	r.persist(ctx, "insert destination chat", func(ctx context.Context) error {
		return r.store.InsertChatRedirection(ctx, userID, ruleID, ChatRoleDestination, destinationChatID)
	})

	if err := r.engine.Activate(ctx, rule); err != nil {
		return nil, err
	}
	r.log.Info().
		Int64("user_id", userID).
		Str("redirection_id", rule.ID).
		Int64("source", sourceChatID).
		Int64("destination", destinationChatID).
		Msg("Redirection configured and activated")
	return rule.clone(), nil
}

// Remove tears down the rule's subscription, deletes the persisted record and
// evicts the in-memory entry. The subscription is gone before Remove returns,
// so no further events are processed for the rule. The user's connection is
// released after their last rule goes away.
func (r *Registry) Remove(ctx context.Context, userID int64, ruleID string) error {
	r.mu.Lock()
	userRules := r.rules[userID]
	rule, ok := userRules[ruleID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRuleNotFound, ruleID)
	}
	delete(userRules, ruleID)
	last := len(userRules) == 0
	if last {
		delete(r.rules, userID)
	}
	r.mu.Unlock()

	if rule.Status == RuleActive {
		if err := r.engine.Deactivate(ctx, rule); err != nil {
			r.log.Warn().Err(err).Int64("user_id", userID).Str("redirection_id", ruleID).Msg("Failed to stop subscription")
		}
	}
	r.persist(ctx, "delete redirection", func(ctx context.Context) error {
		return r.store.DeleteRedirection(ctx, userID, ruleID)
	})
	if last {
		r.sessions.Release(userID)
	}
	r.log.Info().Int64("user_id", userID).Str("redirection_id", ruleID).Msg("Redirection deleted")
	return nil
}

// Get returns a copy of one rule.
func (r *Registry) Get(userID int64, ruleID string) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[userID][ruleID]
	if !ok {
		return nil, false
	}
	return rule.clone(), true
}

// List returns copies of the user's rules sorted by id. Read-only and
// side-effect-free.
func (r *Registry) List(userID int64) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]*Rule, 0, len(r.rules[userID]))
	for _, rule := range r.rules[userID] {
		rules = append(rules, rule.clone())
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Adopt inserts an already-persisted rule loaded at startup and starts it
// through the same activation path as interactive configuration. Adopting a
// rule that is already present is a no-op.
func (r *Registry) Adopt(ctx context.Context, stored StoredRedirection) error {
	rule := &Rule{
		UserID:      stored.UserID,
		ID:          stored.RuleID,
		Source:      ptr.Ptr(stored.SourceChatID),
		Destination: ptr.Ptr(stored.DestinationChatID),
		Status:      RuleActive,
	}
	r.mu.Lock()
	userRules, ok := r.rules[rule.UserID]
	if !ok {
		userRules = make(map[string]*Rule)
		r.rules[rule.UserID] = userRules
	}
	if _, exists := userRules[rule.ID]; exists {
		r.mu.Unlock()
		return nil
	}
	userRules[rule.ID] = rule
	r.mu.Unlock()

	return r.engine.Activate(ctx, rule)
}

// persist runs a backend write, diverting failures to the async retry queue.
func (r *Registry) persist(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		r.log.Error().Err(err).Str("op", name).Msg("Backend write failed, queueing retry")
		r.retry.enqueue(name, fn)
	}
}

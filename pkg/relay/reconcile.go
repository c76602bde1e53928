// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler re-establishes persisted redirections at process start.
type Reconciler struct {
	store    Store
	registry *Registry
	log      zerolog.Logger

	attempts int
	delay    time.Duration
}

// NewReconciler creates a reconciler that loads rules from store with up to
// attempts tries spaced by a fixed delay.
func NewReconciler(store Store, registry *Registry, attempts int, delay time.Duration, log zerolog.Logger) *Reconciler {
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &Reconciler{
		store:    store,
		registry: registry,
		log:      log.With().Str("component", "reconciler").Logger(),
		attempts: attempts,
		delay:    delay,
	}
}

// Reconcile loads every persisted redirection and re-activates it through the
// same registry path as interactive configuration. Exhausting the backend
// retries degrades startup to whatever was loaded instead of failing it; a
// non-nil error is returned only when ctx is cancelled.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	var stored []StoredRedirection
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		stored, err = r.store.ListRedirections(ctx)
		if err == nil {
			break
		}
		r.log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to load persisted redirections")
		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}
	if err != nil {
		r.log.Error().Err(err).Msg("Could not load redirections, starting degraded")
		return nil
	}

	var activated int
	for _, rec := range stored {
		if err := r.registry.Adopt(ctx, rec); err != nil {
			r.log.Error().Err(err).
				Int64("user_id", rec.UserID).
				Str("redirection_id", rec.RuleID).
				Msg("Failed to re-activate redirection")
			continue
		}
		activated++
	}
	r.log.Info().Int("loaded", len(stored)).Int("activated", activated).Msg("Redirections reconciled")
	return nil
}

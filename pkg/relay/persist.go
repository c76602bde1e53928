// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// persistQueue retries failed backend writes in the background so a
// persistence outage never rolls back live in-memory state. Writes that still
// fail after the configured attempts are dropped with an error log; the
// startup reconciler repairs durable drift on the next boot.
type persistQueue struct {
	log      zerolog.Logger
	attempts int
	delay    time.Duration

	ops      chan persistOp
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type persistOp struct {
	name string
	fn   func(ctx context.Context) error
}

func newPersistQueue(log zerolog.Logger, attempts int, delay time.Duration) *persistQueue {
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	q := &persistQueue{
		log:      log,
		attempts: attempts,
		delay:    delay,
		ops:      make(chan persistOp, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *persistQueue) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case q.ops <- persistOp{name: name, fn: fn}:
	default:
		q.log.Error().Str("op", name).Msg("Persistence retry queue full, dropping write")
	}
}

func (q *persistQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case op := <-q.ops:
			q.attempt(op)
		}
	}
}

func (q *persistQueue) attempt(op persistOp) {
	for i := 1; i <= q.attempts; i++ {
		select {
		case <-q.stop:
			return
		case <-time.After(q.delay):
		}
		if err := op.fn(context.Background()); err != nil {
			q.log.Warn().Err(err).Str("op", op.name).Int("attempt", i).Msg("Backend write retry failed")
			continue
		}
		q.log.Info().Str("op", op.name).Int("attempt", i).Msg("Backend write recovered")
		return
	}
	q.log.Error().Str("op", op.name).Int("attempts", q.attempts).Msg("Backend write dropped after retries")
}

// Close stops the retry loop. Queued writes that have not started are
// abandoned.
func (q *persistQueue) Close() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	<-q.done
}

// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestAcquireDialsOnce(t *testing.T) {
	dialer := newFakeDialer()
	sm := NewSessionManager(dialer, zerolog.Nop())
	ctx := context.Background()

	s1, err := sm.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s2, err := sm.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s1 != s2 {
		t.Error("second acquire returned a different session")
	}
	if got := dialer.dialCount(1); got != 1 {
		t.Errorf("dial count: got %d, want 1", got)
	}
	if !s1.Client().IsConnected() {
		t.Error("session client not connected after acquire")
	}
}

func TestAcquireConcurrentSharesOneConnection(t *testing.T) {
	dialer := newFakeDialer()
	sm := NewSessionManager(dialer, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sm.Acquire(ctx, 1); err != nil {
				t.Errorf("Acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := dialer.dialCount(1); got != 1 {
		t.Errorf("dial count: got %d, want 1", got)
	}
}

func TestAcquireDialError(t *testing.T) {
	dialer := newFakeDialer()
	dialer.dialErr = errors.New("network down")
	sm := NewSessionManager(dialer, zerolog.Nop())

	_, err := sm.Acquire(context.Background(), 1)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want *ConnectionError", err)
	}
	if ce.Op != "dial" {
		t.Errorf("op: got %q, want %q", ce.Op, "dial")
	}
}

func TestAcquireConnectFailureDisconnects(t *testing.T) {
	dialer := newFakeDialer()
	client := dialer.client(1)
	client.connectErr = errors.New("flood wait")
	sm := NewSessionManager(dialer, zerolog.Nop())

	_, err := sm.Acquire(context.Background(), 1)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want *ConnectionError", err)
	}
	if client.disconnects == 0 {
		t.Error("failed connect did not disconnect the client")
	}
}

func TestEnsureConnectedReconnects(t *testing.T) {
	dialer := newFakeDialer()
	sm := NewSessionManager(dialer, zerolog.Nop())
	ctx := context.Background()

	s, err := sm.Acquire(ctx, 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	client := dialer.client(1)
	client.Disconnect()

	if err := s.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if !client.IsConnected() {
		t.Error("client not reconnected")
	}
}

func TestReleaseDisconnectsAndEvicts(t *testing.T) {
	dialer := newFakeDialer()
	sm := NewSessionManager(dialer, zerolog.Nop())
	ctx := context.Background()

	if _, err := sm.Acquire(ctx, 1); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	sm.Release(1)

	client := dialer.client(1)
	if client.IsConnected() {
		t.Error("client still connected after release")
	}
	if _, ok := sm.Peek(1); ok {
		t.Error("session still present after release")
	}

	// A new acquire dials a fresh connection.
	if _, err := sm.Acquire(ctx, 1); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if got := dialer.dialCount(1); got != 2 {
		t.Errorf("dial count after release: got %d, want 2", got)
	}
}

func TestReleaseUnknownUserIsNoop(t *testing.T) {
	sm := NewSessionManager(newFakeDialer(), zerolog.Nop())
	sm.Release(99)
}

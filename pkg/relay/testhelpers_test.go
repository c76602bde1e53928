// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// fakeClient is an instrumented in-memory transport connection.
type fakeClient struct {
	mu sync.Mutex

	connected  bool
	authorized bool
	password   string

	connectErr error
	signInErr  error
	sendErr    error
	editErr    error

	codeRequests []string
	signIns      []string
	passwords    []string
	disconnects  int

	nextHandle ListenerHandle
	listeners  map[ListenerHandle]fakeListener
	nextMsgID  int64
	sent       []fakeSent
	edits      []fakeSent

	dialogs []Dialog
}

type fakeListener struct {
	kind   EventKind
	chatID int64
	fn     Handler
}

type fakeSent struct {
	ChatID    int64
	MessageID int64
	Content   MessageContent
}

func newFakeClient() *fakeClient {
	return &fakeClient{listeners: make(map[ListenerHandle]fakeListener)}
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return nil
}

func (c *fakeClient) IsAuthorized(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized, nil
}

func (c *fakeClient) SendCodeRequest(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeRequests = append(c.codeRequests, phone)
	return "token-" + phone, nil
}

func (c *fakeClient) SignIn(ctx context.Context, phone, code, codeToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signIns = append(c.signIns, code)
	if c.signInErr != nil {
		return c.signInErr
	}
	if c.password != "" {
		return ErrPasswordRequired
	}
	c.authorized = true
	return nil
}

func (c *fakeClient) SignInWithPassword(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwords = append(c.passwords, password)
	if password != c.password {
		return errors.New("wrong password")
	}
	c.authorized = true
	return nil
}

func (c *fakeClient) SendMessage(ctx context.Context, chatID int64, content MessageContent) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	c.nextMsgID++
	c.sent = append(c.sent, fakeSent{ChatID: chatID, MessageID: c.nextMsgID, Content: content})
	return c.nextMsgID, nil
}

func (c *fakeClient) EditMessage(ctx context.Context, chatID, messageID int64, content MessageContent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return c.editErr
	}
	c.edits = append(c.edits, fakeSent{ChatID: chatID, MessageID: messageID, Content: content})
	return nil
}

func (c *fakeClient) On(kind EventKind, chatID int64, fn Handler) ListenerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandle++
	c.listeners[c.nextHandle] = fakeListener{kind: kind, chatID: chatID, fn: fn}
	return c.nextHandle
}

func (c *fakeClient) RemoveListener(handle ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, handle)
}

func (c *fakeClient) Dialogs(ctx context.Context) ([]Dialog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialogs, nil
}

// emit delivers an inbound event to matching listeners inline.
func (c *fakeClient) emit(ctx context.Context, kind EventKind, msg Message) {
	c.mu.Lock()
	matched := make([]Handler, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l.kind == kind && l.chatID == msg.ChatID {
			matched = append(matched, l.fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range matched {
		fn(ctx, msg)
	}
}

func (c *fakeClient) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *fakeClient) sentMessages() []fakeSent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fakeSent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeClient) editedMessages() []fakeSent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fakeSent, len(c.edits))
	copy(out, c.edits)
	return out
}

// fakeDialer returns one fakeClient per user and counts dials.
type fakeDialer struct {
	mu      sync.Mutex
	clients map[int64]*fakeClient
	dials   map[int64]int
	dialErr error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		clients: make(map[int64]*fakeClient),
		dials:   make(map[int64]int),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, userID int64) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.dials[userID]++
	c, ok := d.clients[userID]
	if !ok {
		c = newFakeClient()
		d.clients[userID] = c
	}
	return c, nil
}

// client returns (creating if needed) the fake client for a user, so tests
// can prime its state before anything dials.
func (d *fakeDialer) client(userID int64) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[userID]
	if !ok {
		c = newFakeClient()
		d.clients[userID] = c
	}
	return c
}

func (d *fakeDialer) dialCount(userID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[userID]
}

// fakeStore is an in-memory Store recording every write.
type fakeStore struct {
	mu sync.Mutex

	users        map[int64]*UserProfile
	redirections []StoredRedirection

	listErr    error
	listErrors int // fail the first N ListRedirections calls
	insertErr  error
	deleteErr  error
	createErr  error

	listCalls   int
	inserts     []string
	chatInserts []string
	deletes     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*UserProfile)}
}

func (s *fakeStore) GetUser(ctx context.Context, userID int64) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) CreateUser(ctx context.Context, profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *profile
	s.users[profile.ID] = &cp
	return nil
}

func (s *fakeStore) ListRedirections(ctx context.Context) ([]StoredRedirection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.listErrors > 0 {
		s.listErrors--
		return nil, errors.New("backend unavailable")
	}
	out := make([]StoredRedirection, len(s.redirections))
	copy(out, s.redirections)
	return out, nil
}

func (s *fakeStore) InsertRedirection(ctx context.Context, userID int64, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserts = append(s.inserts, ruleID)
	return nil
}

func (s *fakeStore) InsertChatRedirection(ctx context.Context, userID int64, ruleID string, role ChatRole, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.chatInserts = append(s.chatInserts, ruleID+"/"+string(role))
	return nil
}

func (s *fakeStore) DeleteRedirection(ctx context.Context, userID int64, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, ruleID)
	return nil
}

func (s *fakeStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// testConfig is a minimal valid config for wiring a Service in tests.
func testConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{BotToken: "test"},
		Backend: BackendConfig{
			BaseURL:       "http://backend.test",
			APIKey:        "key",
			RetryAttempts: 1,
			RetryDelay:    1,
		},
	}
}

// newTestService wires a Service from fakes with retries tuned short.
func newTestService(store Store, dialer Dialer) *Service {
	cfg := testConfig()
	log := zerolog.Nop()
	sessions := NewSessionManager(dialer, log)
	mirrors := NewMirrorMap()
	engine := NewEngine(sessions, mirrors, cfg.Relay, log)
	registry := NewRegistry(store, engine, sessions, 1, time.Millisecond, log)
	return &Service{
		log:        log,
		store:      store,
		sessions:   sessions,
		registry:   registry,
		engine:     engine,
		mirrors:    mirrors,
		reconciler: NewReconciler(store, registry, 3, time.Millisecond, log),
	}
}

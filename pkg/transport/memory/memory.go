// Copyright 2024-2026 Remi Philippe
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package memory provides an in-memory account transport for development and
// testing. It honors the full transport contract, including the two-factor
// sign-in path, without talking to any real messaging network.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aiku/telegram-redirector/pkg/relay"
)

// Account is the simulated state behind one user's transport connection.
type Account struct {
	// Authorized marks the account as already signed in, skipping the
	// phone/code flow on connect.
	Authorized bool
	// Password, when non-empty, enables the two-factor challenge after
	// code verification.
	Password string
	// Dialogs are returned verbatim from the Dialogs call.
	Dialogs []relay.Dialog
}

// Dialer hands out in-memory clients, one per user id. Accounts not
// registered beforehand start unauthorized with no dialogs.
type Dialer struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	clients  map[int64]*Client
}

var _ relay.Dialer = (*Dialer)(nil)

func NewDialer() *Dialer {
	return &Dialer{
		accounts: make(map[int64]*Account),
		clients:  make(map[int64]*Client),
	}
}

// SetAccount registers or replaces the simulated account for a user. It must
// be called before the user's client is dialed.
func (d *Dialer) SetAccount(userID int64, account Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[userID] = &account
}

// Dial implements relay.Dialer. Clients are cached per user so reconnects
// keep the account's authorization state, like a persisted session file.
func (d *Dialer) Dial(ctx context.Context, userID int64) (relay.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[userID]; ok {
		return c, nil
	}
	account := d.accounts[userID]
	if account == nil {
		account = &Account{}
		d.accounts[userID] = account
	}
	c := &Client{account: account}
	d.clients[userID] = c
	return c, nil
}

// Client returns the cached client for a user, or nil if never dialed. Test
// hook for injecting events.
func (d *Dialer) Client(userID int64) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[userID]
}

type listener struct {
	kind   relay.EventKind
	chatID int64
	fn     relay.Handler
}

// Client is one in-memory transport connection.
type Client struct {
	account *Account

	mu         sync.Mutex
	connected  bool
	codeSent   bool
	codeOK     bool
	nextHandle relay.ListenerHandle
	nextMsgID  int64
	listeners  map[relay.ListenerHandle]listener
	sent       []SentMessage
	edits      []SentMessage
}

// SentMessage records one outgoing send or edit for inspection.
type SentMessage struct {
	ChatID    int64
	MessageID int64
	Content   relay.MessageContent
}

var _ relay.Client = (*Client)(nil)

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	if c.listeners == nil {
		c.listeners = make(map[relay.ListenerHandle]listener)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account.Authorized, nil
}

// SendCodeRequest always succeeds and returns a fixed correlation token.
func (c *Client) SendCodeRequest(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeSent = true
	return "memory-code-token", nil
}

// SignIn accepts any code once a code was requested. Accounts with a
// password raise the two-factor challenge.
func (c *Client) SignIn(ctx context.Context, phone, code, codeToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.codeSent {
		return fmt.Errorf("no code was requested")
	}
	if codeToken != "memory-code-token" {
		return fmt.Errorf("unknown code token %q", codeToken)
	}
	if c.account.Password != "" {
		c.codeOK = true
		return relay.ErrPasswordRequired
	}
	c.account.Authorized = true
	return nil
}

func (c *Client) SignInWithPassword(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.codeOK {
		return fmt.Errorf("code verification has not happened")
	}
	if password != c.account.Password {
		return fmt.Errorf("wrong password")
	}
	c.account.Authorized = true
	return nil
}

// SendMessage records the message and assigns it an id. It does not loop the
// message back to listeners; inbound traffic comes from Deliver.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content relay.MessageContent) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return 0, fmt.Errorf("not connected")
	}
	c.nextMsgID++
	c.sent = append(c.sent, SentMessage{ChatID: chatID, MessageID: c.nextMsgID, Content: content})
	return c.nextMsgID, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, content relay.MessageContent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("not connected")
	}
	c.edits = append(c.edits, SentMessage{ChatID: chatID, MessageID: messageID, Content: content})
	return nil
}

func (c *Client) On(kind relay.EventKind, chatID int64, fn relay.Handler) relay.ListenerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[relay.ListenerHandle]listener)
	}
	c.nextHandle++
	c.listeners[c.nextHandle] = listener{kind: kind, chatID: chatID, fn: fn}
	return c.nextHandle
}

func (c *Client) RemoveListener(handle relay.ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, handle)
}

func (c *Client) Dialogs(ctx context.Context) ([]relay.Dialog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}
	out := make([]relay.Dialog, len(c.account.Dialogs))
	copy(out, c.account.Dialogs)
	return out, nil
}

// Deliver injects an inbound event, invoking matching listeners inline so
// delivery order is the call order. Test and development hook.
func (c *Client) Deliver(ctx context.Context, kind relay.EventKind, msg relay.Message) {
	c.mu.Lock()
	matched := make([]relay.Handler, 0, len(c.listeners))
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

// Sent returns a copy of all recorded sends.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Edits returns a copy of all recorded edits.
func (c *Client) Edits() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.edits))
	copy(out, c.edits)
	return out
}

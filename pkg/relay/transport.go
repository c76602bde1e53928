// Copyright 2024-2026 Aiku AI

package relay

import "context"

// EventKind identifies a class of transport events a listener can subscribe to.
type EventKind int

const (
	// EventNewMessage fires for every message posted to a conversation,
	// including replies.
	EventNewMessage EventKind = iota
	// EventMessageEdited fires when an existing message is edited in place.
	EventMessageEdited
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventMessageEdited:
		return "message_edited"
	default:
		return "unknown"
	}
}

// MediaRef points at a media attachment on the transport side. The engine
// forwards it opaquely and never downloads or re-encodes content.
type MediaRef struct {
	FileID   string
	MimeType string
}

// Message is a single message as delivered by the transport.
type Message struct {
	ID     int64
	ChatID int64
	Text   string
	Media  *MediaRef
	// ReplyToID is the id of the message this one replies to, or 0.
	ReplyToID int64
}

// MessageContent is the payload for SendMessage and EditMessage.
type MessageContent struct {
	Text  string
	Media *MediaRef
	// ReplyTo makes the sent message a reply to the given destination
	// message id. Ignored by EditMessage.
	ReplyTo int64
}

// DialogKind classifies a conversation for chat listing.
type DialogKind int

const (
	DialogUser DialogKind = iota
	DialogBot
	DialogGroup
	DialogChannel
)

// Dialog is one conversation visible to the authenticated account.
type Dialog struct {
	ID    int64
	Title string
	Kind  DialogKind
}

// Handler receives one transport event. The transport invokes handlers for
// the same conversation in delivery order.
type Handler func(ctx context.Context, msg Message)

// ListenerHandle identifies one registered listener so it can be removed
// without touching other listeners on the same connection.
type ListenerHandle uint64

// Client is a single user-account connection to the messaging transport.
// Implementations live outside this module; tests use in-memory fakes.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Disconnect() error
	// IsAuthorized reports whether the connection carries a completed
	// account authorization.
	IsAuthorized(ctx context.Context) (bool, error)

	// SendCodeRequest asks the transport to deliver a verification code to
	// the account's devices and returns the correlation token that must
	// accompany SignIn.
	SendCodeRequest(ctx context.Context, phone string) (string, error)
	// SignIn submits the verification code. It returns ErrPasswordRequired
	// when the account has a two-factor password enabled.
	SignIn(ctx context.Context, phone, code, codeToken string) error
	SignInWithPassword(ctx context.Context, password string) error

	SendMessage(ctx context.Context, chatID int64, content MessageContent) (int64, error)
	EditMessage(ctx context.Context, chatID, messageID int64, content MessageContent) error

	// On registers a listener for events of the given kind scoped to one
	// conversation and returns its handle.
	On(kind EventKind, chatID int64, fn Handler) ListenerHandle
	// RemoveListener unregisters exactly the listener behind handle. It is
	// synchronous: once it returns, the callback is not invoked again.
	RemoveListener(handle ListenerHandle)

	Dialogs(ctx context.Context) ([]Dialog, error)
}

// Dialer opens transport connections from per-user persisted credentials.
type Dialer interface {
	Dial(ctx context.Context, userID int64) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, userID int64) (Client, error)

func (f DialerFunc) Dial(ctx context.Context, userID int64) (Client, error) {
	return f(ctx, userID)
}

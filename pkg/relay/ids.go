// Copyright 2024-2026 Aiku AI

package relay

import "fmt"

// MessageRef identifies a message within its source conversation. It is the
// key the MirrorMap is indexed by, so the same message id in two different
// source chats never collides.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// MakeMessageRef creates a MessageRef from a source chat id and message id.
func MakeMessageRef(chatID, messageID int64) MessageRef {
	return MessageRef{ChatID: chatID, MessageID: messageID}
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%d/%d", r.ChatID, r.MessageID)
}

// subKey identifies one subscription: a redirection rule bound to its owner.
type subKey struct {
	UserID int64
	RuleID string
}

func makeSubKey(userID int64, ruleID string) subKey {
	return subKey{UserID: userID, RuleID: ruleID}
}

func (k subKey) String() string {
	return fmt.Sprintf("%d/%s", k.UserID, k.RuleID)
}

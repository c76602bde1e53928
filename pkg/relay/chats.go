// Copyright 2024-2026 Aiku AI

package relay

import "context"

// ChatList is the user's dialogs grouped the way the menu presents them.
type ChatList struct {
	Users    []Dialog
	Bots     []Dialog
	Groups   []Dialog
	Channels []Dialog
}

// Empty reports whether no dialogs were found in any category.
func (l *ChatList) Empty() bool {
	return len(l.Users) == 0 && len(l.Bots) == 0 && len(l.Groups) == 0 && len(l.Channels) == 0
}

// ListChats fetches and categorizes the user's dialogs so they can pick
// source and destination chat ids. Read-only and side-effect-free.
func (s *Service) ListChats(ctx context.Context, userID int64) (*ChatList, error) {
	sess, err := s.sessions.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	dialogs, err := sess.Client().Dialogs(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "list dialogs", Err: err}
	}

	list := &ChatList{}
	for _, d := range dialogs {
		switch d.Kind {
		case DialogBot:
			list.Bots = append(list.Bots, d)
		case DialogGroup:
			list.Groups = append(list.Groups, d)
		case DialogChannel:
			list.Channels = append(list.Channels, d)
		default:
			list.Users = append(list.Users, d)
		}
	}
	return list, nil
}

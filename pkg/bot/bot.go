// Copyright 2024-2026 Remi Philippe
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bot is the Telegram command front end. It translates bot commands
// and inline-keyboard callbacks into relay service calls and renders the
// results back as chat messages.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/aiku/telegram-redirector/pkg/relay"
)

// Bot serves the command interface over the Telegram Bot API.
type Bot struct {
	api     *tgbotapi.BotAPI
	svc     *relay.Service
	allowed map[int64]struct{}
	log     zerolog.Logger
}

// New creates the bot front end. An empty allowed_users list admits everyone.
func New(cfg relay.TelegramConfig, svc *relay.Service, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API client: %w", err)
	}
	allowed := make(map[int64]struct{}, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = struct{}{}
	}
	return &Bot{
		api:     api,
		svc:     svc,
		allowed: allowed,
		log:     log.With().Str("component", "bot").Logger(),
	}, nil
}

// Run processes updates until ctx is cancelled. Each update is handled on its
// own goroutine so one user's slow authentication never blocks another's
// commands.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info().Str("username", b.api.Self.UserName).Msg("Bot front end started")

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// admitted applies the allowlist.
func (b *Bot) admitted(userID int64) bool {
	if len(b.allowed) == 0 {
		return true
	}
	_, ok := b.allowed[userID]
	return ok
}

// reply sends an HTML-formatted message, splitting it when it exceeds the
// Bot API length limit.
func (b *Bot) reply(chatID int64, text string) {
	for _, part := range splitMessage(text, messageLengthLimit) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
			return
		}
	}
}

// replyWithKeyboard sends one message with an inline keyboard attached.
func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/telegram-redirector/pkg/relay"
)

// chatPairPattern matches "source - destination" chat id input, negative ids
// included.
var chatPairPattern = regexp.MustCompile(`^(-?\d+)\s*-\s*(-?\d+)$`)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		from := update.CallbackQuery.From
		if from == nil || !b.admitted(from.ID) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		from := update.Message.From
		if from == nil || !b.admitted(from.ID) {
			b.log.Debug().Msg("Dropping update from non-allowed user")
			return
		}
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
		} else {
			b.handleText(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "menu":
		b.replyWithKeyboard(chatID, "What would you like to do?", menuKeyboard())
	case "connect":
		b.startConnect(ctx, msg.From, chatID)
	case "cancel":
		b.cancelAuth(ctx, msg.From.ID, chatID)
	case "chats":
		b.sendChatList(ctx, msg.From.ID, chatID)
	case "redirection":
		b.handleRedirectionCommand(ctx, msg)
	default:
		b.reply(chatID, "Unknown command. Use /menu to see what I can do.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("Failed to answer callback query")
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	switch cb.Data {
	case "connect":
		b.startConnect(ctx, cb.From, chatID)
	case "chats":
		b.sendChatList(ctx, cb.From.ID, chatID)
	case "cancel":
		b.cancelAuth(ctx, cb.From.ID, chatID)
	case "menu":
		b.replyWithKeyboard(chatID, "What would you like to do?", menuKeyboard())
	}
}

// handleText routes free-form text. A "source - destination" pair configures
// the pending redirection; anything else feeds the authentication flow.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if m := chatPairPattern.FindStringSubmatch(text); m != nil {
		source, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			b.reply(chatID, "That source chat id is out of range.")
			return
		}
		destination, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			b.reply(chatID, "That destination chat id is out of range.")
			return
		}
		b.configureRedirection(ctx, msg.From.ID, chatID, source, destination)
		return
	}

	event, err := b.svc.SubmitAuthInput(ctx, msg.From.ID, text)
	if err != nil {
		b.reply(chatID, authErrorText(err))
		return
	}
	switch event {
	case relay.AuthCodeSent:
		b.replyWithKeyboard(chatID,
			"A verification code is on its way. Send it back prefixed with <b>aa</b>, for example <code>aa12345</code>.",
			cancelKeyboard())
	case relay.AuthPasswordNeeded:
		b.replyWithKeyboard(chatID, "This account uses two-step verification. Please send your password.", cancelKeyboard())
	case relay.AuthCompleted:
		b.replyWithKeyboard(chatID, "Your account is connected. You can set up redirections now.", menuKeyboard())
	}
}

func (b *Bot) startConnect(ctx context.Context, from *tgbotapi.User, chatID int64) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	authorized, err := b.svc.Connect(ctx, from.ID, from.UserName, name)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", from.ID).Msg("Connect failed")
		b.reply(chatID, "Could not reach Telegram right now. Please try again in a moment.")
		return
	}
	if authorized {
		b.replyWithKeyboard(chatID, "Your account is already connected.", menuKeyboard())
		return
	}
	b.replyWithKeyboard(chatID,
		"Please send your phone number in international format, for example <code>+123456789</code>.",
		cancelKeyboard())
}

func (b *Bot) cancelAuth(ctx context.Context, userID, chatID int64) {
	if err := b.svc.CancelAuth(ctx, userID); err != nil {
		b.reply(chatID, "There is nothing to cancel.")
		return
	}
	b.replyWithKeyboard(chatID, "Connection attempt cancelled.", menuKeyboard())
}

func (b *Bot) sendChatList(ctx context.Context, userID, chatID int64) {
	list, err := b.svc.ListChats(ctx, userID)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list chats")
		b.reply(chatID, "Could not load your chats. Connect your account first with /connect.")
		return
	}
	if list.Empty() {
		b.reply(chatID, "No chats found on your account.")
		return
	}
	b.reply(chatID, renderChatList(list))
	b.replyWithKeyboard(chatID,
		"Pick a source and a destination, then send the ids as <code>source - destination</code>.",
		backKeyboard())
}

func (b *Bot) handleRedirectionCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.reply(chatID, "Usage: /redirection add &lt;name&gt;, /redirection delete &lt;name&gt; or /redirection list")
		return
	}

	switch args[0] {
	case "add":
		if len(args) < 2 {
			b.reply(chatID, "Usage: /redirection add &lt;name&gt;")
			return
		}
		b.addRedirection(ctx, msg.From.ID, chatID, args[1])
	case "delete":
		if len(args) < 2 {
			b.reply(chatID, "Usage: /redirection delete &lt;name&gt;")
			return
		}
		b.deleteRedirection(ctx, msg.From.ID, chatID, args[1])
	case "list":
		b.reply(chatID, renderRuleList(b.svc.ListRedirections(msg.From.ID)))
	default:
		b.reply(chatID, "Usage: /redirection add &lt;name&gt;, /redirection delete &lt;name&gt; or /redirection list")
	}
}

func (b *Bot) addRedirection(ctx context.Context, userID, chatID int64, ruleID string) {
	err := b.svc.AddRedirection(ctx, userID, ruleID)
	switch {
	case errors.Is(err, relay.ErrDuplicateRule):
		b.reply(chatID, fmt.Sprintf("You already have a redirection called <b>%s</b>.", escape(ruleID)))
	case errors.Is(err, relay.ErrRulePending):
		b.reply(chatID, "Finish configuring your current redirection first, or delete it.")
	case err != nil:
		b.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to add redirection")
		b.reply(chatID, "Could not create the redirection. Please try again.")
	default:
		b.reply(chatID, fmt.Sprintf(
			"Redirection <b>%s</b> created. Now send the chat ids as <code>source - destination</code>, for example <code>-100123 - 456789</code>. Use /chats to find the ids.",
			escape(ruleID)))
	}
}

func (b *Bot) configureRedirection(ctx context.Context, userID, chatID, source, destination int64) {
	rule, err := b.svc.ConfigureRedirection(ctx, userID, source, destination)
	switch {
	case errors.Is(err, relay.ErrNoPendingRule):
		b.reply(chatID, "No redirection is waiting for chat ids. Create one with /redirection add &lt;name&gt;.")
	case err != nil:
		b.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to configure redirection")
		b.reply(chatID, "Could not activate the redirection. Connect your account first with /connect.")
	default:
		b.replyWithKeyboard(chatID, fmt.Sprintf(
			"Redirection <b>%s</b> is live: messages from <code>%d</code> now go to <code>%d</code>.",
			escape(rule.ID), *rule.Source, *rule.Destination), menuKeyboard())
	}
}

func (b *Bot) deleteRedirection(ctx context.Context, userID, chatID int64, ruleID string) {
	err := b.svc.DeleteRedirection(ctx, userID, ruleID)
	switch {
	case errors.Is(err, relay.ErrRuleNotFound):
		b.reply(chatID, fmt.Sprintf("You have no redirection called <b>%s</b>.", escape(ruleID)))
	case err != nil:
		b.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to delete redirection")
		b.reply(chatID, "Could not delete the redirection. Please try again.")
	default:
		b.reply(chatID, fmt.Sprintf("Redirection <b>%s</b> deleted.", escape(ruleID)))
	}
}

// authErrorText maps authentication errors to the reply the user sees.
func authErrorText(err error) string {
	switch {
	case errors.Is(err, relay.ErrNoAuthFlow):
		return "I was not expecting that. Use /menu to see what I can do, or /connect to link your account."
	case errors.Is(err, relay.ErrInvalidInput):
		return "That does not look right. " + firstUserFacingLine(err)
	default:
		return "Sign in failed. Start over with /connect."
	}
}

// firstUserFacingLine extracts the human-readable tail of a wrapped
// validation error.
func firstUserFacingLine(err error) string {
	text := err.Error()
	if idx := strings.LastIndex(text, ": "); idx >= 0 {
		text = text[idx+2:]
	}
	if text == "" {
		return "Please try again."
	}
	return strings.ToUpper(text[:1]) + text[1:] + "."
}

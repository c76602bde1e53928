// Copyright 2024-2026 Aiku AI

package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aiku/telegram-redirector/pkg/relay"
)

// messageLengthLimit is the Bot API cap on message text length.
const messageLengthLimit = 4096

func escape(s string) string {
	return html.EscapeString(s)
}

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Connect account", "connect"),
			tgbotapi.NewInlineKeyboardButtonData("My chats", "chats"),
		),
	)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancel"),
		),
	)
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Back", "menu"),
		),
	)
}

// renderChatList formats the categorized dialogs as "Title | ID" sections.
func renderChatList(list *relay.ChatList) string {
	var sb strings.Builder
	appendSection(&sb, "👤 Users", list.Users)
	appendSection(&sb, "🤖 Bots", list.Bots)
	appendSection(&sb, "👥 Groups", list.Groups)
	appendSection(&sb, "📢 Channels", list.Channels)
	return strings.TrimRight(sb.String(), "\n")
}

func appendSection(sb *strings.Builder, header string, dialogs []relay.Dialog) {
	if len(dialogs) == 0 {
		return
	}
	sb.WriteString("<b>")
	sb.WriteString(header)
	sb.WriteString("</b>\n")
	for _, d := range dialogs {
		fmt.Fprintf(sb, "%s | <code>%d</code>\n", escape(d.Title), d.ID)
	}
	sb.WriteString("\n")
}

// renderRuleList formats the user's redirections with their status.
func renderRuleList(rules []*relay.Rule) string {
	if len(rules) == 0 {
		return "You have no redirections yet. Create one with /redirection add &lt;name&gt;."
	}
	var sb strings.Builder
	sb.WriteString("<b>Your redirections</b>\n")
	for _, r := range rules {
		if r.Complete() {
			fmt.Fprintf(&sb, "• <b>%s</b>: <code>%d</code> → <code>%d</code> (%s)\n",
				escape(r.ID), *r.Source, *r.Destination, r.Status)
		} else {
			fmt.Fprintf(&sb, "• <b>%s</b>: awaiting chat ids (%s)\n", escape(r.ID), r.Status)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// splitMessage splits text into chunks of at most limit bytes, preferring to
// break on the last newline inside each chunk so sections stay intact.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

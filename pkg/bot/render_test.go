// Copyright 2024-2026 Aiku AI

package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aiku/telegram-redirector/pkg/relay"
	"go.mau.fi/util/ptr"
)

func TestChatPairPattern(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input       string
		match       bool
		source      string
		destination string
	}{
		{"-100123 - 456789", true, "-100123", "456789"},
		{"1-2", true, "1", "2"},
		{"-1 - -2", true, "-1", "-2"},
		{"100 -  200", true, "100", "200"},
		{"abc - def", false, "", ""},
		{"100", false, "", ""},
		{"100 - 200 - 300", false, "", ""},
		{"+1 - 2", false, "", ""},
	}
	for _, tt := range tests {
		m := chatPairPattern.FindStringSubmatch(tt.input)
		if (m != nil) != tt.match {
			t.Errorf("%q: match = %v, want %v", tt.input, m != nil, tt.match)
			continue
		}
		if m == nil {
			continue
		}
		if m[1] != tt.source || m[2] != tt.destination {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.input, m[1], m[2], tt.source, tt.destination)
		}
	}
}

func TestRenderChatList(t *testing.T) {
	list := &relay.ChatList{
		Users:    []relay.Dialog{{ID: 1, Title: "Alice <3"}},
		Channels: []relay.Dialog{{ID: -100200, Title: "News"}},
	}
	out := renderChatList(list)

	if !strings.Contains(out, "Alice &lt;3 | <code>1</code>") {
		t.Errorf("user line missing or unescaped:\n%s", out)
	}
	if !strings.Contains(out, "News | <code>-100200</code>") {
		t.Errorf("channel line missing:\n%s", out)
	}
	if strings.Contains(out, "Bots") || strings.Contains(out, "Groups") {
		t.Errorf("empty sections rendered:\n%s", out)
	}
}

func TestRenderRuleList(t *testing.T) {
	if out := renderRuleList(nil); !strings.Contains(out, "no redirections") {
		t.Errorf("empty list: got %q", out)
	}

	rules := []*relay.Rule{
		{ID: "deals", Status: relay.RulePending},
		{ID: "news", Source: ptr.Ptr(int64(-100)), Destination: ptr.Ptr(int64(200)), Status: relay.RuleActive},
	}
	out := renderRuleList(rules)
	if !strings.Contains(out, "<b>news</b>: <code>-100</code>") {
		t.Errorf("active rule not rendered:\n%s", out)
	}
	if !strings.Contains(out, "<b>deals</b>: awaiting chat ids") {
		t.Errorf("pending rule not rendered:\n%s", out)
	}
}

func TestSplitMessageShort(t *testing.T) {
	parts := splitMessage("hello", 4096)
	if len(parts) != 1 || parts[0] != "hello" {
		t.Errorf("got %v, want [hello]", parts)
	}
}

func TestSplitMessageBreaksOnNewline(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "line %02d\n", i)
	}
	text := strings.TrimRight(sb.String(), "\n")

	parts := splitMessage(text, 100)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	for i, part := range parts {
		if len(part) > 100 {
			t.Errorf("part %d exceeds limit: %d bytes", i, len(part))
		}
		if strings.Contains(part, "line") && !strings.HasPrefix(part, "line") {
			t.Errorf("part %d does not start at a line boundary: %q", i, part[:20])
		}
	}
	joined := strings.Join(parts, "\n")
	for i := 0; i < 100; i++ {
		want := fmt.Sprintf("line %02d", i)
		if !strings.Contains(joined, want) {
			t.Errorf("line %q lost in split", want)
		}
	}
}

func TestSplitMessageNoNewline(t *testing.T) {
	text := strings.Repeat("x", 250)
	parts := splitMessage(text, 100)
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	if total := len(parts[0]) + len(parts[1]) + len(parts[2]); total != 250 {
		t.Errorf("content lost: %d bytes total, want 250", total)
	}
}

func TestFirstUserFacingLine(t *testing.T) {
	err := fmt.Errorf("%w: phone number is not valid", relay.ErrInvalidInput)
	got := firstUserFacingLine(err)
	if got != "Phone number is not valid." {
		t.Errorf("got %q, want %q", got, "Phone number is not valid.")
	}

	if got := firstUserFacingLine(errors.New("boom")); got != "Boom." {
		t.Errorf("got %q, want %q", got, "Boom.")
	}
}

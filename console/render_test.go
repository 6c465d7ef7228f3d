package console

import (
	"strings"
	"testing"
	"time"

	"github.com/pitline/pitline/schema"
)

func msgAt(id schema.MessageID, role schema.Role, content string) schema.ChatMessage {
	return schema.ChatMessage{
		ID:      id,
		Role:    role,
		Content: content,
		Time:    time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC),
	}
}

func TestBuildLinesHeaderAndIndentedBody(t *testing.T) {
	lines := BuildLines([]schema.ChatMessage{
		msgAt(1, schema.RoleUser, "hello there"),
	}, 40)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %+v", len(lines), lines)
	}
	if lines[0].Kind != LineHeader || !strings.HasPrefix(lines[0].Text, "you ") {
		t.Fatalf("header = %+v", lines[0])
	}
	if !strings.Contains(lines[0].Text, "09:30:00") {
		t.Fatalf("header missing time: %q", lines[0].Text)
	}
	if lines[1].Kind != LineBody || lines[1].Text != "  hello there" {
		t.Fatalf("body = %+v", lines[1])
	}
}

func TestBuildLinesSystemUnindented(t *testing.T) {
	lines := BuildLines([]schema.ChatMessage{
		msgAt(3, schema.RoleSystem, "connected to venue"),
	}, 40)
	if len(lines) != 1 || lines[0].Kind != LineSystem || lines[0].Text != "connected to venue" {
		t.Fatalf("lines = %+v", lines)
	}
}

func TestBuildLinesDividerVerbatim(t *testing.T) {
	long := strings.Repeat("-", 60)
	lines := BuildLines([]schema.ChatMessage{
		msgAt(2, schema.RoleAssistant, "above\n"+long+"\nbelow"),
	}, 20)
	var div *RenderLine
	for i := range lines {
		if lines[i].Kind == LineDivider {
			div = &lines[i]
		}
	}
	if div == nil {
		t.Fatalf("no divider line in %+v", lines)
	}
	if div.Text != long {
		t.Fatalf("divider was wrapped or indented: %q", div.Text)
	}
}

func TestBuildLinesBodyWrapsInsideIndent(t *testing.T) {
	lines := BuildLines([]schema.ChatMessage{
		msgAt(4, schema.RoleAssistant, "aaaa bbbb cccc"),
	}, 8)
	for _, ln := range lines[1:] {
		if !strings.HasPrefix(ln.Text, bodyIndent) {
			t.Fatalf("body line %q not indented", ln.Text)
		}
		if n := len([]rune(ln.Text)); n > 8 {
			t.Fatalf("body line %q exceeds width (%d)", ln.Text, n)
		}
	}
}

// Streaming appends must not change the keys of lines already emitted.
func TestBuildLinesStableKeysWhileStreaming(t *testing.T) {
	partial := BuildLines([]schema.ChatMessage{
		msgAt(5, schema.RoleAssistant, "first chunk"),
	}, 40)
	full := BuildLines([]schema.ChatMessage{
		msgAt(5, schema.RoleAssistant, "first chunk\nsecond chunk"),
	}, 40)
	for i, ln := range partial {
		if full[i].Key != ln.Key {
			t.Fatalf("key %d changed: %q -> %q", i, ln.Key, full[i].Key)
		}
	}
	seen := map[string]bool{}
	for _, ln := range full {
		if seen[ln.Key] {
			t.Fatalf("duplicate key %q", ln.Key)
		}
		seen[ln.Key] = true
	}
}

func TestIsDivider(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"-----", true},
		{"=====", true},
		{"--", false},
		{"--=--", false},
		{"", false},
		{"- - -", false},
	}
	for _, c := range cases {
		if got := isDivider(c.in); got != c.want {
			t.Fatalf("isDivider(%q) = %v", c.in, got)
		}
	}
}

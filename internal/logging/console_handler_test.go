package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerHeader(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false)).
		With(String(FieldComponent, "connection"))

	logger.Info("frame received",
		String(FieldEndpoint, "svc1"),
		String(FieldRole, "server"),
		String(FieldConnectionID, "0123456789abcdef"),
		Int("bytes", 5))

	line := buf.String()
	if !strings.Contains(line, "INFO [connection] svc1/server#01234567: frame received") {
		t.Fatalf("unexpected header: %q", line)
	}
	if !strings.Contains(line, "bytes=5") {
		t.Fatalf("expected trailing attrs, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be lifted into the header, got %q", line)
	}
}

func TestPrettyHandlerGroupsAndDedupe(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false))

	logger.With("k", "first").WithGroup("g").Info("msg", "x", 1, "x", 2)
	logger.With("k", "first").Info("msg", "k", "second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "g.x=2") || strings.Contains(lines[0], "g.x=1") {
		t.Fatalf("expected grouped dedupe, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "k=second") || strings.Contains(lines[1], "k=first") {
		t.Fatalf("expected later value to win, got %q", lines[1])
	}
}

func TestComposeSubject(t *testing.T) {
	cases := map[string][3]string{
		"":                     {"", "", ""},
		"svc1":                 {"svc1", "", ""},
		"client#abc":           {"", "client", "abc"},
		"svc1/server#abcdefgh": {"svc1", "server", "abcdefghijkl"},
	}
	for want, in := range cases {
		if got := composeSubject(in[0], in[1], in[2]); got != want {
			t.Errorf("composeSubject(%q, %q, %q) = %q, want %q", in[0], in[1], in[2], got, want)
		}
	}
}

func TestFormatValueQuotes(t *testing.T) {
	if got := formatValue(slog.StringValue("two words")); got != `"two words"` {
		t.Fatalf("got %s", got)
	}
	if got := formatValue(slog.StringValue("plain")); got != "plain" {
		t.Fatalf("got %s", got)
	}
	if got := formatValue(slog.StringValue("")); got != `""` {
		t.Fatalf("got %s", got)
	}
}

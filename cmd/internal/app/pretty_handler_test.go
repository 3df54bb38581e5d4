package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("session_id", "01HX").Info("ws.watch.conversation",
		"note", "two words",
		"conversation_id", "c1",
	)

	line := buf.String()
	for _, want := range []string{
		" INFO  ",
		"[ws]       watch.conversation",
		"sid=01HX conv=c1 note=\"two words\"",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected ANSI codes in %q", line)
	}
}

func TestPrettyHandler_CorrelationOrder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newPrettyHandler(&buf, nil, false)).Error("api.request.fail",
		"err", errors.New("store down"),
		"conversation_id", "c9",
		"viewer_id", "u1",
		"request_id", "r-7",
	)

	line := buf.String()
	want := `ERROR [api]      request.fail req=r-7 viewer=u1 conv=c9 err="store down"`
	if !strings.Contains(line, want) {
		t.Fatalf("expected %q in %q", want, line)
	}
}

func TestPrettyHandler_EventWithoutComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newPrettyHandler(&buf, nil, false)).Info("ready", "addr", ":8080")
	if strings.Contains(buf.String(), "[") || !strings.Contains(buf.String(), "INFO  ready addr=:8080") {
		t.Fatalf("unexpected line %q", buf.String())
	}
}

func TestPrettyHandler_ErrorColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newPrettyHandler(&buf, nil, true)).Warn("bridge.mirror.invalidate_fail", "err", "timeout")
	if !strings.Contains(buf.String(), "err="+ansiRed+"timeout"+ansiReset) {
		t.Fatalf("expected red err value in %q", buf.String())
	}
}

func TestPrettyHandler_RequestFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))
	log.Warn("http.request", "method", "post", "status", 404, "status_class", "4xx", "duration_ms", int64(12))

	line := buf.String()
	for _, want := range []string{
		"method=" + ansiGreen + "POST" + ansiReset,
		"status=" + ansiYellow + "404" + ansiReset,
		"class=" + ansiYellow + "4xx" + ansiReset,
		"duration=" + ansiDim + "12ms" + ansiReset,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := newPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	if h.Enabled(t.Context(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}
	if !h.Enabled(t.Context(), slog.LevelError) {
		t.Fatalf("error must be enabled at warn level")
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        `""`,
		"plain":   "plain",
		"a b":     `"a b"`,
		"k=v":     `"k=v"`,
		`say "x"`: `"say \"x\""`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", in, got, want)
		}
	}
}

func TestPrettyHandler_GroupPrefix(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newPrettyHandler(&buf, nil, false)).
		With("request_id", "r1").
		WithGroup("feed").
		Info("feed.drop", "collection", "messages", slog.Group("queue", "size", 64))

	line := buf.String()
	for _, want := range []string{"req=r1", "feed.collection=messages", "feed.queue.size=64"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

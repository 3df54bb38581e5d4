package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one aligned line per record for local development:
//
//	12:04:05.123 INFO  [bridge]  watch.open  sid=01HX viewer=u1 conv=c1 kind=conversation  (bridge.go:212)
//
// Event names are split at the first dot into a component column and the event.
// Correlation keys (request, session, viewer, conversation) are printed first in a
// fixed order so the lines of one request or socket session line up.
type prettyHandler struct {
	w         io.Writer
	level     slog.Leveler
	addSource bool
	color     bool

	prefix string
	fields []prettyField
	mu     *sync.Mutex
}

type prettyField struct {
	key string
	val slog.Value
}

// correlationKeys are hoisted in this order and printed under their short names.
var correlationKeys = []struct{ key, short string }{
	{"request_id", "req"},
	{"session_id", "sid"},
	{"viewer_id", "viewer"},
	{"conversation_id", "conv"},
}

const componentWidth = 10

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, color: color, mu: &sync.Mutex{}}
	if opts != nil {
		h.level = opts.Level
		h.addSource = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]prettyField(nil), h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = h.flatten(fields, h.prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(paint(ts.Format("15:04:05.000"), ansiDim, h.color))
	b.WriteByte(' ')
	b.WriteString(levelLabel(r.Level, h.color))
	b.WriteByte(' ')

	component, event := splitEvent(r.Message)
	if component != "" {
		tag := fmt.Sprintf("%-*s", componentWidth, "["+component+"]")
		b.WriteString(paint(tag, ansiCyan, h.color))
		b.WriteByte(' ')
	}
	b.WriteString(paint(event, ansiBright, h.color))

	for _, f := range orderFields(fields) {
		b.WriteByte(' ')
		b.WriteString(shortKey(f.key))
		b.WriteByte('=')
		b.WriteString(h.prettyValue(f.key, f.val))
	}

	if h.addSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			src := fmt.Sprintf("(%s:%d)", filepath.Base(frame.File), frame.Line)
			b.WriteString("  ")
			b.WriteString(paint(src, ansiDim, h.color))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs resolves attrs under the current group prefix, so a later WithGroup does
// not rename them.
func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.fields = append([]prettyField(nil), h.fields...)
	for _, a := range attrs {
		cp.fields = h.flatten(cp.fields, h.prefix, a)
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *prettyHandler) flatten(out []prettyField, prefix string, a slog.Attr) []prettyField {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if a.Value.Kind() == slog.KindGroup {
		if key != "" {
			prefix += key + "."
		}
		for _, ga := range a.Value.Group() {
			out = h.flatten(out, prefix, ga)
		}
		return out
	}
	if key == "" {
		return out
	}
	return append(out, prettyField{key: prefix + key, val: a.Value})
}

// orderFields moves correlation keys to the front; the rest keep their order.
func orderFields(fields []prettyField) []prettyField {
	out := make([]prettyField, 0, len(fields))
	used := make([]bool, len(fields))
	for _, ck := range correlationKeys {
		for i, f := range fields {
			if !used[i] && f.key == ck.key {
				out = append(out, f)
				used[i] = true
			}
		}
	}
	for i, f := range fields {
		if !used[i] {
			out = append(out, f)
		}
	}
	return out
}

func splitEvent(msg string) (component, event string) {
	if i := strings.IndexByte(msg, '.'); i > 0 && i < len(msg)-1 {
		return msg[:i], msg[i+1:]
	}
	return "", msg
}

func shortKey(k string) string {
	for _, ck := range correlationKeys {
		if k == ck.key {
			return ck.short
		}
	}
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch key {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		return paint(strings.TrimSpace(v.String()), ansiCyan, h.color)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	case "err":
		return paint(quoteIfNeeded(valueText(v)), ansiRed, h.color)
	}
	return quoteIfNeeded(valueText(v))
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		// Int64, Uint64, Bool and Duration print the same through String.
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("ERROR", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("WARN ", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("DEBUG", ansiMagenta, color)
	default:
		return paint("INFO ", ansiBlue, color)
	}
}

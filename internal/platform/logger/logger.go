package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // Level for console output (default: info)
	FileLevel    string // Level for file output (default: debug)
	File         string
	App          string
	// Console is the console destination (default: os.Stdout)
	Console io.Writer
}

// SensitiveKeys are attribute keys whose values never reach the output.
var SensitiveKeys = []string{"email", "card_number", "api_key", "secret", "token"}

const redacted = "[REDACTED]"

var closers sync.Map

// New creates configured slog.Logger instance.
func New(o Options) *slog.Logger {
	consoleLevel := o.ConsoleLevel
	if consoleLevel == "" {
		consoleLevel = "info"
	}
	fileLevel := o.FileLevel
	if fileLevel == "" {
		fileLevel = "debug"
	}
	console := o.Console
	if console == nil {
		console = os.Stdout
	}

	timeFormat := time.RFC3339
	if o.Env == "dev" {
		timeFormat = time.Kitchen
	}
	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{Level: levelFromString(consoleLevel), TimeFormat: timeFormat}),
	}

	var closer func() error
	if o.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = fileWriter.Close
		handlers = append(handlers, slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{Level: levelFromString(fileLevel)}))
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(NewRedactingHandler(h, SensitiveKeys)).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)

	if closer != nil {
		closers.Store(l, closer)
	}

	return l
}

// Close closes all file handlers to release resources.
// Should be called when shutting down the application.
func Close(logger *slog.Logger) error {
	if c, ok := closers.Load(logger); ok {
		closers.Delete(logger)
		return c.(func() error)()
	}
	return nil
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactingHandler masks sensitive log attributes, including inside groups.
type RedactingHandler struct {
	inner slog.Handler
	keys  map[string]struct{}
}

// NewRedactingHandler wraps handler with redaction of sensitive fields.
func NewRedactingHandler(inner slog.Handler, sensitive []string) *RedactingHandler {
	m := make(map[string]struct{}, len(sensitive))
	for _, k := range sensitive {
		m[strings.ToLower(k)] = struct{}{}
	}
	return &RedactingHandler{inner: inner, keys: m}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool { attrs = append(attrs, a); return true })
	nr.AddAttrs(h.sanitize(attrs)...)
	return h.inner.Handle(ctx, nr)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithAttrs(h.sanitize(attrs)), keys: h.keys}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), keys: h.keys}
}

func (h *RedactingHandler) sanitize(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, h.sanitizeAttr(a))
	}
	return out
}

func (h *RedactingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(h.sanitize(a.Value.Group())...)}
	case slog.KindString:
		if looksSensitive(a.Value.String()) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// looksSensitive catches API keys and card numbers logged under innocent keys.
func looksSensitive(s string) bool {
	if len(s) > 12 && (strings.HasPrefix(s, "sk_") || strings.HasPrefix(s, "sk-") || strings.Contains(strings.ToLower(s), "token")) {
		return true
	}
	return looksLikePAN(s)
}

// looksLikePAN reports whether s is 13-19 digits, optionally grouped by spaces or
// dashes, passing the Luhn check.
func looksLikePAN(s string) bool {
	digits := make([]int, 0, 19)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// MultiHandler combines multiple handlers into one.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler that writes to multiple handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled implements slog.Handler.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers}
}

// WithGroup implements slog.Handler.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers}
}

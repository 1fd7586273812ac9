// Package logging provides the installer's log levels and a colorized slog
// handler for terminals.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Levels
// =============================================================================

// Levels between INFO and WARN for outcomes the installer reports.
const (
	LevelSuccess = slog.Level(2)
	LevelRetry   = slog.Level(3)
)

// LevelName returns the tag printed for a level.
func LevelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < LevelSuccess:
		return "INFO"
	case l < LevelRetry:
		return "SUCCESS"
	case l < slog.LevelWarn:
		return "RETRY"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ReplaceLevel renames the custom levels in JSON and text handler output.
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(l))
		}
	}
	return a
}

// Success logs msg at LevelSuccess.
func Success(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelSuccess, msg, args...)
}

// Retry logs msg at LevelRetry.
func Retry(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelRetry, msg, args...)
}

// =============================================================================
// Color Handler
// =============================================================================

// ColorHandler writes one line per record: a colored severity tag, the
// message and the attributes as key=value pairs. Colors are dropped when the
// writer is not a terminal.
type ColorHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
	styles map[string]lipgloss.Style
	muted  lipgloss.Style
}

// NewColorHandler creates a handler writing to w at the given minimum level.
func NewColorHandler(w io.Writer, level slog.Leveler) *ColorHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	r := lipgloss.NewRenderer(w)
	tag := func(color string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return &ColorHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		styles: map[string]lipgloss.Style{
			"DEBUG":   tag("#666666"),
			"INFO":    tag("#0099ff"),
			"SUCCESS": tag("#00cc00"),
			"RETRY":   tag("#cc66ff"),
			"WARN":    tag("#ffaa00"),
			"ERROR":   tag("#ff0000"),
		},
		muted: r.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// Enabled implements slog.Handler.
func (h *ColorHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	name := LevelName(r.Level)

	var b strings.Builder
	b.WriteString(h.styles[name].Render(fmt.Sprintf("[%s]", name)))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	var pairs []string
	for _, a := range h.attrs {
		pairs = appendAttr(pairs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		pairs = appendAttr(pairs, h.group, a)
		return true
	})
	if len(pairs) > 0 {
		b.WriteByte(' ')
		b.WriteString(h.muted.Render(strings.Join(pairs, " ")))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

func appendAttr(pairs []string, group string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return pairs
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			pairs = appendAttr(pairs, key, ga)
		}
		return pairs
	}
	value := a.Value.String()
	if strings.ContainsAny(value, " \t\"=") {
		value = fmt.Sprintf("%q", value)
	}
	return append(pairs, key+"="+value)
}

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/ui/output"
	"go.trai.ch/strata/internal/ui/style"
)

// spatialKeys name attributes and error metadata that locate something in
// the world. They are drawn in the ocean accent.
var spatialKeys = map[string]bool{
	"position": true,
	"bounds":   true,
	"region":   true,
	"slab":     true,
	"tile":     true,
	"layer":    true,
}

// PrettyHandler is a slog.Handler writing one coloured line per record.
//
// Positions, bounds and tile keys are drawn in the ocean accent and materials
// in the sand accent, in attributes and error metadata alike. An error
// attribute expands into its zerr chain below the line.
type PrettyHandler struct {
	out    *termenv.Output
	level  slog.Leveler
	prefix string
	attrs  []string
}

// NewPrettyHandler creates a PrettyHandler writing to w, or stderr when w is nil.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyHandler{out: output.New(w), level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes the record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	head := r.Message
	var colour lipgloss.Color
	switch {
	case r.Level >= slog.LevelError:
		head, colour = style.Cross+" "+head, style.Red
	case r.Level >= slog.LevelWarn:
		head, colour = style.Warning+" "+head, style.Yellow
	case r.Level >= slog.LevelInfo:
		colour = style.Slate
	default:
		head, colour = style.Dot+" "+head, style.Basalt
	}

	parts := append([]string{h.paint(head, colour)}, h.attrs...)
	var chains []string
	r.Attrs(func(a slog.Attr) bool {
		parts = h.appendAttr(parts, &chains, h.prefix, a)
		return true
	})

	var b strings.Builder
	b.WriteString(strings.Join(parts, " "))
	for _, c := range chains {
		b.WriteString("\n" + c)
	}
	b.WriteString("\n")
	_, err := h.out.WriteString(b.String())
	return err
}

// WithAttrs returns a handler that renders attrs, under the current group,
// on every record.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]string(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = h.appendAttr(next.attrs, nil, h.prefix, a)
	}
	return &next
}

// WithGroup returns a handler that nests later attributes under name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = qualify(h.prefix, name)
	return &next
}

// appendAttr renders a onto parts. Groups are flattened into dotted keys.
// With chains set, error values are expanded there instead of inline.
func (h *PrettyHandler) appendAttr(parts []string, chains *[]string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return parts
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix = qualify(prefix, a.Key)
		}
		for _, g := range a.Value.Group() {
			parts = h.appendAttr(parts, chains, prefix, g)
		}
		return parts
	}

	key := qualify(prefix, a.Key)
	if err, ok := a.Value.Any().(error); ok && chains != nil {
		*chains = append(*chains, formatErrorEntries(collectErrorEntries(err), h.render))
		return parts
	}
	return append(parts, key+"="+h.render(a.Key, a.Value.Any()))
}

// render draws one attribute or metadata value, accenting world locations
// and materials.
func (h *PrettyHandler) render(key string, v any) string {
	switch x := v.(type) {
	case domain.Material:
		return h.paint(x.String(), style.Sand)
	case domain.Vec3, domain.Bounds:
		return h.paint(fmt.Sprint(x), style.Ocean)
	case error:
		return h.paint(x.Error(), style.Red)
	}
	s := fmt.Sprint(v)
	switch {
	case key == "material":
		return h.paint(s, style.Sand)
	case spatialKeys[key]:
		return h.paint(s, style.Ocean)
	}
	return s
}

func (h *PrettyHandler) paint(s string, c lipgloss.Color) string {
	return h.out.String(s).Foreground(termenv.RGBColor(string(c))).String()
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

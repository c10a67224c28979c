// Package logging enriches slog records with attributes carried in a context.Context.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/myrjola/turingtrial/internal/errors"
)

type contextKey string

const slogAttrs contextKey = "slogAttrs"

// contextHandler adds the attributes stored with [WithAttrs] to every record before passing it on.
type contextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps h so that records pick up the attributes stored in their context with [WithAttrs].
func NewContextHandler(h slog.Handler) slog.Handler {
	return contextHandler{next: h}
}

// NewLogger creates a text logger writing to w that is enriched with [WithAttrs].
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   false,
		Level:       level,
		ReplaceAttr: nil,
	})))
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogAttrs).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	if err := h.next.Handle(ctx, r); err != nil {
		return errors.Wrap(err, "handle log record")
	}
	return nil
}

// WithAttrs keeps the wrapper so that loggers derived with [slog.Logger.With] still read the context.
func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// WithAttrs returns a copy of ctx whose log records carry attr in addition to the attributes already stored.
func WithAttrs(ctx context.Context, attr ...slog.Attr) context.Context {
	if v, ok := ctx.Value(slogAttrs).([]slog.Attr); ok {
		v = append(v[:len(v):len(v)], attr...)
		return context.WithValue(ctx, slogAttrs, v)
	}
	return context.WithValue(ctx, slogAttrs, attr)
}

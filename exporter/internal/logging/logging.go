// Package logging builds the exporter's slog logger.
//
// Records are written as JSON. A LevelVar backs the handler so the level can
// be changed while running. Records logged with a context carrying a
// collection-cycle ID (see WithCycle) get a "cycle" attribute.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name to a slog.Level. Names are case-insensitive;
// WARNING and CRITICAL are accepted as aliases for WARN and ERROR.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns a JSON logger writing to w whose minimum level follows level.
func New(w io.Writer, level *slog.LevelVar) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(&cycleHandler{Handler: h})
}

type cycleKey struct{}

// WithCycle returns a context whose log records carry the given cycle ID.
func WithCycle(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey{}, id)
}

// Cycle returns the cycle ID stored in ctx, or "".
func Cycle(ctx context.Context) string {
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// cycleHandler adds the cycle attribute from the record's context.
type cycleHandler struct {
	slog.Handler
}

func (h *cycleHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := Cycle(ctx); id != "" {
		r.AddAttrs(slog.String("cycle", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *cycleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &cycleHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *cycleHandler) WithGroup(name string) slog.Handler {
	return &cycleHandler{Handler: h.Handler.WithGroup(name)}
}

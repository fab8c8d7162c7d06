package events

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// SlogPublisher writes events as structured log lines. With a nil Logger it
// uses the request-scoped logger from the context.
type SlogPublisher struct {
	Logger *slog.Logger
}

func (p SlogPublisher) Publish(ctx context.Context, e Event) {
	l := p.Logger
	if l == nil {
		l = slogx.FromContext(ctx)
	}

	attrs := []any{
		slog.String("kind", string(e.Kind)),
		slog.Time("at", e.Time),
	}
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("req_id", e.RequestID))
	}
	if len(e.Detail) > 0 {
		detail := make([]any, 0, len(e.Detail))
		for k, v := range e.Detail {
			detail = append(detail, slog.String(k, v))
		}
		attrs = append(attrs, slog.Group("detail", detail...))
	}

	l.InfoContext(ctx, "security_event", attrs...)
}

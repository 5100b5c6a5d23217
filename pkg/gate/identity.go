package gate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type userIDKey struct{}

// WithUserID marks the request as authenticated for userID.
// Any authentication middleware placed before the gate calls this.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// LogExtractor adds the authenticated user to log records.
func LogExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := UserIDFromContext(ctx); ok {
			return slog.String("user_id", id.String()), true
		}
		return slog.Attr{}, false
	}
}

// RequireUserID returns the authenticated user or ErrAuthenticationMissing.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrAuthenticationMissing
	}
	return id, nil
}

package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/quotagate/pkg/gate"
	"github.com/dmitrymomot/quotagate/pkg/logger"
)

// DevHeader carries a raw user ID when development authentication is enabled.
const DevHeader = "X-User-ID"

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	signer    *Signer
	devHeader bool
	log       *slog.Logger
}

// WithDevHeader trusts the X-User-ID header when no bearer token is sent.
// Never enable it outside local development.
func WithDevHeader(enabled bool) MiddlewareOption {
	return func(m *middleware) { m.devHeader = enabled }
}

// WithLogger logs rejected credentials at debug level.
func WithLogger(log *slog.Logger) MiddlewareOption {
	return func(m *middleware) {
		if log != nil {
			m.log = log
		}
	}
}

// Middleware authenticates the caller and stores the user ID with
// gate.WithUserID. It never rejects: a request without valid credentials
// continues unauthenticated and the admission pipeline answers 401.
// signer may be nil when only the development header is used.
func Middleware(signer *Signer, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	m := &middleware{signer: signer, log: logger.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("identity"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := m.authenticate(r); ok {
				r = r.WithContext(gate.WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *middleware) authenticate(r *http.Request) (uuid.UUID, bool) {
	token, err := BearerToken(r)
	if err == nil && m.signer != nil {
		id, err := m.signer.Verify(token)
		if err != nil {
			m.log.DebugContext(r.Context(), "bearer token rejected", logger.Error(err))
			return uuid.Nil, false
		}
		return id, true
	}

	if m.devHeader {
		if raw := r.Header.Get(DevHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil || id == uuid.Nil {
				m.log.DebugContext(r.Context(), "invalid development user header", logger.Error(err))
				return uuid.Nil, false
			}
			return id, true
		}
	}
	return uuid.Nil, false
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Package visitor gives every browser a stable anonymous id, carried in a
// signed session cookie, that boards and notifications are keyed by.
package visitor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const visitorIDKey = "visitor_id"

type ctxKey struct{}

// ConfigError is returned when session configuration is invalid.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Manager issues and reads visitor ids.
type Manager struct {
	store  *sessions.CookieStore
	logger *zap.Logger
	name   string
}

// NewManager creates a Manager.
//
//   - sessionKey: cookie signing key. Empty means a random key per process,
//     which drops every visitor's boards on restart.
//   - name: cookie name, "stratacast-visitor" when empty.
//   - maxAge: cookie lifetime.
//   - secure: Secure cookies; also requires a configured key of ≥32 chars.
func NewManager(sessionKey, name string, maxAge time.Duration, secure bool, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var key []byte
	switch {
	case sessionKey == "" && secure:
		return nil, &ConfigError{Message: "session key is required when cookies are secure; provide ≥32 random chars"}
	case sessionKey == "":
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, &ConfigError{Message: "could not generate a session key"}
		}
		logger.Warn("no session key configured; using a random per-process key")
	case len(sessionKey) < 32 && secure:
		return nil, &ConfigError{Message: "session key is too weak for production; provide ≥32 random chars"}
	default:
		if len(sessionKey) < 32 {
			logger.Warn("session key is weak; 32+ random chars required in production",
				zap.Int("length", len(sessionKey)))
		}
		key = []byte(sessionKey)
	}

	if name == "" {
		name = "stratacast-visitor"
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{store: store, logger: logger, name: name}, nil
}

// Name returns the cookie name.
func (m *Manager) Name() string {
	return m.name
}

// Identify ensures every request carries a visitor id, issuing a new one
// (and its cookie) when the request has none or an unreadable one.
func (m *Manager) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			m.logSessionError(r, err)
		}

		id, _ := sess.Values[visitorIDKey].(string)
		if _, perr := uuid.Parse(id); perr != nil {
			id = uuid.NewString()
			sess.Values[visitorIDKey] = id
			if err := sess.Save(r, w); err != nil {
				m.logger.Error("failed to save visitor session", zap.Error(err))
			}
		}
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

func (m *Manager) logSessionError(r *http.Request, err error) {
	var category string
	if scErr, ok := err.(securecookie.Error); ok && scErr.IsDecode() {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "expired timestamp"):
			category = "expired"
		case strings.Contains(msg, "mac") || strings.Contains(msg, "hash"):
			m.logger.Warn("visitor cookie MAC validation failed",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			return
		default:
			category = "decode_failed"
		}
	} else {
		category = "backend"
	}
	m.logger.Debug("visitor cookie unreadable, issuing a new id",
		zap.String("category", category),
		zap.String("path", r.URL.Path))
}

// WithID returns ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the visitor id set by Identify.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// ID returns the visitor id of r, or "" outside Identify.
func ID(r *http.Request) string {
	id, _ := FromContext(r.Context())
	return id
}

// WithTestVisitor attaches id to r, bypassing the cookie.
func WithTestVisitor(r *http.Request, id string) *http.Request {
	return r.WithContext(WithID(r.Context(), id))
}

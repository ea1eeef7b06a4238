package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserContextKey is the context key for the authenticated *User
	UserContextKey contextKey = "auth_user"
)

// Middleware provides HTTP authentication and authorization middleware
type Middleware struct {
	service *Service
	logger  *zap.SugaredLogger
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service *Service, logger *zap.SugaredLogger) *Middleware {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Middleware{service: service, logger: logger}
}

// RequireAuth is middleware that requires a valid bearer token for an active user
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		user, err := m.service.UserFromToken(r.Context(), token)
		if err != nil {
			m.logger.Debugw("Token rejected", logger.FieldError, err, logger.FieldPath, r.URL.Path)
			switch {
			case errors.Is(err, errors.ErrForbidden):
				writeAuthError(w, http.StatusBadRequest, errors.Message(err))
			case errors.Is(err, errors.ErrUnauthorized):
				writeAuthError(w, http.StatusUnauthorized, errors.Message(err))
			default:
				m.logger.Errorw("Failed to resolve current user", logger.FieldError, err)
				writeAuthError(w, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// RequireRole wraps RequireAuth and additionally rejects users whose role is
// not in roles. action completes the 403 detail "Not authorized to <action>".
// The wrapped handler never runs for a rejected request.
func (m *Middleware) RequireRole(action string, roles []Role, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if !HasRole(user, roles...) {
			m.logger.Infow("Authorization denied",
				logger.FieldUserID, user.ID,
				logger.FieldRole, user.Role,
				logger.FieldPath, r.URL.Path)
			writeAuthError(w, http.StatusForbidden, "Not authorized to "+action)
			return
		}
		next(w, r)
	})
}

// HasRole reports whether user holds one of roles
func HasRole(user *User, roles ...Role) bool {
	if user == nil {
		return false
	}
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	return false
}

// extractToken extracts the bearer token from the Authorization header.
// Browsers cannot set headers on a WebSocket handshake, so an upgrade
// request may carry the token as the access_token query parameter.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// WithUser stores user in ctx
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext extracts the authenticated user from request context
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(UserContextKey).(*User)
	return user
}

func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

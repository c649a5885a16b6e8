package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SessionReader resolves the user bound to a request's session cookie.
type SessionReader interface {
	UserID(r *http.Request) (uuid.UUID, bool)
}

// UserLookup verifies that a session's user still exists.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticate attaches the session's user id to the request context. It
// never rejects a request; anonymous callers pass through with no user.
func Authenticate(sessions SessionReader, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := sessions.UserID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// Verify user still exists
			if _, err := users.GetUserByID(r.Context(), userID); err != nil {
				slog.Debug("Session user not found, treating request as anonymous",
					"user_id", userID,
					"path", r.URL.Path,
					"error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// RequireAuth rejects requests that carry no authenticated user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUserID(r) == uuid.Nil {
			slog.Info("Unauthenticated request rejected", "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"msg": "You are not authorized to view this resource"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// CurrentUserID returns the authenticated user, or uuid.Nil.
func CurrentUserID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}

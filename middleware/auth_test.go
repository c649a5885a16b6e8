package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/justbri/marquee/middleware"
	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/services"
)

type stubSessions struct {
	id uuid.UUID
	ok bool
}

func (s stubSessions) UserID(*http.Request) (uuid.UUID, bool) { return s.id, s.ok }

type stubUsers map[uuid.UUID]bool

func (u stubUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if !u[id] {
		return nil, services.ErrNotFound
	}
	return &models.User{ID: id}, nil
}

func captureUser(seen *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = middleware.CurrentUserID(r)
		w.WriteHeader(http.StatusNoContent)
	})
}

func Test_Authenticate(t *testing.T) {
	known := uuid.New()
	deleted := uuid.New()

	tests := []struct {
		name     string
		sessions stubSessions
		expected uuid.UUID
	}{
		{"anonymous", stubSessions{}, uuid.Nil},
		{"live session", stubSessions{id: known, ok: true}, known},
		{"user deleted since login", stubSessions{id: deleted, ok: true}, uuid.Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// setup
			var seen uuid.UUID
			h := middleware.Authenticate(tt.sessions, stubUsers{known: true})(captureUser(&seen))
			rec := httptest.NewRecorder()

			// act
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			// assert
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.expected, seen)
		})
	}
}

func Test_RequireAuth_When_Anonymous(t *testing.T) {
	// setup
	var seen uuid.UUID
	h := middleware.RequireAuth(captureUser(&seen))
	rec := httptest.NewRecorder()

	// act
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/movies/1/rate", nil))

	// assert
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"msg":"You are not authorized to view this resource"}`, rec.Body.String())
}

func Test_RequireAuth_When_Authenticated(t *testing.T) {
	// setup
	var seen uuid.UUID
	id := uuid.New()
	h := middleware.RequireAuth(captureUser(&seen))
	req := httptest.NewRequest(http.MethodPut, "/movies/1/rate", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), id))
	rec := httptest.NewRecorder()

	// act
	h.ServeHTTP(rec, req)

	// assert
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, seen)
}

func Test_Logging_Passes_Status_Through(t *testing.T) {
	// setup
	h := middleware.Logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()

	// act
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))

	// assert
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

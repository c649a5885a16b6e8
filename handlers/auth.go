package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/justbri/marquee/middleware"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type currentSession struct {
	IsAuth bool       `json:"isAuth"`
	UserID *uuid.UUID `json:"userId"`
}

type sessionResponse struct {
	CurrentSession currentSession `json:"currentSession"`
}

func sessionOf(userID uuid.UUID) sessionResponse {
	if userID == uuid.Nil {
		return sessionResponse{}
	}
	return sessionResponse{CurrentSession: currentSession{IsAuth: true, UserID: &userID}}
}

// Login verifies credentials and binds a fresh session to the user.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.svc.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.sessions.Login(w, r, user.ID); err != nil {
		slog.Error("Failed to create session", "user_id", user.ID, "error", err)
		writeMsg(w, http.StatusInternalServerError, msgInternal)
		return
	}

	slog.Info("User logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, sessionOf(user.ID))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUserID(r)
	if err := h.sessions.Logout(w, r); err != nil {
		slog.Error("Failed to destroy session", "user_id", userID, "error", err)
		writeMsg(w, http.StatusInternalServerError, msgInternal)
		return
	}
	if userID != uuid.Nil {
		slog.Info("User logged out", "user_id", userID)
	}
	writeMsg(w, http.StatusOK, "Logged out")
}

// Status reports whether the request carries a live session.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionOf(middleware.CurrentUserID(r)))
}

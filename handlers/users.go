package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/justbri/marquee/services"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Bio      string `json:"bio" validate:"max=500"`
}

type photoRequest struct {
	Data        string `json:"data" validate:"required,base64"`
	ContentType string `json:"contentType" validate:"required"`
}

type updateUserRequest struct {
	Bio      *string       `json:"bio" validate:"omitempty,max=500"`
	Password *string       `json:"password" validate:"omitempty,min=8,max=72"`
	Photo    *photoRequest `json:"photo"`
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.svc.RegisterUser(r.Context(), services.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	details, err := h.svc.User(r.Context(), user.ID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	details, err := h.svc.User(r.Context(), userID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateUserRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := services.UpdateUserInput{Bio: req.Bio, Password: req.Password}
	if req.Photo != nil {
		data, err := base64.StdEncoding.DecodeString(req.Photo.Data)
		if err != nil {
			writeError(w, r, fieldError("body", "data", nil, "Must be base64 encoded"))
			return
		}
		in.Photo = &services.PhotoUpload{Data: data, ContentType: req.Photo.ContentType}
	}

	details, err := h.svc.UpdateUser(r.Context(), userID, actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// DeleteUser removes the account and everything it owns, then clears the
// caller's cookie.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.svc.DeleteUser(r.Context(), userID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.sessions.Logout(w, r); err != nil {
		slog.Warn("Failed to clear session cookie", "user_id", userID, "error", err)
	}
	slog.Debug("User cascade report", "user_id", userID, "deleted", report.Deleted, "reaggregated", len(report.Reaggregated))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UserRates(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	env, err := h.svc.UserRates(r.Context(), userID, actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) DeleteRate(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rateID, err := uuidParam(r, "rateId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.DeleteRate(r.Context(), userID, rateID, actor); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UserReviews(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	env, err := h.svc.UserReviews(r.Context(), userID, actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reviewID, err := uuidParam(r, "reviewId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.DeleteReview(r.Context(), userID, reviewID, actor); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

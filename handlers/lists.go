package handlers

import (
	"net/http"

	"github.com/justbri/marquee/services"
)

type listRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Movies      []int  `json:"movies" validate:"omitempty,dive,min=1"`
}

type listPatchRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Movies      *[]int  `json:"movies" validate:"omitempty,dive,min=1"`
}

type watchlistRequest struct {
	Movies []int `json:"movies" validate:"required,dive,min=1"`
}

func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req listRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.svc.CreateList(r.Context(), userID, actor, services.ListInput{
		Name:        req.Name,
		Description: req.Description,
		Movies:      req.Movies,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (h *Handler) UserLists(w http.ResponseWriter, r *http.Request) {
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

	env, err := h.svc.UserLists(r.Context(), userID, actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// GetList pages through the movies of one list.
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listID, err := uuidParam(r, "listId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.svc.ListContents(r.Context(), userID, listID, actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) UpdateList(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listID, err := uuidParam(r, "listId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req listPatchRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.svc.UpdateList(r.Context(), userID, listID, actor, services.ListPatch{
		Name:        req.Name,
		Description: req.Description,
		Movies:      req.Movies,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listID, err := uuidParam(r, "listId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.DeleteList(r.Context(), userID, listID, actor); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWatchlist is visible to its owner only.
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
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

	env, err := h.svc.Watchlist(r.Context(), userID, actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) SetWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, actor, err := userParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req watchlistRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	watchlist, err := h.svc.SetWatchlist(r.Context(), userID, actor, req.Movies)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, watchlist)
}

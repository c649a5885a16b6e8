package handlers

import (
	"net/http"

	"github.com/justbri/marquee/middleware"
)

type rateRequest struct {
	Value int `json:"value" validate:"required,min=1,max=10"`
}

type reviewRequest struct {
	Title string `json:"title" validate:"required,min=1,max=100"`
	Body  string `json:"body" validate:"required,min=1,max=2000"`
}

// Catalog pages through every movie, best rated first.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	q, err := h.pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	env, err := h.svc.Catalog(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) RatedMovies(w http.ResponseWriter, r *http.Request) {
	page, err := h.ratedPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.RatedMovies(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetMovie(w http.ResponseWriter, r *http.Request) {
	idTMDB, err := tmdbParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	movie, err := h.svc.Movie(r.Context(), idTMDB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

// TMDBMovie proxies the movie database payload untouched.
func (h *Handler) TMDBMovie(w http.ResponseWriter, r *http.Request) {
	idTMDB, err := tmdbParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := h.svc.TMDBMovie(r.Context(), idTMDB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) MovieDetail(w http.ResponseWriter, r *http.Request) {
	idTMDB, err := tmdbParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := h.svc.MovieDetail(r.Context(), idTMDB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// RateMovie answers 201 for a first rating and 200 when it replaces one.
func (h *Handler) RateMovie(w http.ResponseWriter, r *http.Request) {
	idTMDB, err := tmdbParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rateRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rate, created, err := h.svc.RateMovie(r.Context(), middleware.CurrentUserID(r), idTMDB, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, rate)
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	idTMDB, err := tmdbParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	review, err := h.svc.CreateReview(r.Context(), middleware.CurrentUserID(r), idTMDB, req.Title, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *Handler) MovieReviews(w http.ResponseWriter, r *http.Request) {
	idTMDB, err := tmdbParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	env, err := h.svc.MovieReviews(r.Context(), idTMDB, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

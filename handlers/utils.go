package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/justbri/marquee/middleware"
	"github.com/justbri/marquee/services"
)

const (
	msgUnauthorized       = "You are not authorized to view this resource"
	msgInvalidCredentials = "Incorrect username or password"
	msgInternal           = "Internal server error"
)

// Handler serves the REST API on top of the services layer.
type Handler struct {
	svc          *services.Service
	sessions     *services.SessionStore
	validate     *validator.Validate
	maxBodyBytes int64
}

// New creates the API handlers. Request bodies are capped so that a base64
// encoded photo of maxPhotoBytes still fits.
func New(svc *services.Service, sessions *services.SessionStore, maxPhotoBytes int64) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		svc:          svc,
		sessions:     sessions,
		validate:     validate,
		maxBodyBytes: maxPhotoBytes*4/3 + 64<<10,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}

// writeError maps service errors to their HTTP status and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verr.Errors})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeMsg(w, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, services.ErrUnauthorized):
		writeMsg(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, services.ErrNotFound):
		writeMsg(w, http.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrConsistency):
		slog.Warn("Request conflicted with stored state", "path", r.URL.Path, "error", err)
		writeMsg(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrUnavailable):
		slog.Warn("Upstream unavailable", "path", r.URL.Path, "error", err)
		writeMsg(w, http.StatusServiceUnavailable, "The movie database is unavailable, try again later")
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMsg(w, http.StatusInternalServerError, msgInternal)
	}
}

func notFoundMessage(err error) string {
	var nf *services.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	return "Resource not found"
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fieldError("body", "", nil, fmt.Sprintf("Request body larger than %d bytes", tooLarge.Limit))
		}
		return fieldError("body", "", nil, "Malformed JSON body")
	}
	return h.check(v, "body")
}

// check runs struct validation and converts failures into a ValidationError.
func (h *Handler) check(v any, location string) error {
	err := h.validate.Struct(v)
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &services.ValidationError{}
	for _, fe := range ves {
		out.Add(location, fe.Field(), fe.Value(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "Field is required"
	case "min":
		return "Must be at least " + fe.Param() + unit
	case "max":
		return "Must be at most " + fe.Param() + unit
	case "number":
		return "Must be a non-negative integer"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "base64":
		return "Must be base64 encoded"
	default:
		return "Invalid value"
	}
}

func fieldError(location, param string, value any, msg string) error {
	out := &services.ValidationError{}
	out.Add(location, param, value, msg)
	return out
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError("params", name, raw, "Must be a valid id")
	}
	return id, nil
}

func tmdbParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "idTMDB")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fieldError("params", "idTMDB", raw, "Must be a positive integer")
	}
	return id, nil
}

// userParam returns the {id} path parameter and the authenticated caller.
func userParam(r *http.Request) (userID, actor uuid.UUID, err error) {
	userID, err = uuidParam(r, "id")
	return userID, middleware.CurrentUserID(r), err
}

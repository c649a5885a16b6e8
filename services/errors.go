package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not authorized")
	ErrConflict           = errors.New("conflict")
	ErrConsistency        = errors.New("aggregate consistency violated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnavailable        = errors.New("upstream unavailable")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Value    any    `json:"value"`
	Msg      string `json:"msg"`
	Param    string `json:"param"`
	Location string `json:"location"`
}

// ValidationError lists every offending field of a request.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Param + ": " + fe.Msg
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Add(location, param string, value any, msg string) {
	e.Errors = append(e.Errors, FieldError{Value: value, Msg: msg, Param: param, Location: location})
}

// OrNil returns e as an error only when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func invalid(param string, value any, msg string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Value: value, Msg: msg, Param: param, Location: "body"}}}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// AuthorizationError is returned when the caller is anonymous or does not own the resource.
type AuthorizationError struct {
	Actor    uuid.UUID
	Resource string
}

func (e *AuthorizationError) Error() string {
	if e.Actor == uuid.Nil {
		return "authentication required for " + e.Resource
	}
	return fmt.Sprintf("user %s may not modify %s", e.Actor, e.Resource)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// ConsistencyError reports a rating that references a movie that no longer
// exists, or an aggregate that would leave its invariant.
type ConsistencyError struct {
	MovieID uuid.UUID
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("movie %s: %s", e.MovieID, e.Reason)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// authorize fails unless actor is authenticated and equal to owner.
func authorize(actor, owner uuid.UUID, resource string) error {
	if actor == uuid.Nil || actor != owner {
		return &AuthorizationError{Actor: actor, Resource: resource}
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type Rate struct {
	ID      uuid.UUID `json:"id" db:"id"`
	UserID  uuid.UUID `json:"userId" db:"user_id"`
	MovieID uuid.UUID `json:"movieId" db:"movie_id"`
	Value   int       `json:"value" db:"value"`
	Date    time.Time `json:"date" db:"date"`
}

type Review struct {
	ID      uuid.UUID `json:"id" db:"id"`
	UserID  uuid.UUID `json:"userId" db:"user_id"`
	MovieID uuid.UUID `json:"movieId" db:"movie_id"`
	Title   string    `json:"title" db:"title"`
	Body    string    `json:"body" db:"body"`
	Date    time.Time `json:"date" db:"date"`
}

// List is a user curated, ordered sequence of movies. Movies may repeat.
type List struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	UserID      uuid.UUID   `json:"userId" db:"user_id"`
	Name        string      `json:"name" db:"name"`
	Description string      `json:"description" db:"description"`
	Date        time.Time   `json:"date" db:"date"`
	Movies      []uuid.UUID `json:"movies" db:"-"`
}

// Watchlist is a set of movies kept in insertion order.
type Watchlist struct {
	ID     uuid.UUID   `json:"id" db:"id"`
	UserID uuid.UUID   `json:"userId" db:"user_id"`
	Movies []uuid.UUID `json:"movies" db:"-"`
}

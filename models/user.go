package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Username     string      `json:"username" db:"username"`
	PasswordHash string      `json:"-" db:"password_hash"`
	Bio          string      `json:"bio" db:"bio"`
	Date         time.Time   `json:"date" db:"date"`
	PhotoID      uuid.UUID   `json:"-" db:"photo_id"`
	WatchlistID  uuid.UUID   `json:"-" db:"watchlist_id"`
	Lists        []uuid.UUID `json:"lists" db:"-"`
}

// ProfilePhoto holds an uploaded avatar. Data is nil until the user uploads one.
type ProfilePhoto struct {
	ID          uuid.UUID `db:"id"`
	Data        []byte    `db:"data"`
	ContentType string    `db:"content_type"`
}

func (p *ProfilePhoto) Empty() bool {
	return p == nil || len(p.Data) == 0
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type Movie struct {
	ID          uuid.UUID `json:"id" db:"id"`
	IDTMDB      int       `json:"idTMDB" db:"id_tmdb"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Photo       string    `json:"photo" db:"photo"`
	Date        time.Time `json:"date" db:"date"`
	ReleaseDate string    `json:"release_date" db:"release_date"`
	RateCount   int       `json:"rateCount" db:"rate_count"`
	RateValue   int       `json:"rateValue" db:"rate_value"`
	RateAverage int       `json:"rateAverage" db:"rate_average"`
}

// MovieSummary is the light projection of a movie.
type MovieSummary struct {
	ID          uuid.UUID `json:"id"`
	IDTMDB      int       `json:"idTMDB"`
	Name        string    `json:"name"`
	Photo       string    `json:"photo"`
	ReleaseDate string    `json:"release_date"`
	RateAverage int       `json:"rateAverage"`
}

func (m Movie) Summary() MovieSummary {
	return MovieSummary{
		ID:          m.ID,
		IDTMDB:      m.IDTMDB,
		Name:        m.Name,
		Photo:       m.Photo,
		ReleaseDate: m.ReleaseDate,
		RateAverage: m.RateAverage,
	}
}

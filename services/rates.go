package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/justbri/marquee/metrics"
	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

const (
	MinRateValue = 1
	MaxRateValue = 10
)

// RateEntry is a rate together with a summary of the rated movie. Movie is
// nil when the movie no longer exists.
type RateEntry struct {
	ID     uuid.UUID            `json:"id"`
	UserID uuid.UUID            `json:"userId"`
	Value  int                  `json:"value"`
	Date   time.Time            `json:"date"`
	Movie  *models.MovieSummary `json:"movie"`

	light bool
}

// RateMovie creates or replaces the actor's rating of a movie. created is
// true when no rating existed before.
func (s *Service) RateMovie(ctx context.Context, actor uuid.UUID, idTMDB, value int) (rate *models.Rate, created bool, err error) {
	if actor == uuid.Nil {
		return nil, false, &AuthorizationError{Resource: "rate"}
	}
	if value < MinRateValue || value > MaxRateValue {
		return nil, false, invalid("value", value, fmt.Sprintf("Rate must be between %d and %d", MinRateValue, MaxRateValue))
	}

	movieID, err := s.resolveMovie(ctx, idTMDB)
	if err != nil {
		return nil, false, err
	}

	err = s.store.Update(ctx, func(repo Repo) error {
		if _, err := s.requireUser(ctx, repo, actor); err != nil {
			return err
		}

		// Movie before rate, the lock order every rating writer follows.
		if _, err := repo.MovieForUpdate(ctx, movieID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("movie", idTMDB)
			}
			return fmt.Errorf("failed to lock movie %s: %w", movieID, err)
		}

		existing, err := repo.RateForUpdate(ctx, actor, movieID)
		switch {
		case errors.Is(err, ErrNotFound):
			rate = &models.Rate{ID: newID(), UserID: actor, MovieID: movieID, Value: value, Date: s.clock()}
			if err := repo.InsertRate(ctx, rate); err != nil {
				return fmt.Errorf("failed to create rate: %w", err)
			}
			created = true
			_, err = s.ratings.Apply(ctx, repo, movieID, Delta{Value: value, Count: 1}, "create")
			return err
		case err != nil:
			return fmt.Errorf("failed to load rate: %w", err)
		}

		old := existing.Value
		existing.Value = value
		existing.Date = s.clock()
		if err := repo.UpdateRate(ctx, existing); err != nil {
			return fmt.Errorf("failed to update rate: %w", err)
		}
		rate = existing
		_, err = s.ratings.Apply(ctx, repo, movieID, Delta{Value: value - old}, "update")
		return err
	})
	if err != nil {
		return nil, false, err
	}

	slog.Info("Movie rated", "user_id", actor, "id_tmdb", idTMDB, "value", value, "created", created)
	return rate, created, nil
}

// DeleteRate retracts one of the actor's ratings.
func (s *Service) DeleteRate(ctx context.Context, userID, rateID, actor uuid.UUID) error {
	if err := authorize(actor, userID, "rate"); err != nil {
		return err
	}

	var report *CascadeReport
	err := s.store.Update(ctx, func(repo Repo) error {
		rate, err := repo.Rate(ctx, rateID)
		if errors.Is(err, ErrNotFound) || (err == nil && rate.UserID != userID) {
			return notFound("rate", rateID)
		}
		if err != nil {
			return fmt.Errorf("failed to load rate: %w", err)
		}
		report, err = s.cascade.Execute(ctx, repo, RateDeletionPlan(rate.ID))
		return err
	})
	metrics.RecordCascade("rate", err)
	if err != nil {
		return err
	}
	report.record()
	return nil
}

// UserRates pages through a user's ratings, newest first.
func (s *Service) UserRates(ctx context.Context, userID, actor uuid.UUID, q PageQuery) (*Envelope[RateEntry], error) {
	var env *Envelope[RateEntry]
	err := s.store.View(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, userID)
		if err != nil {
			return err
		}
		total, err := repo.Count(ctx, CollectionRates, ByUser(userID))
		if err != nil {
			return fmt.Errorf("failed to count rates: %w", err)
		}

		env, err = paginate(q, s.pages, total, func(w pagination.Window) ([]RateEntry, error) {
			rates, err := repo.Rates(ctx, ByUser(userID), w)
			if err != nil {
				return nil, err
			}
			movieIDs := make([]uuid.UUID, len(rates))
			for i, r := range rates {
				movieIDs[i] = r.MovieID
			}
			movies, err := summaries(ctx, repo, movieIDs)
			if err != nil {
				return nil, err
			}
			entries := make([]RateEntry, len(rates))
			for i, r := range rates {
				entries[i] = RateEntry{ID: r.ID, UserID: r.UserID, Value: r.Value, Date: r.Date, Movie: movies[r.MovieID], light: q.Light}
			}
			return entries, nil
		})
		if err != nil {
			return err
		}
		env.UserDetails, err = s.userDetails(ctx, repo, user, actor)
		return err
	})
	return env, err
}

// summaries loads the summaries of the given movies keyed by id.
func summaries(ctx context.Context, repo Repo, ids []uuid.UUID) (map[uuid.UUID]*models.MovieSummary, error) {
	movies, err := repo.MoviesByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load movies: %w", err)
	}
	out := make(map[uuid.UUID]*models.MovieSummary, len(movies))
	for _, m := range movies {
		sum := m.Summary()
		out[m.ID] = &sum
	}
	return out, nil
}

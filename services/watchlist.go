package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
)

// Watchlist pages through the actor's own watchlist.
func (s *Service) Watchlist(ctx context.Context, userID, actor uuid.UUID, q PageQuery) (*Envelope[MovieView], error) {
	var env *Envelope[MovieView]
	err := s.store.View(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, userID)
		if err != nil {
			return err
		}
		if err := authorize(actor, userID, "watchlist"); err != nil {
			return err
		}

		watchlist, err := repo.Watchlist(ctx, user.WatchlistID)
		if err != nil {
			return fmt.Errorf("failed to load watchlist: %w", err)
		}
		env, err = s.moviePage(ctx, repo, watchlist.Movies, q)
		if err != nil {
			return err
		}
		env.UserDetails, err = s.userDetails(ctx, repo, user, actor)
		return err
	})
	return env, err
}

// SetWatchlist replaces the movies of the actor's watchlist. Repeated movies
// keep their first position.
func (s *Service) SetWatchlist(ctx context.Context, userID, actor uuid.UUID, idsTMDB []int) (*models.Watchlist, error) {
	if err := authorize(actor, userID, "watchlist"); err != nil {
		return nil, err
	}

	sequence, err := s.movieSequence(ctx, idsTMDB)
	if err != nil {
		return nil, err
	}
	movies := make([]uuid.UUID, 0, len(sequence))
	for _, id := range sequence {
		if !slices.Contains(movies, id) {
			movies = append(movies, id)
		}
	}

	var watchlist *models.Watchlist
	err = s.store.Update(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, userID)
		if err != nil {
			return err
		}
		if err := repo.SetWatchlistMovies(ctx, user.WatchlistID, movies); err != nil {
			return fmt.Errorf("failed to update watchlist: %w", err)
		}
		watchlist = &models.Watchlist{ID: user.WatchlistID, UserID: user.ID, Movies: movies}
		return nil
	})
	return watchlist, err
}

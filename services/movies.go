package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

// RatedPageSize is the page size of the rated movies listing.
const RatedPageSize = 20

// Catalog lists every movie, best rated first.
func (s *Service) Catalog(ctx context.Context, q PageQuery) (*Envelope[MovieView], error) {
	var env *Envelope[MovieView]
	err := s.store.View(ctx, func(repo Repo) error {
		total, err := repo.Count(ctx, CollectionMovies, Filter{})
		if err != nil {
			return fmt.Errorf("failed to count movies: %w", err)
		}
		env, err = paginate(q, s.pages, total, func(w pagination.Window) ([]MovieView, error) {
			movies, err := repo.Movies(ctx, Filter{}, w)
			return movieViews(movies, q.Light), err
		})
		return err
	})
	return env, err
}

// RatedMovies lists movies with at least one rating using 1-indexed pages.
func (s *Service) RatedMovies(ctx context.Context, page int) (*NumberedPage[models.Movie], error) {
	var out *NumberedPage[models.Movie]
	err := s.store.View(ctx, func(repo Repo) error {
		total, err := repo.Count(ctx, CollectionMovies, RatedMovies())
		if err != nil {
			return fmt.Errorf("failed to count rated movies: %w", err)
		}
		n := pagination.NewNumbered(total, page, RatedPageSize)
		movies, err := repo.Movies(ctx, RatedMovies(), n.Window())
		if err != nil {
			return fmt.Errorf("failed to load rated movies: %w", err)
		}
		out = &NumberedPage[models.Movie]{
			Page:         n.Page,
			TotalPages:   n.TotalPages,
			TotalResults: n.TotalResults,
			Results:      nonNil(movies),
		}
		return nil
	})
	return out, err
}

// Movie returns the locally mirrored movie.
func (s *Service) Movie(ctx context.Context, idTMDB int) (*models.Movie, error) {
	var movie *models.Movie
	err := s.store.View(ctx, func(repo Repo) error {
		var err error
		movie, err = s.requireMovie(ctx, repo, idTMDB)
		return err
	})
	return movie, err
}

// TMDBMovie returns the raw TMDB document of a movie.
func (s *Service) TMDBMovie(ctx context.Context, idTMDB int) (map[string]any, error) {
	if s.metadata == nil {
		return nil, fmt.Errorf("%w: tmdb is not configured", ErrUnavailable)
	}
	return s.metadata.MovieDetails(ctx, idTMDB)
}

// MovieDetail is the TMDB document with the local movie attached under movieDB.
func (s *Service) MovieDetail(ctx context.Context, idTMDB int) (map[string]any, error) {
	doc, err := s.TMDBMovie(ctx, idTMDB)
	if err != nil {
		return nil, err
	}

	local, err := s.Movie(ctx, idTMDB)
	switch {
	case err == nil:
		doc["movieDB"] = local
	case errors.Is(err, ErrNotFound):
		doc["movieDB"] = nil
	default:
		return nil, err
	}
	return doc, nil
}

func (s *Service) requireMovie(ctx context.Context, repo Repo, idTMDB int) (*models.Movie, error) {
	movie, err := repo.MovieByTMDB(ctx, idTMDB)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("movie", idTMDB)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load movie %d: %w", idTMDB, err)
	}
	return movie, nil
}

// resolveMovies maps TMDB ids to local movie ids, mirroring unknown movies
// from TMDB first. Network calls happen outside any unit of work.
func (s *Service) resolveMovies(ctx context.Context, idsTMDB []int) (map[int]uuid.UUID, error) {
	resolved := make(map[int]uuid.UUID, len(idsTMDB))
	var missing []int

	err := s.store.View(ctx, func(repo Repo) error {
		for _, id := range idsTMDB {
			if _, ok := resolved[id]; ok {
				continue
			}
			movie, err := repo.MovieByTMDB(ctx, id)
			switch {
			case err == nil:
				resolved[id] = movie.ID
			case errors.Is(err, ErrNotFound):
				if !slices.Contains(missing, id) {
					missing = append(missing, id)
				}
			default:
				return fmt.Errorf("failed to look up movie %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil || len(missing) == 0 {
		return resolved, err
	}

	if s.metadata == nil {
		return nil, notFound("movie", missing[0])
	}

	fetched := make([]*models.Movie, 0, len(missing))
	for _, id := range missing {
		m, err := s.metadata.Movie(ctx, id)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, m.toModel(s.clock()))
	}

	err = s.store.Update(ctx, func(repo Repo) error {
		for _, m := range fetched {
			existing, err := repo.MovieByTMDB(ctx, m.IDTMDB)
			if err == nil {
				resolved[m.IDTMDB] = existing.ID
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := repo.InsertMovie(ctx, m); err != nil {
				return fmt.Errorf("failed to mirror movie %d: %w", m.IDTMDB, err)
			}
			resolved[m.IDTMDB] = m.ID
			slog.Info("Movie mirrored from TMDB", "id_tmdb", m.IDTMDB, "name", m.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *Service) resolveMovie(ctx context.Context, idTMDB int) (uuid.UUID, error) {
	ids, err := s.resolveMovies(ctx, []int{idTMDB})
	if err != nil {
		return uuid.Nil, err
	}
	return ids[idTMDB], nil
}

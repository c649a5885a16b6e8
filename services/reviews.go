package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/justbri/marquee/format"
	"github.com/justbri/marquee/metrics"
	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

type ReviewEntry struct {
	models.Review
	Movie *models.MovieSummary `json:"movie"`

	light bool
}

// CreateReview stores the actor's review of a movie.
func (s *Service) CreateReview(ctx context.Context, actor uuid.UUID, idTMDB int, title, body string) (*models.Review, error) {
	if actor == uuid.Nil {
		return nil, &AuthorizationError{Resource: "review"}
	}

	review := &models.Review{
		ID:     newID(),
		UserID: actor,
		Title:  plainText(title),
		Body:   stripTags(body),
	}
	errs := &ValidationError{}
	if review.Title == "" {
		errs.Add("body", "title", title, "Title must not be empty")
	}
	if review.Body == "" {
		errs.Add("body", "body", body, "Body must not be empty")
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	movieID, err := s.resolveMovie(ctx, idTMDB)
	if err != nil {
		return nil, err
	}
	review.MovieID = movieID
	review.Date = s.clock()

	err = s.store.Update(ctx, func(repo Repo) error {
		if _, err := s.requireUser(ctx, repo, actor); err != nil {
			return err
		}
		return repo.InsertReview(ctx, review)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Review created", "user_id", actor, "id_tmdb", idTMDB, "review_id", review.ID,
		"title", format.Preview(review.Title, 40))
	return review, nil
}

// DeleteReview removes one of the actor's reviews.
func (s *Service) DeleteReview(ctx context.Context, userID, reviewID, actor uuid.UUID) error {
	if err := authorize(actor, userID, "review"); err != nil {
		return err
	}

	var report *CascadeReport
	err := s.store.Update(ctx, func(repo Repo) error {
		review, err := repo.Review(ctx, reviewID)
		if errors.Is(err, ErrNotFound) || (err == nil && review.UserID != userID) {
			return notFound("review", reviewID)
		}
		if err != nil {
			return fmt.Errorf("failed to load review: %w", err)
		}
		report, err = s.cascade.Execute(ctx, repo, ReviewDeletionPlan(review.ID))
		return err
	})
	metrics.RecordCascade("review", err)
	if err != nil {
		return err
	}
	report.record()
	return nil
}

// UserReviews pages through a user's reviews, newest first.
func (s *Service) UserReviews(ctx context.Context, userID, actor uuid.UUID, q PageQuery) (*Envelope[ReviewEntry], error) {
	var env *Envelope[ReviewEntry]
	err := s.store.View(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, userID)
		if err != nil {
			return err
		}
		env, err = s.reviewPage(ctx, repo, ByUser(userID), q)
		if err != nil {
			return err
		}
		env.UserDetails, err = s.userDetails(ctx, repo, user, actor)
		return err
	})
	return env, err
}

// MovieReviews pages through the reviews of a movie, newest first.
func (s *Service) MovieReviews(ctx context.Context, idTMDB int, q PageQuery) (*Envelope[ReviewEntry], error) {
	var env *Envelope[ReviewEntry]
	err := s.store.View(ctx, func(repo Repo) error {
		movie, err := s.requireMovie(ctx, repo, idTMDB)
		if err != nil {
			return err
		}
		env, err = s.reviewPage(ctx, repo, ByMovie(movie.ID), q)
		if err != nil {
			return err
		}
		env.MovieDetails = movie
		return nil
	})
	return env, err
}

func (s *Service) reviewPage(ctx context.Context, repo Repo, f Filter, q PageQuery) (*Envelope[ReviewEntry], error) {
	total, err := repo.Count(ctx, CollectionReviews, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}
	return paginate(q, s.pages, total, func(w pagination.Window) ([]ReviewEntry, error) {
		reviews, err := repo.Reviews(ctx, f, w)
		if err != nil {
			return nil, err
		}
		movieIDs := make([]uuid.UUID, len(reviews))
		for i, r := range reviews {
			movieIDs[i] = r.MovieID
		}
		movies, err := summaries(ctx, repo, movieIDs)
		if err != nil {
			return nil, err
		}
		entries := make([]ReviewEntry, len(reviews))
		for i, r := range reviews {
			entries[i] = ReviewEntry{Review: r, Movie: movies[r.MovieID], light: q.Light}
		}
		return entries, nil
	})
}

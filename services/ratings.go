package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/justbri/marquee/metrics"
	"github.com/justbri/marquee/models"
)

// MissingMoviePolicy decides what happens when a rating references a movie
// that is gone by the time its aggregate is written.
type MissingMoviePolicy int

const (
	// AbortOnMissingMovie fails the enclosing unit of work with a ConsistencyError.
	AbortOnMissingMovie MissingMoviePolicy = iota
	// SkipMissingMovie logs and skips the aggregate write; the rate change still applies.
	SkipMissingMovie
)

func ParseMissingMoviePolicy(s string) (MissingMoviePolicy, error) {
	switch s {
	case "", "abort":
		return AbortOnMissingMovie, nil
	case "skip":
		return SkipMissingMovie, nil
	default:
		return 0, fmt.Errorf("unknown missing movie policy %q", s)
	}
}

func (p MissingMoviePolicy) String() string {
	if p == SkipMissingMovie {
		return "skip"
	}
	return "abort"
}

// Delta is a change to a movie's rating sum and rating count.
type Delta struct {
	Value int
	Count int
}

func (d Delta) Negate() Delta { return Delta{Value: -d.Value, Count: -d.Count} }

// MovieDelta is the folded delta of every rating of one movie.
type MovieDelta struct {
	MovieID uuid.UUID
	Delta
}

// Fold sums rates per distinct movie. The result is ordered by movie id so
// that every writer locks movie rows in the same order.
func Fold(rates []models.Rate) []MovieDelta {
	index := make(map[uuid.UUID]int)
	out := make([]MovieDelta, 0)
	for _, r := range rates {
		i, ok := index[r.MovieID]
		if !ok {
			i = len(out)
			index[r.MovieID] = i
			out = append(out, MovieDelta{MovieID: r.MovieID})
		}
		out[i].Value += r.Value
		out[i].Count++
	}
	slices.SortFunc(out, func(a, b MovieDelta) int {
		return bytes.Compare(a.MovieID[:], b.MovieID[:])
	})
	return out
}

// Average is the rounded mean of count ratings summing to value. Halves round
// away from zero, so 7/2 gives 4. Zero ratings give the zero baseline.
func Average(value, count int) int {
	if count <= 0 {
		return 0
	}
	return int(math.Round(float64(value) / float64(count)))
}

// RatingAggregator is the only writer of a movie's rateCount, rateValue and
// rateAverage fields.
type RatingAggregator struct {
	policy MissingMoviePolicy
}

func NewRatingAggregator(policy MissingMoviePolicy) *RatingAggregator {
	return &RatingAggregator{policy: policy}
}

func (a *RatingAggregator) Policy() MissingMoviePolicy { return a.policy }

// Apply adds d to the movie's aggregate inside repo's unit of work. It returns
// a nil movie when the movie is missing and the policy is SkipMissingMovie.
func (a *RatingAggregator) Apply(ctx context.Context, repo Repo, movieID uuid.UUID, d Delta, source string) (*models.Movie, error) {
	movie, err := repo.MovieForUpdate(ctx, movieID)
	if errors.Is(err, ErrNotFound) {
		if a.policy == SkipMissingMovie {
			slog.Warn("Skipping rating aggregate for missing movie",
				"movie_id", movieID,
				"value_delta", d.Value,
				"count_delta", d.Count,
				"source", source)
			metrics.RatingAggregationsSkipped.Inc()
			return nil, nil
		}
		return nil, &ConsistencyError{MovieID: movieID, Reason: "rated movie no longer exists"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock movie %s: %w", movieID, err)
	}

	count := movie.RateCount + d.Count
	value := movie.RateValue + d.Value
	if count < 0 || (count == 0 && value != 0) {
		return nil, &ConsistencyError{
			MovieID: movieID,
			Reason:  fmt.Sprintf("aggregate would become count=%d value=%d", count, value),
		}
	}

	movie.RateCount = count
	movie.RateValue = value
	movie.RateAverage = Average(value, count)
	if err := repo.UpdateMovieRating(ctx, movie); err != nil {
		return nil, fmt.Errorf("failed to update rating of movie %s: %w", movieID, err)
	}

	metrics.RatingAggregations.WithLabelValues(source).Inc()
	slog.Debug("Movie aggregate updated",
		"movie_id", movieID,
		"rate_count", movie.RateCount,
		"rate_value", movie.RateValue,
		"rate_average", movie.RateAverage)
	return movie, nil
}

// Reconcile recomputes a movie's aggregate from its live rates.
func (a *RatingAggregator) Reconcile(ctx context.Context, repo Repo, movieID uuid.UUID) (*models.Movie, error) {
	movie, err := repo.MovieForUpdate(ctx, movieID)
	if err != nil {
		return nil, err
	}
	rates, err := repo.RatesForUpdate(ctx, ByMovie(movieID))
	if err != nil {
		return nil, fmt.Errorf("failed to load rates of movie %s: %w", movieID, err)
	}

	movie.RateCount, movie.RateValue = 0, 0
	for _, r := range rates {
		movie.RateCount++
		movie.RateValue += r.Value
	}
	movie.RateAverage = Average(movie.RateValue, movie.RateCount)
	if err := repo.UpdateMovieRating(ctx, movie); err != nil {
		return nil, fmt.Errorf("failed to update rating of movie %s: %w", movieID, err)
	}
	return movie, nil
}

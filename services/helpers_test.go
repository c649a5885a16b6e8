package services_test

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
	"github.com/justbri/marquee/services"
	"github.com/justbri/marquee/testutil/memstore"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// steppingClock advances one second per call so creation order is date order.
func steppingClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return baseTime.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newService(t *testing.T, options ...services.Option) (*services.Service, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	defaults := []services.Option{
		services.WithBcryptCost(bcrypt.MinCost),
		services.WithClock(steppingClock()),
	}
	svc, err := services.New(store, append(defaults, options...)...)
	require.NoError(t, err)
	return svc, store
}

// seedMovies inserts n movies with TMDB ids 1000..1000+n-1, newest last.
func seedMovies(t *testing.T, store services.Store, n int) []models.Movie {
	t.Helper()

	movies := make([]models.Movie, n)
	err := store.Update(context.Background(), func(repo services.Repo) error {
		for i := range movies {
			movies[i] = models.Movie{
				ID:          uuid.Must(uuid.NewV7()),
				IDTMDB:      1000 + i,
				Name:        "Movie " + strconv.Itoa(i),
				Photo:       "https://image.tmdb.org/t/p/w185/" + strconv.Itoa(i) + ".jpg",
				Date:        baseTime.Add(-time.Duration(n-i) * time.Hour),
				ReleaseDate: "2001-06-22",
			}
			if err := repo.InsertMovie(context.Background(), &movies[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return movies
}

func registerUser(t *testing.T, svc *services.Service, username string) *models.User {
	t.Helper()

	user, err := svc.RegisterUser(context.Background(), services.RegisterInput{
		Username: username,
		Password: "password123",
		Bio:      "hello",
	})
	require.NoError(t, err)
	return user
}

func loadMovie(t *testing.T, store services.Store, id uuid.UUID) *models.Movie {
	t.Helper()

	var movie *models.Movie
	err := store.View(context.Background(), func(repo services.Repo) error {
		var err error
		movie, err = repo.Movie(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return movie
}

func count(t *testing.T, store services.Store, c services.Collection, f services.Filter) int {
	t.Helper()

	var n int
	err := store.View(context.Background(), func(repo services.Repo) error {
		var err error
		n, err = repo.Count(context.Background(), c, f)
		return err
	})
	require.NoError(t, err)
	return n
}

// requireAggregateConsistent checks a movie's cached triple against its live rates.
func requireAggregateConsistent(t *testing.T, store services.Store, movieID uuid.UUID) {
	t.Helper()

	err := store.View(context.Background(), func(repo services.Repo) error {
		movie, err := repo.Movie(context.Background(), movieID)
		if err != nil {
			return err
		}
		rates, err := repo.Rates(context.Background(), services.ByMovie(movieID), pagination.All())
		if err != nil {
			return err
		}
		sum := 0
		for _, r := range rates {
			sum += r.Value
		}
		require.Equal(t, len(rates), movie.RateCount, "rateCount of %s", movieID)
		require.Equal(t, sum, movie.RateValue, "rateValue of %s", movieID)
		require.Equal(t, services.Average(sum, len(rates)), movie.RateAverage, "rateAverage of %s", movieID)
		return nil
	})
	require.NoError(t, err)
}

type fakeTMDB struct {
	movies map[int]services.TMDBMovie
	calls  int
}

func (f *fakeTMDB) Movie(_ context.Context, idTMDB int) (*services.TMDBMovie, error) {
	f.calls++
	m, ok := f.movies[idTMDB]
	if !ok {
		return nil, &services.NotFoundError{Resource: "tmdb movie", ID: strconv.Itoa(idTMDB)}
	}
	return &m, nil
}

func (f *fakeTMDB) MovieDetails(ctx context.Context, idTMDB int) (map[string]any, error) {
	m, err := f.Movie(ctx, idTMDB)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": m.ID, "title": m.Title, "overview": m.Overview}, nil
}

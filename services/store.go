package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

// Collection names a persisted record type. Values double as table names.
type Collection string

const (
	CollectionUsers         Collection = "users"
	CollectionMovies        Collection = "movies"
	CollectionRates         Collection = "rates"
	CollectionReviews       Collection = "reviews"
	CollectionLists         Collection = "lists"
	CollectionWatchlists    Collection = "watchlists"
	CollectionProfilePhotos Collection = "profile_photos"
)

type Op int

const (
	OpEq Op = iota
	OpGt
)

// Filter selects records by comparing one column. The zero Filter matches everything.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func (f Filter) IsZero() bool { return f.Field == "" }

func ByID(id uuid.UUID) Filter { return Filter{Field: "id", Value: id} }
func ByUser(id uuid.UUID) Filter { return Filter{Field: "user_id", Value: id} }
func ByMovie(id uuid.UUID) Filter { return Filter{Field: "movie_id", Value: id} }
func RatedMovies() Filter { return Filter{Field: "rate_count", Op: OpGt, Value: 0} }

// Store runs units of work. Update is all or nothing: when fn returns an
// error nothing it wrote is kept. View sees a single consistent snapshot.
type Store interface {
	Update(ctx context.Context, fn func(Repo) error) error
	View(ctx context.Context, fn func(Repo) error) error
}

// Repo is the transactional view handed to a unit of work. Single record
// lookups return an error matching ErrNotFound when the record is absent.
// Collection reads return records in the fixed order of their collection.
type Repo interface {
	Count(ctx context.Context, c Collection, f Filter) (int, error)
	DeleteWhere(ctx context.Context, c Collection, f Filter) (int64, error)

	InsertUser(ctx context.Context, u *models.User) error
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error

	InsertProfilePhoto(ctx context.Context, p *models.ProfilePhoto) error
	ProfilePhoto(ctx context.Context, id uuid.UUID) (*models.ProfilePhoto, error)
	UpdateProfilePhoto(ctx context.Context, p *models.ProfilePhoto) error

	InsertWatchlist(ctx context.Context, w *models.Watchlist) error
	Watchlist(ctx context.Context, id uuid.UUID) (*models.Watchlist, error)
	SetWatchlistMovies(ctx context.Context, id uuid.UUID, movies []uuid.UUID) error

	InsertMovie(ctx context.Context, m *models.Movie) error
	Movie(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	// MovieForUpdate locks the movie row until the unit of work ends.
	MovieForUpdate(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	MovieByTMDB(ctx context.Context, idTMDB int) (*models.Movie, error)
	Movies(ctx context.Context, f Filter, w pagination.Window) ([]models.Movie, error)
	// MoviesByID returns movies in the order of ids, repeating duplicates and skipping unknown ids.
	MoviesByID(ctx context.Context, ids []uuid.UUID) ([]models.Movie, error)
	UpdateMovieRating(ctx context.Context, m *models.Movie) error

	InsertRate(ctx context.Context, r *models.Rate) error
	Rate(ctx context.Context, id uuid.UUID) (*models.Rate, error)
	// RateForUpdate locks the rate userID gave movieID. The caller must
	// already hold the movie's lock.
	RateForUpdate(ctx context.Context, userID, movieID uuid.UUID) (*models.Rate, error)
	UpdateRate(ctx context.Context, r *models.Rate) error
	Rates(ctx context.Context, f Filter, w pagination.Window) ([]models.Rate, error)
	// RatesForUpdate locks and returns every rate matching f. The caller must
	// already hold the locks of the rates' movies.
	RatesForUpdate(ctx context.Context, f Filter) ([]models.Rate, error)

	InsertReview(ctx context.Context, r *models.Review) error
	Review(ctx context.Context, id uuid.UUID) (*models.Review, error)
	Reviews(ctx context.Context, f Filter, w pagination.Window) ([]models.Review, error)

	InsertList(ctx context.Context, l *models.List) error
	List(ctx context.Context, id uuid.UUID) (*models.List, error)
	UpdateList(ctx context.Context, l *models.List) error
	Lists(ctx context.Context, f Filter, w pagination.Window) ([]models.List, error)
}

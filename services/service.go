package services

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/justbri/marquee/pagination"
)

// SessionInvalidator drops every session bound to a user.
type SessionInvalidator interface {
	InvalidateUser(userID uuid.UUID) (int, error)
}

// Service implements the account, catalog and collection use cases on top of a Store.
type Service struct {
	store         Store
	ratings       *RatingAggregator
	cascade       *CascadeCoordinator
	sessions      SessionInvalidator
	metadata      MetadataClient
	pages         pagination.Config
	bcryptCost    int
	maxPhotoBytes int64
	now           func() time.Time
}

type Option func(*Service) error

func New(store Store, options ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}

	s := &Service{
		store:         store,
		ratings:       NewRatingAggregator(AbortOnMissingMovie),
		pages:         pagination.DefaultConfig(),
		bcryptCost:    10,
		maxPhotoBytes: 1 << 20,
		now:           time.Now,
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	s.cascade = NewCascadeCoordinator(s.ratings)
	return s, nil
}

func WithPagination(cfg pagination.Config) Option {
	return func(s *Service) error {
		if cfg.DefaultPageSize <= 0 || cfg.MaxPageSize < cfg.DefaultPageSize {
			return errors.New("invalid pagination config")
		}
		s.pages = cfg
		return nil
	}
}

func WithMissingMoviePolicy(p MissingMoviePolicy) Option {
	return func(s *Service) error {
		s.ratings = NewRatingAggregator(p)
		return nil
	}
}

func WithSessionInvalidator(si SessionInvalidator) Option {
	return func(s *Service) error {
		s.sessions = si
		return nil
	}
}

func WithMetadataClient(c MetadataClient) Option {
	return func(s *Service) error {
		s.metadata = c
		return nil
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) error {
		s.bcryptCost = cost
		return nil
	}
}

func WithMaxPhotoBytes(n int64) Option {
	return func(s *Service) error {
		s.maxPhotoBytes = n
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		s.now = now
		return nil
	}
}

func (s *Service) Pagination() pagination.Config { return s.pages }

func (s *Service) Ratings() *RatingAggregator { return s.ratings }

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/justbri/marquee/format"
	"github.com/justbri/marquee/metrics"
	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

var photoContentTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// UserDetails is the public rendering of a user. Watchlist is null unless the
// requester is the user.
type UserDetails struct {
	ID        uuid.UUID   `json:"id"`
	Username  string      `json:"username"`
	Bio       string      `json:"bio"`
	Date      time.Time   `json:"date"`
	Photo     *string     `json:"photo"`
	Watchlist []uuid.UUID `json:"watchlist"`
	Lists     []uuid.UUID `json:"lists"`
}

type RegisterInput struct {
	Username string
	Password string
	Bio      string
}

type PhotoUpload struct {
	Data        []byte
	ContentType string
}

type UpdateUserInput struct {
	Bio      *string
	Password *string
	Photo    *PhotoUpload
}

// RegisterUser creates a user with its empty watchlist and empty profile photo.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	photo := &models.ProfilePhoto{ID: newID()}
	user := &models.User{
		ID:           newID(),
		Username:     in.Username,
		PasswordHash: hash,
		Bio:          stripTags(in.Bio),
		Date:         now,
		PhotoID:      photo.ID,
		Lists:        []uuid.UUID{},
	}
	watchlist := &models.Watchlist{ID: newID(), UserID: user.ID}
	user.WatchlistID = watchlist.ID

	err = s.store.Update(ctx, func(repo Repo) error {
		_, err := repo.UserByUsername(ctx, in.Username)
		if err == nil {
			return invalid("username", in.Username,
				fmt.Sprintf("User validation failed, the username `%s` is taken", in.Username))
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := repo.InsertProfilePhoto(ctx, photo); err != nil {
			return fmt.Errorf("failed to create profile photo: %w", err)
		}
		if err := repo.InsertUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := repo.InsertWatchlist(ctx, watchlist); err != nil {
			return fmt.Errorf("failed to create watchlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("User registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// User returns the details of a user as seen by actor.
func (s *Service) User(ctx context.Context, id, actor uuid.UUID) (*UserDetails, error) {
	var details *UserDetails
	err := s.store.View(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, id)
		if err != nil {
			return err
		}
		details, err = s.userDetails(ctx, repo, user, actor)
		return err
	})
	return details, err
}

// UpdateUser changes the bio, password or profile photo of the actor.
func (s *Service) UpdateUser(ctx context.Context, id, actor uuid.UUID, in UpdateUserInput) (*UserDetails, error) {
	if err := authorize(actor, id, "user"); err != nil {
		return nil, err
	}
	if in.Photo != nil {
		if err := s.validatePhoto(in.Photo); err != nil {
			return nil, err
		}
	}

	var hash string
	if in.Password != nil {
		var err error
		if hash, err = s.hashPassword(*in.Password); err != nil {
			return nil, err
		}
	}

	var details *UserDetails
	err := s.store.Update(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, id)
		if err != nil {
			return err
		}

		if in.Bio != nil {
			user.Bio = stripTags(*in.Bio)
		}
		if hash != "" {
			user.PasswordHash = hash
		}
		if err := repo.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}

		if in.Photo != nil {
			photo := &models.ProfilePhoto{ID: user.PhotoID, Data: in.Photo.Data, ContentType: in.Photo.ContentType}
			if err := repo.UpdateProfilePhoto(ctx, photo); err != nil {
				return fmt.Errorf("failed to update profile photo: %w", err)
			}
		}

		details, err = s.userDetails(ctx, repo, user, actor)
		return err
	})
	return details, err
}

// DeleteUser removes the actor's account and everything it owns, then drops
// its sessions.
func (s *Service) DeleteUser(ctx context.Context, id, actor uuid.UUID) (*CascadeReport, error) {
	if err := authorize(actor, id, "user"); err != nil {
		return nil, err
	}

	var report *CascadeReport
	err := s.store.Update(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, id)
		if err != nil {
			return err
		}
		report, err = s.cascade.Execute(ctx, repo, UserDeletionPlan(user))
		return err
	})
	metrics.RecordCascade("user", err)
	if err != nil {
		return nil, err
	}
	report.record()

	if s.sessions != nil {
		n, err := s.sessions.InvalidateUser(id)
		if err != nil {
			slog.Error("Failed to invalidate sessions of deleted user", "user_id", id, "error", err)
		}
		metrics.SessionsInvalidated.Add(float64(n))
	}

	slog.Info("User deleted", "user_id", id, "deleted", report.Deleted, "movies_reaggregated", len(report.Reaggregated))
	return report, nil
}

func (s *Service) validatePhoto(p *PhotoUpload) error {
	errs := &ValidationError{}
	if int64(len(p.Data)) > s.maxPhotoBytes {
		errs.Add("body", "photo", nil, fmt.Sprintf("File too large (%s > %s)",
			format.Bytes(int64(len(p.Data))), format.Bytes(s.maxPhotoBytes)))
	}
	if !slices.Contains(photoContentTypes, p.ContentType) {
		errs.Add("body", "photo", p.ContentType, "Only png, jpeg, gif and webp images are allowed")
	}
	return errs.OrNil()
}

func (s *Service) requireUser(ctx context.Context, repo Repo, id uuid.UUID) (*models.User, error) {
	user, err := repo.User(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}

func (s *Service) userDetails(ctx context.Context, repo Repo, user *models.User, actor uuid.UUID) (*UserDetails, error) {
	details := &UserDetails{
		ID:       user.ID,
		Username: user.Username,
		Bio:      user.Bio,
		Date:     user.Date,
		Lists:    []uuid.UUID{},
	}

	photo, err := repo.ProfilePhoto(ctx, user.PhotoID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile photo: %w", err)
	}
	if !photo.Empty() {
		uri := "data:" + photo.ContentType + ";base64," + base64.StdEncoding.EncodeToString(photo.Data)
		details.Photo = &uri
	}

	lists, err := repo.Lists(ctx, ByUser(user.ID), pagination.All())
	if err != nil {
		return nil, fmt.Errorf("failed to load lists: %w", err)
	}
	for _, l := range lists {
		details.Lists = append(details.Lists, l.ID)
	}

	if actor == user.ID {
		watchlist, err := repo.Watchlist(ctx, user.WatchlistID)
		if err != nil {
			return nil, fmt.Errorf("failed to load watchlist: %w", err)
		}
		details.Watchlist = nonNil(watchlist.Movies)
	}
	return details, nil
}

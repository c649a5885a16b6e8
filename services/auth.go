package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/justbri/marquee/models"
)

// AuthenticateUser checks a username and password pair.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	var user *models.User
	err := s.store.View(ctx, func(repo Repo) error {
		var err error
		user, err = repo.UserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUserByID returns the user or an error matching ErrNotFound.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user *models.User
	err := s.store.View(ctx, func(repo Repo) error {
		var err error
		user, err = repo.User(ctx, id)
		return err
	})
	return user, err
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

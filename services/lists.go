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

type ListInput struct {
	Name        string
	Description string
	Movies      []int
}

// ListPatch changes only the fields that are set.
type ListPatch struct {
	Name        *string
	Description *string
	Movies      *[]int
}

// ListPage is the contents of one list together with its metadata.
type ListPage struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Date         time.Time   `json:"date"`
	ListTotalIDs []uuid.UUID `json:"listTotalIds"`
	*Envelope[MovieView]
}

func (s *Service) CreateList(ctx context.Context, userID, actor uuid.UUID, in ListInput) (*models.List, error) {
	if err := authorize(actor, userID, "list"); err != nil {
		return nil, err
	}
	name := plainText(in.Name)
	if name == "" {
		return nil, invalid("name", in.Name, "Name must not be empty")
	}

	movies, err := s.movieSequence(ctx, in.Movies)
	if err != nil {
		return nil, err
	}

	list := &models.List{
		ID:          newID(),
		UserID:      userID,
		Name:        name,
		Description: stripTags(in.Description),
		Date:        s.clock(),
		Movies:      movies,
	}
	err = s.store.Update(ctx, func(repo Repo) error {
		if _, err := s.requireUser(ctx, repo, userID); err != nil {
			return err
		}
		return repo.InsertList(ctx, list)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("List created", "user_id", userID, "list_id", list.ID, "movies", len(list.Movies))
	return list, nil
}

// UpdateList renames a list or rewrites its movie sequence.
func (s *Service) UpdateList(ctx context.Context, userID, listID, actor uuid.UUID, patch ListPatch) (*models.List, error) {
	if err := authorize(actor, userID, "list"); err != nil {
		return nil, err
	}
	if patch.Name != nil && plainText(*patch.Name) == "" {
		return nil, invalid("name", *patch.Name, "Name must not be empty")
	}

	var movies []uuid.UUID
	if patch.Movies != nil {
		var err error
		if movies, err = s.movieSequence(ctx, *patch.Movies); err != nil {
			return nil, err
		}
	}

	var list *models.List
	err := s.store.Update(ctx, func(repo Repo) error {
		var err error
		list, err = s.requireList(ctx, repo, userID, listID)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			list.Name = plainText(*patch.Name)
		}
		if patch.Description != nil {
			list.Description = stripTags(*patch.Description)
		}
		if patch.Movies != nil {
			list.Movies = movies
		}
		return repo.UpdateList(ctx, list)
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) DeleteList(ctx context.Context, userID, listID, actor uuid.UUID) error {
	if err := authorize(actor, userID, "list"); err != nil {
		return err
	}

	var report *CascadeReport
	err := s.store.Update(ctx, func(repo Repo) error {
		list, err := s.requireList(ctx, repo, userID, listID)
		if err != nil {
			return err
		}
		report, err = s.cascade.Execute(ctx, repo, ListDeletionPlan(list.ID))
		return err
	})
	metrics.RecordCascade("list", err)
	if err != nil {
		return err
	}
	report.record()
	return nil
}

// UserLists pages through a user's lists, newest first.
func (s *Service) UserLists(ctx context.Context, userID, actor uuid.UUID, q PageQuery) (*Envelope[ListView], error) {
	var env *Envelope[ListView]
	err := s.store.View(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, userID)
		if err != nil {
			return err
		}
		total, err := repo.Count(ctx, CollectionLists, ByUser(userID))
		if err != nil {
			return fmt.Errorf("failed to count lists: %w", err)
		}
		env, err = paginate(q, s.pages, total, func(w pagination.Window) ([]ListView, error) {
			lists, err := repo.Lists(ctx, ByUser(userID), w)
			if err != nil {
				return nil, err
			}
			views := make([]ListView, len(lists))
			for i, l := range lists {
				views[i] = ListView{List: l, light: q.Light}
			}
			return views, nil
		})
		if err != nil {
			return err
		}
		env.UserDetails, err = s.userDetails(ctx, repo, user, actor)
		return err
	})
	return env, err
}

// ListContents pages through the movies of a list in their stored order.
func (s *Service) ListContents(ctx context.Context, userID, listID, actor uuid.UUID, q PageQuery) (*ListPage, error) {
	var page *ListPage
	err := s.store.View(ctx, func(repo Repo) error {
		user, err := s.requireUser(ctx, repo, userID)
		if err != nil {
			return err
		}
		list, err := s.requireList(ctx, repo, userID, listID)
		if err != nil {
			return err
		}

		env, err := s.moviePage(ctx, repo, list.Movies, q)
		if err != nil {
			return err
		}
		env.UserDetails, err = s.userDetails(ctx, repo, user, actor)
		if err != nil {
			return err
		}

		page = &ListPage{
			ID:           list.ID,
			Name:         list.Name,
			Description:  list.Description,
			Date:         list.Date,
			ListTotalIDs: nonNil(list.Movies),
			Envelope:     env,
		}
		return nil
	})
	return page, err
}

// moviePage pages through an in-memory sequence of movie ids.
func (s *Service) moviePage(ctx context.Context, repo Repo, ids []uuid.UUID, q PageQuery) (*Envelope[MovieView], error) {
	return paginate(q, s.pages, len(ids), func(w pagination.Window) ([]MovieView, error) {
		movies, err := repo.MoviesByID(ctx, pagination.Slice(ids, w))
		if err != nil {
			return nil, fmt.Errorf("failed to load movies: %w", err)
		}
		return movieViews(movies, q.Light), nil
	})
}

func (s *Service) requireList(ctx context.Context, repo Repo, userID, listID uuid.UUID) (*models.List, error) {
	list, err := repo.List(ctx, listID)
	if errors.Is(err, ErrNotFound) || (err == nil && list.UserID != userID) {
		return nil, notFound("list", listID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load list %s: %w", listID, err)
	}
	return list, nil
}

// movieSequence resolves TMDB ids to local ids, keeping order and duplicates.
func (s *Service) movieSequence(ctx context.Context, idsTMDB []int) ([]uuid.UUID, error) {
	resolved, err := s.resolveMovies(ctx, idsTMDB)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, len(idsTMDB))
	for i, id := range idsTMDB {
		out[i] = resolved[id]
	}
	return out, nil
}

package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/justbri/marquee/metrics"
	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/pagination"
)

type StepKind int

const (
	StepDelete StepKind = iota
	// StepRetractRatings folds the matching rates into their movies' aggregates, then deletes them.
	StepRetractRatings
)

type Step struct {
	Kind       StepKind
	Collection Collection
	Filter     Filter
}

func (s Step) String() string {
	if s.Kind == StepRetractRatings {
		return fmt.Sprintf("retract rates where %s", s.Filter.Field)
	}
	return fmt.Sprintf("delete %s where %s", s.Collection, s.Filter.Field)
}

func Delete(c Collection, f Filter) Step {
	return Step{Kind: StepDelete, Collection: c, Filter: f}
}

func RetractRatings(f Filter) Step {
	return Step{Kind: StepRetractRatings, Collection: CollectionRates, Filter: f}
}

// Plan is an ordered list of removals executed in one unit of work.
type Plan struct {
	Name  string
	Steps []Step
}

// UserDeletionPlan removes a user together with everything that only exists
// because of it. Lists are removed before the user, so no back reference needs pruning.
func UserDeletionPlan(u *models.User) Plan {
	return Plan{
		Name: "user",
		Steps: []Step{
			Delete(CollectionReviews, ByUser(u.ID)),
			Delete(CollectionLists, ByUser(u.ID)),
			RetractRatings(ByUser(u.ID)),
			Delete(CollectionWatchlists, ByID(u.WatchlistID)),
			Delete(CollectionProfilePhotos, ByID(u.PhotoID)),
			Delete(CollectionUsers, ByID(u.ID)),
		},
	}
}

func ListDeletionPlan(id uuid.UUID) Plan {
	return Plan{Name: "list", Steps: []Step{Delete(CollectionLists, ByID(id))}}
}

func RateDeletionPlan(id uuid.UUID) Plan {
	return Plan{Name: "rate", Steps: []Step{RetractRatings(ByID(id))}}
}

func ReviewDeletionPlan(id uuid.UUID) Plan {
	return Plan{Name: "review", Steps: []Step{Delete(CollectionReviews, ByID(id))}}
}

// CascadeReport summarises what a plan removed.
type CascadeReport struct {
	Plan         string
	Deleted      map[Collection]int64
	Reaggregated []uuid.UUID
	Skipped      []uuid.UUID
}

// record publishes the report once the unit of work has committed.
func (r *CascadeReport) record() {
	for c, n := range r.Deleted {
		metrics.CascadeRecordsDeleted.WithLabelValues(string(c)).Add(float64(n))
	}
}

type CascadeCoordinator struct {
	ratings *RatingAggregator
}

func NewCascadeCoordinator(ratings *RatingAggregator) *CascadeCoordinator {
	return &CascadeCoordinator{ratings: ratings}
}

// Execute runs every step of plan against repo. The caller owns the unit of
// work: returning an error must roll back everything the earlier steps did.
func (c *CascadeCoordinator) Execute(ctx context.Context, repo Repo, plan Plan) (*CascadeReport, error) {
	report := &CascadeReport{Plan: plan.Name, Deleted: make(map[Collection]int64)}

	for i, step := range plan.Steps {
		var err error
		switch step.Kind {
		case StepRetractRatings:
			err = c.retract(ctx, repo, step.Filter, report)
		case StepDelete:
			var n int64
			n, err = repo.DeleteWhere(ctx, step.Collection, step.Filter)
			report.Deleted[step.Collection] += n
		default:
			err = fmt.Errorf("unknown step kind %d", step.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("cascade %s step %d (%s): %w", plan.Name, i+1, step, err)
		}
	}

	slog.Debug("Cascade plan executed",
		"plan", plan.Name,
		"deleted", report.Deleted,
		"reaggregated", len(report.Reaggregated),
		"skipped", len(report.Skipped))
	return report, nil
}

func (c *CascadeCoordinator) retract(ctx context.Context, repo Repo, f Filter, report *CascadeReport) error {
	rates, err := lockRates(ctx, repo, f)
	if err != nil {
		return err
	}

	for _, md := range Fold(rates) {
		movie, err := c.ratings.Apply(ctx, repo, md.MovieID, md.Negate(), "cascade")
		if err != nil {
			return err
		}
		if movie == nil {
			report.Skipped = append(report.Skipped, md.MovieID)
			continue
		}
		report.Reaggregated = append(report.Reaggregated, md.MovieID)
	}

	// Only the folded rates go. A rate written since the last locking read
	// stays behind and makes the enclosing unit of work fail on its
	// foreign keys instead of drifting from the aggregate.
	for _, r := range rates {
		n, err := repo.DeleteWhere(ctx, CollectionRates, ByID(r.ID))
		if err != nil {
			return fmt.Errorf("failed to delete rate %s: %w", r.ID, err)
		}
		report.Deleted[CollectionRates] += n
	}
	return nil
}

// lockRates locks the movies of the rates matching f in ascending id order,
// then the rates themselves. A rate that shows up for a movie not locked yet
// sends that movie through another round.
func lockRates(ctx context.Context, repo Repo, f Filter) ([]models.Rate, error) {
	rates, err := repo.Rates(ctx, f, pagination.All())
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}

	locked := make(map[uuid.UUID]bool)
	for {
		var pending []uuid.UUID
		for _, r := range rates {
			if !locked[r.MovieID] && !slices.Contains(pending, r.MovieID) {
				pending = append(pending, r.MovieID)
			}
		}
		if len(pending) == 0 {
			return rates, nil
		}
		slices.SortFunc(pending, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

		for _, id := range pending {
			if _, err := repo.MovieForUpdate(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("failed to lock movie %s: %w", id, err)
			}
			locked[id] = true
		}
		if rates, err = repo.RatesForUpdate(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to lock rates: %w", err)
		}
	}
}

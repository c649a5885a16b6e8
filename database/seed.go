package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/justbri/marquee/models"
	"github.com/justbri/marquee/services"
)

type demoMovie struct {
	idTMDB      int
	name        string
	description string
	releaseDate string
}

var demoCatalog = []demoMovie{
	{11, "Star Wars", "A farm boy joins a rebellion against a galactic empire.", "1977-05-25"},
	{105, "Back to the Future", "A teenager is sent thirty years into the past in a time machine.", "1985-07-03"},
	{769, "GoodFellas", "The rise and fall of a mob associate in New York.", "1990-09-12"},
	{424, "Schindler's List", "An industrialist saves his workers during the Holocaust.", "1993-12-15"},
	{13, "Forrest Gump", "A kind man drifts through decades of American history.", "1994-06-23"},
	{680, "Pulp Fiction", "Interlocking stories of crime in Los Angeles.", "1994-09-10"},
	{278, "The Shawshank Redemption", "Two prisoners form a lasting friendship.", "1994-09-23"},
	{238, "The Godfather", "The aging head of a crime family hands over his empire.", "1972-03-14"},
	{603, "The Matrix", "A hacker learns the world he knows is a simulation.", "1999-03-30"},
	{550, "Fight Club", "An insomniac and a soap maker start an underground club.", "1999-10-15"},
	{497, "The Green Mile", "A death row guard meets an inmate with a strange gift.", "1999-12-10"},
	{129, "Spirited Away", "A girl is trapped in a world of spirits.", "2001-07-20"},
	{122, "The Return of the King", "The final battle for Middle-earth.", "2003-12-01"},
	{155, "The Dark Knight", "Batman faces a criminal mastermind called the Joker.", "2008-07-16"},
	{27205, "Inception", "A thief steals secrets from inside dreams.", "2010-07-15"},
	{157336, "Interstellar", "Explorers travel through a wormhole to save humanity.", "2014-11-05"},
}

// SeedDemoCatalog inserts the demo movies that are not present yet and
// returns how many were added.
func SeedDemoCatalog(ctx context.Context, store services.Store, now time.Time) (int, error) {
	added := 0
	err := store.Update(ctx, func(repo services.Repo) error {
		for i, d := range demoCatalog {
			_, err := repo.MovieByTMDB(ctx, d.idTMDB)
			if err == nil {
				continue
			}
			if !errors.Is(err, services.ErrNotFound) {
				return fmt.Errorf("failed to check demo movie %d: %w", d.idTMDB, err)
			}

			movie := &models.Movie{
				ID:          uuid.Must(uuid.NewV7()),
				IDTMDB:      d.idTMDB,
				Name:        d.name,
				Description: d.description,
				Date:        now.Add(time.Duration(i) * time.Second),
				ReleaseDate: d.releaseDate,
			}
			if err := repo.InsertMovie(ctx, movie); err != nil {
				return fmt.Errorf("failed to seed movie %s: %w", d.name, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// SeedAdminUser registers the configured admin account. Without a password
// nothing is seeded.
func SeedAdminUser(ctx context.Context, svc *services.Service, username, password string) error {
	if password == "" {
		return nil
	}

	_, err := svc.RegisterUser(ctx, services.RegisterInput{Username: username, Password: password})
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		// Already registered
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	slog.Info("Admin user seeded", "username", username)
	return nil
}

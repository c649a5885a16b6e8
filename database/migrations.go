package database

import (
	"fmt"
)

func RunMigrations() error {
	tablesSQL := `
	CREATE TABLE IF NOT EXISTS profile_photos (
		id UUID PRIMARY KEY,
		data BYTEA,
		content_type VARCHAR(100) NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		photo_id UUID NOT NULL,
		watchlist_id UUID NOT NULL
	);

	CREATE TABLE IF NOT EXISTS watchlists (
		id UUID PRIMARY KEY,
		user_id UUID UNIQUE NOT NULL REFERENCES users(id) DEFERRABLE INITIALLY DEFERRED
	);

	CREATE TABLE IF NOT EXISTS movies (
		id UUID PRIMARY KEY,
		id_tmdb INTEGER UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		photo TEXT NOT NULL DEFAULT '',
		date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		release_date VARCHAR(32) NOT NULL DEFAULT '',
		rate_count INTEGER NOT NULL DEFAULT 0 CHECK (rate_count >= 0),
		rate_value INTEGER NOT NULL DEFAULT 0,
		rate_average INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rates (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		movie_id UUID NOT NULL REFERENCES movies(id),
		value INTEGER NOT NULL CHECK (value BETWEEN 1 AND 10),
		date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, movie_id)
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		movie_id UUID NOT NULL REFERENCES movies(id),
		title VARCHAR(255) NOT NULL,
		body TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lists (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS list_movies (
		list_id UUID NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		movie_id UUID NOT NULL REFERENCES movies(id),
		PRIMARY KEY (list_id, position)
	);

	CREATE TABLE IF NOT EXISTS watchlist_movies (
		watchlist_id UUID NOT NULL REFERENCES watchlists(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		movie_id UUID NOT NULL REFERENCES movies(id),
		PRIMARY KEY (watchlist_id, movie_id)
	);
	`

	_, err := DB.Exec(tablesSQL)
	if err != nil {
		return fmt.Errorf("failed to run tables migration: %w", err)
	}

	// users and its watchlist and photo reference each other, so the
	// constraints are added once both tables exist and checked at commit.
	userRefsSQL := `
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.table_constraints WHERE table_name='users' AND constraint_name='users_watchlist_fk') THEN
			ALTER TABLE users ADD CONSTRAINT users_watchlist_fk
				FOREIGN KEY (watchlist_id) REFERENCES watchlists(id) DEFERRABLE INITIALLY DEFERRED;
		END IF;
		IF NOT EXISTS (SELECT 1 FROM information_schema.table_constraints WHERE table_name='users' AND constraint_name='users_photo_fk') THEN
			ALTER TABLE users ADD CONSTRAINT users_photo_fk
				FOREIGN KEY (photo_id) REFERENCES profile_photos(id) DEFERRABLE INITIALLY DEFERRED;
		END IF;
	END $$;
	`
	_, err = DB.Exec(userRefsSQL)
	if err != nil {
		return fmt.Errorf("failed to run user references migration: %w", err)
	}

	indexSQL := `
	CREATE INDEX IF NOT EXISTS idx_movies_catalog ON movies (rate_average DESC, date DESC, id_tmdb DESC);
	CREATE INDEX IF NOT EXISTS idx_movies_rated ON movies (rate_count) WHERE rate_count > 0;
	CREATE INDEX IF NOT EXISTS idx_rates_user ON rates (user_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_rates_movie ON rates (movie_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_user ON reviews (user_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_reviews_movie ON reviews (movie_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_lists_user ON lists (user_id, date DESC);
	`
	_, err = DB.Exec(indexSQL)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

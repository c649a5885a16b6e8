package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justbri/marquee/config"
	"github.com/justbri/marquee/database"
	"github.com/justbri/marquee/handlers"
	"github.com/justbri/marquee/httpserver"
	"github.com/justbri/marquee/logger"
	"github.com/justbri/marquee/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Environment, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	store := database.NewStore(database.DB)

	sessions, err := newSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	policy, err := services.ParseMissingMoviePolicy(cfg.MissingMoviePolicy)
	if err != nil {
		return err
	}
	options := []services.Option{
		services.WithPagination(cfg.Pagination()),
		services.WithMissingMoviePolicy(policy),
		services.WithSessionInvalidator(sessions),
		services.WithBcryptCost(cfg.BcryptCost),
		services.WithMaxPhotoBytes(cfg.MaxPhotoBytes),
	}
	if cfg.TMDBAPIKey != "" {
		options = append(options, services.WithMetadataClient(
			services.NewTMDBClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey, cfg.TMDBRateLimit, nil)))
	} else {
		slog.Warn("TMDB_API_KEY not set, movies can only come from the local catalog")
	}

	svc, err := services.New(store, options...)
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}

	if err := seed(ctx, cfg, store, svc); err != nil {
		return err
	}

	router := handlers.NewRouter(handlers.New(svc, sessions, cfg.MaxPhotoBytes), handlers.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		LoginRateLimit: cfg.LoginRateLimit,
	})

	// Start server
	server := httpserver.New(httpserver.DefaultConfig(":"+cfg.ServerPort), router)
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Server stopped")
	return nil
}

func newSessionStore(cfg *config.Config) (*services.SessionStore, error) {
	var backend services.SessionBackend
	switch cfg.SessionStore {
	case config.SessionStoreBadger:
		b, err := services.OpenBadgerSessionBackend(cfg.SessionPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		backend = b
	default:
		backend = services.NewMemorySessionBackend()
	}

	slog.Info("Session store ready", "backend", cfg.SessionStore, "max_age", cfg.SessionMaxAge)
	return services.NewSessionStore(backend,
		services.DefaultSessionOptions(cfg.SessionMaxAge, cfg.IsProduction()),
		[]byte(cfg.SessionSecret)), nil
}

func seed(ctx context.Context, cfg *config.Config, store services.Store, svc *services.Service) error {
	if cfg.SeedDemo {
		n, err := database.SeedDemoCatalog(ctx, store, time.Now())
		if err != nil {
			return fmt.Errorf("failed to seed demo catalog: %w", err)
		}
		slog.Info("Demo catalog seeded", "inserted", n)
	}

	if cfg.AdminUsername != "" {
		if err := database.SeedAdminUser(ctx, svc, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
	}
	return nil
}

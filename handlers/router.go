package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justbri/marquee/middleware"
)

const APIPrefix = "/api/v1.0"

type RouterOptions struct {
	CORSOrigins []string
	// LoginRateLimit is the number of login attempts allowed per IP and
	// minute. Zero disables throttling.
	LoginRateLimit int
}

// NewRouter mounts the API, the health check and the metrics endpoint.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(middleware.Authenticate(h.sessions, h.svc))

		r.Route("/auth", func(r chi.Router) {
			r.With(loginThrottle(opts.LoginRateLimit)...).Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/status", h.Status)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.RegisterUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetUser)
				r.With(middleware.RequireAuth).Put("/", h.UpdateUser)
				r.With(middleware.RequireAuth).Delete("/", h.DeleteUser)

				r.Get("/reviews", h.UserReviews)
				r.With(middleware.RequireAuth).Delete("/reviews/{reviewId}", h.DeleteReview)

				r.Get("/rates", h.UserRates)
				r.With(middleware.RequireAuth).Delete("/rates/{rateId}", h.DeleteRate)

				r.Get("/lists", h.UserLists)
				r.With(middleware.RequireAuth).Post("/lists", h.CreateList)
				r.Get("/lists/{listId}", h.GetList)
				r.With(middleware.RequireAuth).Put("/lists/{listId}", h.UpdateList)
				r.With(middleware.RequireAuth).Delete("/lists/{listId}", h.DeleteList)

				r.Get("/watchlist", h.GetWatchlist)
				r.With(middleware.RequireAuth).Put("/watchlist", h.SetWatchlist)
			})
		})

		r.Route("/movies", func(r chi.Router) {
			r.Get("/", h.Catalog)
			r.Get("/rated", h.RatedMovies)

			r.Route("/{idTMDB}", func(r chi.Router) {
				r.Get("/", h.GetMovie)
				r.Get("/tmdb", h.TMDBMovie)
				r.Get("/detail", h.MovieDetail)
				r.With(middleware.RequireAuth).Put("/rate", h.RateMovie)
				r.Get("/reviews", h.MovieReviews)
				r.With(middleware.RequireAuth).Post("/reviews", h.CreateReview)
			})
		})
	})

	return r
}

func loginThrottle(perMinute int) []func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return nil
	}
	return []func(http.Handler) http.Handler{
		httprate.Limit(perMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeMsg(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
			}),
		),
	}
}

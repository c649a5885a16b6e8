package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/justbri/marquee/httpclient"
	"github.com/justbri/marquee/metrics"
	"github.com/justbri/marquee/models"
)

const tmdbImageBase = "https://image.tmdb.org/t/p/w185"

// MetadataClient looks movies up in TMDB. Unknown ids yield an error matching ErrNotFound.
type MetadataClient interface {
	Movie(ctx context.Context, idTMDB int) (*TMDBMovie, error)
	// MovieDetails returns the raw TMDB document with similar titles, images and videos appended.
	MovieDetails(ctx context.Context, idTMDB int) (map[string]any, error)
}

type TMDBMovie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
	ReleaseDate string `json:"release_date"`
}

func (m *TMDBMovie) toModel(now time.Time) *models.Movie {
	photo := ""
	if m.PosterPath != "" {
		photo = tmdbImageBase + m.PosterPath
	}
	return &models.Movie{
		ID:          newID(),
		IDTMDB:      m.ID,
		Name:        m.Title,
		Description: m.Overview,
		Photo:       photo,
		Date:        now,
		ReleaseDate: m.ReleaseDate,
	}
}

// TMDBClient calls the TMDB v3 API behind a rate limiter and a circuit breaker.
type TMDBClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewTMDBClient(baseURL, apiKey string, requestsPerSecond float64, client *http.Client) *TMDBClient {
	if client == nil {
		client = httpclient.DefaultClient
	}
	burst := max(int(requestsPerSecond), 1)

	settings := gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.TMDBCircuitState.Set(float64(to))
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	}

	return &TMDBClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (c *TMDBClient) Movie(ctx context.Context, idTMDB int) (*TMDBMovie, error) {
	body, err := c.get(ctx, "/movie/"+strconv.Itoa(idTMDB), nil)
	if err != nil {
		return nil, err
	}
	var m TMDBMovie
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode tmdb movie %d: %w", idTMDB, err)
	}
	return &m, nil
}

func (c *TMDBClient) MovieDetails(ctx context.Context, idTMDB int) (map[string]any, error) {
	body, err := c.get(ctx, "/movie/"+strconv.Itoa(idTMDB), map[string]string{
		"append_to_response": "similar,images,videos",
	})
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tmdb movie %d: %w", idTMDB, err)
	}
	return doc, nil
}

func (c *TMDBClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tmdb rate limiter: %w", err)
	}

	query := map[string]string{"api_key": c.apiKey}
	for k, v := range params {
		query[k] = v
	}
	apiURL := httpclient.BuildQueryURL(c.baseURL+path, query)

	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := httpclient.MakeRequest(ctx, apiURL, c.client)
		if err != nil {
			var statusErr *httpclient.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				return nil, notFound("tmdb movie", strings.TrimPrefix(path, "/movie/"))
			}
			return nil, err
		}
		return httpclient.ReadResponseBody(resp)
	})

	switch {
	case err == nil:
		metrics.TMDBRequests.WithLabelValues("ok").Inc()
		return body, nil
	case errors.Is(err, ErrNotFound):
		metrics.TMDBRequests.WithLabelValues("not_found").Inc()
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.TMDBRequests.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: tmdb circuit open", ErrUnavailable)
	default:
		metrics.TMDBRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: tmdb request failed: %w", ErrUnavailable, err)
	}
}

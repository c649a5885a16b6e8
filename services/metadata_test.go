package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justbri/marquee/services"
)

func Test_TMDBClient_Movie(t *testing.T) {
	// setup
	var apiKey, appended string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.URL.Query().Get("api_key")
		appended = r.URL.Query().Get("append_to_response")
		if r.URL.Path != "/movie/603" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":603,"title":"The Matrix","overview":"Red pill.","poster_path":"/m.jpg","release_date":"1999-03-31","runtime":136}`))
	}))
	defer srv.Close()
	client := services.NewTMDBClient(srv.URL+"/", "secret", 100, srv.Client())

	// act
	movie, err := client.Movie(context.Background(), 603)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "The Matrix", movie.Title)
	assert.Equal(t, "/m.jpg", movie.PosterPath)

	// act
	doc, err := client.MovieDetails(context.Background(), 603)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "similar,images,videos", appended)
	assert.Equal(t, float64(136), doc["runtime"])
}

func Test_TMDBClient_When_Movie_Unknown(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	client := services.NewTMDBClient(srv.URL, "k", 100, srv.Client())

	for range 8 {
		_, err := client.Movie(context.Background(), 1)
		assert.ErrorIs(t, err, services.ErrNotFound)
	}
	assert.Equal(t, int32(8), hits.Load(), "not found never opens the breaker")
}

func Test_TMDBClient_When_Upstream_Failing_Opens_Breaker(t *testing.T) {
	// setup
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	client := services.NewTMDBClient(srv.URL, "k", 100, srv.Client())

	// act
	for range 5 {
		_, err := client.Movie(context.Background(), 1)
		require.ErrorIs(t, err, services.ErrUnavailable)
	}
	_, err := client.Movie(context.Background(), 1)

	// assert
	require.ErrorIs(t, err, services.ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(5), hits.Load())
}

func Test_MovieDetail_Attaches_Local_Movie(t *testing.T) {
	// setup
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1000,"title":"Remote","poster_path":"/r.jpg"}`))
	}))
	defer srv.Close()
	svc, store := newService(t, services.WithMetadataClient(services.NewTMDBClient(srv.URL, "k", 100, srv.Client())))
	movies := seedMovies(t, store, 1)

	// act
	doc, err := svc.MovieDetail(ctx, movies[0].IDTMDB)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Remote", doc["title"])
	require.NotNil(t, doc["movieDB"])
}

func Test_TMDBMovie_When_Not_Configured(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.TMDBMovie(context.Background(), 1)

	assert.ErrorIs(t, err, services.ErrUnavailable)
}

package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryURL(t *testing.T) {
	got := BuildQueryURL("https://api.example.com/3/movie/550?language=en-US", map[string]string{"api_key": "k"})

	assert.Equal(t, "https://api.example.com/3/movie/550?api_key=k&language=en-US", got)
}

func TestMakeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":550,"title":"Fight Club"}`))
	}))
	defer srv.Close()

	t.Run("reads a 200 response", func(t *testing.T) {
		resp, err := MakeRequest(t.Context(), srv.URL+"/ok", srv.Client())
		require.NoError(t, err)

		body, err := ReadResponseBody(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":550,"title":"Fight Club"}`, string(body))
	})

	t.Run("reports the status of a failed response", func(t *testing.T) {
		_, err := MakeRequest(t.Context(), srv.URL+"/missing", srv.Client())

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	})
}

package httpserver_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justbri/marquee/httpserver"
)

func Test_Serve_When_Context_Cancelled(t *testing.T) {
	// setup
	cfg := httpserver.DefaultConfig("127.0.0.1:0")
	cfg.ShutdownTimeout = time.Second
	srv := httpserver.New(cfg, http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())

	// act
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	// assert
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func Test_Serve_When_Address_Invalid(t *testing.T) {
	// setup
	srv := httpserver.New(httpserver.DefaultConfig("256.0.0.1:-1"), http.NotFoundHandler())

	// act
	err := srv.Serve(context.Background())

	// assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server failed")
}

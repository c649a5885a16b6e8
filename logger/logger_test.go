package logger_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justbri/marquee/logger"
)

func Test_New_Writes_Structured_Records(t *testing.T) {
	// setup
	var buf bytes.Buffer
	log := logger.New(&buf, zerolog.InfoLevel)

	// act
	log.With("component", "ratings").WithGroup("movie").Info("aggregate updated",
		"rate_count", 2, "err", errors.New("boom"))

	// assert
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "info", record["level"])
	assert.Equal(t, "aggregate updated", record["message"])
	assert.Equal(t, "ratings", record["movie.component"])
	assert.InDelta(t, 2, record["movie.rate_count"], 0)
	assert.Equal(t, "boom", record["movie.err"])
}

func Test_New_When_Below_Level(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, zerolog.WarnLevel)

	log.Info("ignored")
	log.Debug("ignored too")

	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(t.Context(), -4))
}

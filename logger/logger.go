package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Init installs the process wide slog logger. Records are written by zerolog:
// human readable console output in development, JSON otherwise.
func Init(env string, debug bool) {
	level := zerolog.InfoLevel
	if debug || env == "development" {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stdout
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}

	slog.SetDefault(New(out, level))
}

// New builds an slog logger writing through a zerolog logger on out.
func New(out io.Writer, level zerolog.Level) *slog.Logger {
	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return slog.New(NewHandler(zl))
}

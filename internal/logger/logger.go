// Package logger builds the zerolog.Logger every component receives
// through its constructor — there is no global logger (grounded on
// a zerolog console-writer setup).
package logger

import (
	"os"
	"strings"

	"github.com/nocturnal-archive/gateway/internal/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger for the given config.
func New(cfg *config.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl := levelFromConfig(cfg)
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}

func levelFromConfig(cfg *config.Config) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		return lvl
	}
	if cfg.IsDevelopment() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

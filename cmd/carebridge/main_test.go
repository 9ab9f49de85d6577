package main

import (
	"testing"

	"carebridge/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		pretty   bool
		expected zerolog.Level
	}{
		{"default level", "", false, zerolog.InfoLevel},
		{"debug", "debug", false, zerolog.DebugLevel},
		{"console writer", "warn", true, zerolog.WarnLevel},
		{"unknown level", "chatty", false, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config.Config
			cfg.Logging.Level = tt.level
			cfg.Logging.Pretty = tt.pretty
			logger := newLogger(&cfg)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAREBRIDGE_TEST_REDIS", "localhost:6380")

	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "db", "carebridge.db")+`
redis:
  address: ${CAREBRIDGE_TEST_REDIS}
booking:
  timezone: Europe/Berlin
  max_advance_days: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6380", cfg.Redis.Address)
	assert.Equal(t, 30, cfg.MaxAdvanceDays())
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.DirExists(t, filepath.Join(dir, "db"))

	t.Run("Defaults", func(t *testing.T) {
		assert.Equal(t, 30*time.Minute, cfg.SlotDuration())
		assert.Equal(t, 2*time.Hour, cfg.CancellationCutoff())
		assert.Equal(t, 30*time.Minute, cfg.NoShowGrace())
		assert.Equal(t, 5*time.Minute, cfg.SlotCacheTTL())
		assert.Equal(t, 3, cfg.ReservationRetries())
		assert.Equal(t, ":8080", cfg.HTTP.Address)
		assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	})
}

func TestLoadProvidersConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := writeFile(t, dir, "providers.yaml", `
providers:
  - id: 1
    name: Dr. Okafor
    accepts_new_patients: false
    availability:
      - {day_of_week: 0, start_time: "09:00", end_time: "12:00"}
      - {day_of_week: 2, start_time: "13:00", end_time: "17:00", enabled: false}
`)
		cfg, err := LoadProvidersConfig(path)
		require.NoError(t, err)
		require.Len(t, cfg.Providers, 1)

		isAvailable, acceptsNew := cfg.Providers[0].Accepting()
		assert.True(t, isAvailable)
		assert.False(t, acceptsNew)
		assert.True(t, cfg.Providers[0].Availability[0].IsEnabled())
		assert.False(t, cfg.Providers[0].Availability[1].IsEnabled())
	})

	t.Run("Invalid", func(t *testing.T) {
		cases := map[string]string{
			"duplicate id": "providers:\n  - {id: 1, name: a}\n  - {id: 1, name: b}\n",
			"bad day":      "providers:\n  - id: 1\n    name: a\n    availability:\n      - {day_of_week: 7, start_time: \"09:00\", end_time: \"10:00\"}\n",
			"inverted":     "providers:\n  - id: 1\n    name: a\n    availability:\n      - {day_of_week: 1, start_time: \"11:00\", end_time: \"10:00\"}\n",
			"missing name": "providers:\n  - {id: 3}\n",
		}
		for name, body := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := LoadProvidersConfig(writeFile(t, dir, "bad.yaml", body))
				assert.Error(t, err)
			})
		}
	})
}

func TestWatchProviders(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "providers.yaml", "providers:\n  - {id: 1, name: a}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates atomic.Int32
	err := WatchProviders(ctx, path, 10*time.Millisecond, func(*ProvidersConfig) {
		updates.Add(1)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), updates.Load())

	later := time.Now().Add(time.Second)
	writeFile(t, dir, "providers.yaml", "providers:\n  - {id: 1, name: b}\n")
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, 10*time.Millisecond)
}

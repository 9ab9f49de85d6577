package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path               string `yaml:"path"`
		BusyTimeoutMillis  int    `yaml:"busy_timeout_ms"`
		MaxOpenConnections int    `yaml:"max_open_connections"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		SlotTTLSeconds int `yaml:"slot_ttl_seconds"`
	} `yaml:"cache"`

	HTTP struct {
		Address string `yaml:"address"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Booking struct {
		Timezone                  string `yaml:"timezone"`
		SlotMinutes               int    `yaml:"slot_minutes"`
		MaxAdvanceDays            int    `yaml:"max_advance_days"`
		CancellationCutoffMinutes int    `yaml:"cancellation_cutoff_minutes"`
		NoShowGraceMinutes        int    `yaml:"no_show_grace_minutes"`
		ReservationRetries        int    `yaml:"reservation_retries"`
	} `yaml:"booking"`

	Events struct {
		PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
		BatchSize           int     `yaml:"batch_size"`
		MaxAttempts         int     `yaml:"max_attempts"`
		RatePerSecond       float64 `yaml:"rate_per_second"`
		Burst               int     `yaml:"burst"`
	} `yaml:"events"`

	Scheduler struct {
		CheckIntervalSeconds int `yaml:"check_interval_seconds"`
		ReminderHour         int `yaml:"reminder_hour"`
	} `yaml:"scheduler"`

	Providers struct {
		Path                 string `yaml:"path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"providers"`
}

// BackupConfig controls periodic database snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${ENV_VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/carebridge.db"
	}
	if cfg.Backup.StoragePath == "" {
		cfg.Backup.StoragePath = filepath.Join(filepath.Dir(cfg.Database.Path), "backups")
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Location() *time.Location {
	if c.Booking.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) SlotDuration() time.Duration {
	if c.Booking.SlotMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SlotMinutes) * time.Minute
}

func (c *Config) MaxAdvanceDays() int {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 90
	}
	return c.Booking.MaxAdvanceDays
}

func (c *Config) CancellationCutoff() time.Duration {
	if c.Booking.CancellationCutoffMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Booking.CancellationCutoffMinutes) * time.Minute
}

func (c *Config) NoShowGrace() time.Duration {
	if c.Booking.NoShowGraceMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.NoShowGraceMinutes) * time.Minute
}

func (c *Config) ReservationRetries() int {
	if c.Booking.ReservationRetries <= 0 {
		return 3
	}
	return c.Booking.ReservationRetries
}

func (c *Config) BusyTimeout() time.Duration {
	if c.Database.BusyTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Database.BusyTimeoutMillis) * time.Millisecond
}

func (c *Config) SlotCacheTTL() time.Duration {
	if c.Cache.SlotTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.SlotTTLSeconds) * time.Second
}

func (c *Config) EventPollInterval() time.Duration {
	if c.Events.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Events.PollIntervalSeconds) * time.Second
}

func (c *Config) SchedulerInterval() time.Duration {
	if c.Scheduler.CheckIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Scheduler.CheckIntervalSeconds) * time.Second
}

func (c *Config) ProvidersWatchInterval() time.Duration {
	if c.Providers.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Providers.WatchIntervalSeconds) * time.Second
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig seeds a provider and its weekly availability.
type ProviderConfig struct {
	ID                 int64                `yaml:"id"`
	Name               string               `yaml:"name"`
	IsAvailable        *bool                `yaml:"is_available,omitempty"`
	AcceptsNewPatients *bool                `yaml:"accepts_new_patients,omitempty"`
	Availability       []AvailabilityConfig `yaml:"availability"`
}

// AvailabilityConfig is one weekly window.
type AvailabilityConfig struct {
	DayOfWeek int    `yaml:"day_of_week"` // 0=Mon ... 6=Sun
	StartTime string `yaml:"start_time"`  // "09:00"
	EndTime   string `yaml:"end_time"`    // "17:00"
	Enabled   *bool  `yaml:"enabled,omitempty"`
}

// ProvidersConfig is the root of providers.yaml.
type ProvidersConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Accepting resolves the provider flags, defaulting to true.
func (p ProviderConfig) Accepting() (isAvailable, acceptsNew bool) {
	return boolOr(p.IsAvailable, true), boolOr(p.AcceptsNewPatients, true)
}

// IsEnabled defaults to true.
func (a AvailabilityConfig) IsEnabled() bool {
	return boolOr(a.Enabled, true)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// LoadProvidersConfig loads and validates providers.yaml.
func LoadProvidersConfig(path string) (*ProvidersConfig, error) {
	if path == "" {
		path = "configs/providers.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse providers config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate providers config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ids, names and window formats. Overlaps between enabled
// windows are left to the store, which rejects them on sync.
func (c *ProvidersConfig) Validate() error {
	ids := make(map[int64]bool)

	for i, p := range c.Providers {
		if p.ID <= 0 {
			return fmt.Errorf("provider[%d]: id must be positive, got %d", i, p.ID)
		}
		if ids[p.ID] {
			return fmt.Errorf("provider[%d]: duplicate id %d", i, p.ID)
		}
		ids[p.ID] = true

		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}

		for j, a := range p.Availability {
			prefix := fmt.Sprintf("provider[%d].availability[%d]", i, j)
			if a.DayOfWeek < 0 || a.DayOfWeek > 6 {
				return fmt.Errorf("%s: invalid day %d, must be 0-6 (0=Mon, 6=Sun)", prefix, a.DayOfWeek)
			}
			start, err := time.Parse("15:04", a.StartTime)
			if err != nil {
				return fmt.Errorf("%s.start_time: invalid format '%s', expected HH:MM", prefix, a.StartTime)
			}
			end, err := time.Parse("15:04", a.EndTime)
			if err != nil {
				return fmt.Errorf("%s.end_time: invalid format '%s', expected HH:MM", prefix, a.EndTime)
			}
			if !end.After(start) {
				return fmt.Errorf("%s: end_time must be after start_time", prefix)
			}
		}
	}

	return nil
}

// Package config loads engine settings from the environment and the
// multilingual phrase configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds all runtime configuration. Defaults match the values the
// shelter runs in production; everything is overridable through SHELTER_*
// environment variables.
type Settings struct {
	Addr      string
	DataDir   string
	StaticDir string

	TotalBeds          int
	HoldDuration       time.Duration
	ExpirationTick     time.Duration
	IdleSessionTimeout time.Duration
	ToolCallDeadline   time.Duration
	AllocationRetryMax int

	KeywordsPath     string
	LogRetentionDays int
}

// maxExpirationTick bounds the sweep interval so an overdue hold is cleared
// within at most a minute of its deadline.
const maxExpirationTick = 60 * time.Second

// Load reads settings from the environment. A .env file in the working
// directory is honored when present.
func Load() (*Settings, error) {
	// Best effort; absence of a .env file is the normal case in production.
	_ = godotenv.Load()

	s := &Settings{
		Addr:               envString("SHELTER_ADDR", ":8080"),
		DataDir:            envString("SHELTER_DATA_DIR", "/data"),
		StaticDir:          envString("SHELTER_STATIC_DIR", "./static"),
		TotalBeds:          108,
		HoldDuration:       envDuration("SHELTER_HOLD_DURATION", 3*time.Hour),
		ExpirationTick:     envDuration("SHELTER_EXPIRATION_TICK", 30*time.Second),
		IdleSessionTimeout: envDuration("SHELTER_IDLE_SESSION_TIMEOUT", 20*time.Second),
		ToolCallDeadline:   envDuration("SHELTER_TOOL_CALL_DEADLINE", 10*time.Second),
		AllocationRetryMax: envInt("SHELTER_ALLOCATION_RETRY_MAX", 8),
		KeywordsPath:       envString("SHELTER_KEYWORDS_PATH", ""),
		LogRetentionDays:   envInt("SHELTER_LOG_RETENTION_DAYS", 30),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces configuration invariants.
func (s *Settings) Validate() error {
	if s.TotalBeds != 108 {
		return fmt.Errorf("total_beds is fixed at 108, got %d", s.TotalBeds)
	}
	if s.HoldDuration <= 0 {
		return fmt.Errorf("hold_duration must be positive, got %s", s.HoldDuration)
	}
	if s.ExpirationTick <= 0 || s.ExpirationTick > maxExpirationTick {
		return fmt.Errorf("expiration_tick must be in (0, %s], got %s", maxExpirationTick, s.ExpirationTick)
	}
	if s.AllocationRetryMax < 1 {
		return fmt.Errorf("allocation_retry_max must be at least 1, got %d", s.AllocationRetryMax)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Package config loads runtime configuration from the environment. All
// settings are env vars (with a .env file honored when present), matching how
// the migration runs in CI and on operator machines; there is no config file
// beyond the optional sheet-parse YAML handled by the excel package.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/complyera/chainmigrate/internal/excel"
	"github.com/complyera/chainmigrate/internal/match"
	"github.com/complyera/chainmigrate/internal/store"
)

// Config carries every tunable the two commands read.
type Config struct {
	SupabaseURL    string
	ServiceRoleKey string
	DatabaseURL    string // direct DSN override; wins over the Supabase pair
	BubbleAPIURL   string
	BubbleAPIToken string
	ExportDir      string
	MatchThreshold float64
	MinQuestionLen int
	BatchSize      int
}

// Load reads configuration from the environment. A .env in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	// godotenv does not overwrite variables already set in the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("EXPORT_DIR", "./bubble-export")
	v.SetDefault("MATCH_THRESHOLD", match.DefaultThreshold)
	v.SetDefault("MIN_QUESTION_LEN", excel.DefaultMinQuestionLen)
	v.SetDefault("BATCH_SIZE", store.DefaultBatchSize)

	cfg := &Config{
		SupabaseURL:    v.GetString("SUPABASE_URL"),
		ServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		BubbleAPIURL:   v.GetString("BUBBLE_API_URL"),
		BubbleAPIToken: v.GetString("BUBBLE_API_TOKEN"),
		ExportDir:      v.GetString("EXPORT_DIR"),
		MatchThreshold: v.GetFloat64("MATCH_THRESHOLD"),
		MinQuestionLen: v.GetInt("MIN_QUESTION_LEN"),
		BatchSize:      v.GetInt("BATCH_SIZE"),
	}

	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 1 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be in (0, 1], got %v", cfg.MatchThreshold)
	}
	return cfg, nil
}

// RequireDatabase validates the settings the Postgres connection needs.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL != "" {
		return nil
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is not set (or set DATABASE_URL directly)")
	}
	if c.ServiceRoleKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is not set")
	}
	return nil
}

// RequireBubble validates the settings the legacy API client needs.
func (c *Config) RequireBubble() error {
	if c.BubbleAPIURL == "" {
		return fmt.Errorf("BUBBLE_API_URL is not set")
	}
	if c.BubbleAPIToken == "" {
		return fmt.Errorf("BUBBLE_API_TOKEN is not set")
	}
	return nil
}

// DSN returns the Postgres connection string: DATABASE_URL when set,
// otherwise derived from the Supabase project URL and service-role key
// (https://<ref>.supabase.co → db.<ref>.supabase.co:5432).
func (c *Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if err := c.RequireDatabase(); err != nil {
		return "", err
	}

	u, err := url.Parse(c.SupabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse SUPABASE_URL: %w", err)
	}
	host := u.Host
	if host == "" {
		host = u.Path // bare hostname without scheme
	}
	ref, ok := strings.CutSuffix(host, ".supabase.co")
	if !ok {
		return "", fmt.Errorf("SUPABASE_URL %q is not a *.supabase.co project URL; set DATABASE_URL instead", c.SupabaseURL)
	}
	return fmt.Sprintf("postgres://postgres:%s@db.%s.supabase.co:5432/postgres",
		url.QueryEscape(c.ServiceRoleKey), ref), nil
}

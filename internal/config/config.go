package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Table sources.
const (
	SourceSheets   = "sheets"
	SourcePostgres = "postgres"
)

// Snapshot cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Host index scopes for resolving Matched Host.
const (
	MatchIndexAvailable = "available"
	MatchIndexAll       = "all"
)

const sheetsExportURL = "https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Source   string
	Sheets   SheetsConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Geocode  GeocodeConfig
	Filter   FilterConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// SheetsConfig points at the CSV exports of the host and customer tabs.
type SheetsConfig struct {
	HostURL     string
	CustomerURL string
	Timeout     time.Duration
}

// DatabaseConfig holds PostgreSQL connection configuration.
// It is only required when Source is "postgres".
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
	Migrate  bool
}

// CacheConfig controls the snapshot store.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// GeocodeConfig holds the address lookup service settings.
type GeocodeConfig struct {
	Enabled  bool
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
	Workers  int
}

// FilterConfig holds the customer predicate settings.
type FilterConfig struct {
	RequirePaid        bool
	ActionableMinStage int
	PendingStages      []int
	MatchIndex         string
}

// Load reads configuration from environment variables, after loading a .env file if one exists.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")

	v.SetDefault("SOURCE", SourceSheets)
	v.SetDefault("SHEETS_ID", "1j6_OeNNilcKX81RNCGBoI2zewVU9D45ftPxSO0_-qRo")
	v.SetDefault("SHEETS_HOST_GID", "422088740")
	v.SetDefault("SHEETS_CUSTOMER_GID", "0")
	v.SetDefault("SHEETS_TIMEOUT", "15s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "storeit")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 1)
	v.SetDefault("DB_POOL_MAX", 5)
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("CACHE_BACKEND", CacheMemory)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "storeit:snapshot:")

	v.SetDefault("GEOCODE_ENABLED", false)
	v.SetDefault("GEOCODE_BASE_URL", "https://www.onemap.gov.sg")
	v.SetDefault("GEOCODE_TIMEOUT", "10s")
	v.SetDefault("GEOCODE_WORKERS", 4)

	v.SetDefault("FILTER_REQUIRE_PAID", false)
	v.SetDefault("FILTER_ACTIONABLE_MIN_STAGE", 2)
	v.SetDefault("FILTER_PENDING_STAGES", "0,1")
	v.SetDefault("FILTER_MATCH_INDEX", MatchIndexAvailable)

	v.AutomaticEnv()

	pendingStages, err := parseStages(v.GetString("FILTER_PENDING_STAGES"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("PORT"),
			Env:      v.GetString("ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		CORS: CORSConfig{
			Origins: parseList(v.GetString("CORS_ORIGINS")),
		},
		Source: strings.ToLower(v.GetString("SOURCE")),
		Sheets: SheetsConfig{
			HostURL:     firstNonEmpty(v.GetString("SHEETS_HOST_URL"), fmt.Sprintf(sheetsExportURL, v.GetString("SHEETS_ID"), v.GetString("SHEETS_HOST_GID"))),
			CustomerURL: firstNonEmpty(v.GetString("SHEETS_CUSTOMER_URL"), fmt.Sprintf(sheetsExportURL, v.GetString("SHEETS_ID"), v.GetString("SHEETS_CUSTOMER_GID"))),
			Timeout:     v.GetDuration("SHEETS_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
			Migrate:  v.GetBool("DB_MIGRATE"),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(v.GetString("CACHE_BACKEND")),
			TTL:           v.GetDuration("CACHE_TTL"),
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			RedisPrefix:   v.GetString("REDIS_PREFIX"),
		},
		Geocode: GeocodeConfig{
			Enabled:  v.GetBool("GEOCODE_ENABLED"),
			BaseURL:  strings.TrimRight(v.GetString("GEOCODE_BASE_URL"), "/"),
			Email:    v.GetString("GEOCODE_EMAIL"),
			Password: v.GetString("GEOCODE_PASSWORD"),
			Timeout:  v.GetDuration("GEOCODE_TIMEOUT"),
			Workers:  v.GetInt("GEOCODE_WORKERS"),
		},
		Filter: FilterConfig{
			RequirePaid:        v.GetBool("FILTER_REQUIRE_PAID"),
			ActionableMinStage: v.GetInt("FILTER_ACTIONABLE_MIN_STAGE"),
			PendingStages:      pendingStages,
			MatchIndex:         strings.ToLower(v.GetString("FILTER_MATCH_INDEX")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	switch c.Source {
	case SourceSheets:
		if c.Sheets.HostURL == "" || c.Sheets.CustomerURL == "" {
			return fmt.Errorf("SHEETS_HOST_URL and SHEETS_CUSTOMER_URL are required for the sheets source")
		}
		if c.Sheets.Timeout <= 0 {
			return fmt.Errorf("SHEETS_TIMEOUT must be positive")
		}
	case SourcePostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("SOURCE must be %q or %q, got %q", SourceSheets, SourcePostgres, c.Source)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheMemory, CacheRedis, c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must be non-negative")
	}

	if c.Geocode.Enabled {
		if c.Geocode.Email == "" || c.Geocode.Password == "" {
			return fmt.Errorf("GEOCODE_EMAIL and GEOCODE_PASSWORD are required when geocoding is enabled")
		}
		if c.Geocode.Workers < 1 {
			return fmt.Errorf("GEOCODE_WORKERS must be at least 1")
		}
	}

	if c.Filter.MatchIndex != MatchIndexAvailable && c.Filter.MatchIndex != MatchIndexAll {
		return fmt.Errorf("FILTER_MATCH_INDEX must be %q or %q, got %q", MatchIndexAvailable, MatchIndexAll, c.Filter.MatchIndex)
	}
	if c.Filter.ActionableMinStage < 0 {
		return fmt.Errorf("FILTER_ACTIONABLE_MIN_STAGE must be non-negative")
	}

	return nil
}

// Validate checks the connection settings.
func (d DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// parseList splits a comma-separated string into trimmed, non-empty parts.
func parseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseStages parses a comma-separated list of stage codes such as "0,1".
func parseStages(s string) ([]int, error) {
	parts := parseList(s)
	stages := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("FILTER_PENDING_STAGES: invalid stage %q", part)
		}
		stages = append(stages, n)
	}
	return stages, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

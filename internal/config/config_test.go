package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"PORT", "ENV", "LOG_LEVEL", "CORS_ORIGINS", "SOURCE",
	"SHEETS_ID", "SHEETS_HOST_GID", "SHEETS_CUSTOMER_GID", "SHEETS_HOST_URL", "SHEETS_CUSTOMER_URL", "SHEETS_TIMEOUT",
	"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_POOL_MIN", "DB_POOL_MAX", "DB_MIGRATE",
	"CACHE_BACKEND", "CACHE_TTL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_PREFIX",
	"GEOCODE_ENABLED", "GEOCODE_BASE_URL", "GEOCODE_EMAIL", "GEOCODE_PASSWORD", "GEOCODE_TIMEOUT", "GEOCODE_WORKERS",
	"FILTER_REQUIRE_PAID", "FILTER_ACTIONABLE_MIN_STAGE", "FILTER_PENDING_STAGES", "FILTER_MATCH_INDEX",
}

// clearConfigEnv blanks every config variable for the duration of the test.
// Viper ignores empty environment values, so defaults apply.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		CORS:   CORSConfig{Origins: []string{"http://localhost:3000"}},
		Source: SourceSheets,
		Sheets: SheetsConfig{
			HostURL:     "https://example.com/hosts.csv",
			CustomerURL: "https://example.com/customers.csv",
			Timeout:     5 * time.Second,
		},
		Database: DatabaseConfig{
			Host: "localhost", Port: "5432", Name: "storeit",
			User: "postgres", Password: "postgres", PoolMin: 1, PoolMax: 5,
		},
		Cache:  CacheConfig{Backend: CacheMemory, TTL: 5 * time.Minute},
		Filter: FilterConfig{ActionableMinStage: 2, PendingStages: []int{0, 1}, MatchIndex: MatchIndexAvailable},
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, SourceSheets, cfg.Source)
	assert.Equal(t,
		"https://docs.google.com/spreadsheets/d/1j6_OeNNilcKX81RNCGBoI2zewVU9D45ftPxSO0_-qRo/export?format=csv&gid=422088740",
		cfg.Sheets.HostURL)
	assert.Contains(t, cfg.Sheets.CustomerURL, "gid=0")
	assert.Equal(t, 15*time.Second, cfg.Sheets.Timeout)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Geocode.Enabled)
	assert.Equal(t, "https://www.onemap.gov.sg", cfg.Geocode.BaseURL)
	assert.False(t, cfg.Filter.RequirePaid)
	assert.Equal(t, 2, cfg.Filter.ActionableMinStage)
	assert.Equal(t, []int{0, 1}, cfg.Filter.PendingStages)
	assert.Equal(t, MatchIndexAvailable, cfg.Filter.MatchIndex)
	assert.Len(t, cfg.CORS.Origins, 2)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SOURCE", "Postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_POOL_MAX", "20")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("GEOCODE_ENABLED", "true")
	t.Setenv("GEOCODE_EMAIL", "ops@example.com")
	t.Setenv("GEOCODE_PASSWORD", "pw")
	t.Setenv("GEOCODE_BASE_URL", "https://geo.example.com/")
	t.Setenv("FILTER_REQUIRE_PAID", "true")
	t.Setenv("FILTER_PENDING_STAGES", "1")
	t.Setenv("FILTER_MATCH_INDEX", "all")
	t.Setenv("CORS_ORIGINS", "http://example.com, https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, SourcePostgres, cfg.Source)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, 20, cfg.Database.PoolMax)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.True(t, cfg.Geocode.Enabled)
	assert.Equal(t, "https://geo.example.com", cfg.Geocode.BaseURL)
	assert.True(t, cfg.Filter.RequirePaid)
	assert.Equal(t, []int{1}, cfg.Filter.PendingStages)
	assert.Equal(t, MatchIndexAll, cfg.Filter.MatchIndex)
	assert.Equal(t, []string{"http://example.com", "https://app.example.com"}, cfg.CORS.Origins)
}

func TestLoad_ExplicitSheetURLsOverrideID(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SHEETS_HOST_URL", "https://files.example.com/hosts.csv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.com/hosts.csv", cfg.Sheets.HostURL)
	assert.Contains(t, cfg.Sheets.CustomerURL, "docs.google.com")
}

func TestLoad_PostgresRequiresPassword(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SOURCE", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidPendingStages(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("FILTER_PENDING_STAGES", "0,one")

	_, err := Load()
	assert.ErrorContains(t, err, "FILTER_PENDING_STAGES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: true},
		{name: "missing CORS origins", mutate: func(c *Config) { c.CORS.Origins = nil }, wantErr: true},
		{name: "unknown source", mutate: func(c *Config) { c.Source = "excel" }, wantErr: true},
		{name: "sheets without customer URL", mutate: func(c *Config) { c.Sheets.CustomerURL = "" }, wantErr: true},
		{name: "sheets with zero timeout", mutate: func(c *Config) { c.Sheets.Timeout = 0 }, wantErr: true},
		{name: "postgres source valid", mutate: func(c *Config) { c.Source = SourcePostgres }, wantErr: false},
		{name: "postgres missing password", mutate: func(c *Config) {
			c.Source = SourcePostgres
			c.Database.Password = ""
		}, wantErr: true},
		{name: "postgres pool min above max", mutate: func(c *Config) {
			c.Source = SourcePostgres
			c.Database.PoolMin = 10
		}, wantErr: true},
		{name: "sheets source ignores database", mutate: func(c *Config) { c.Database = DatabaseConfig{} }, wantErr: false},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) {
			c.Cache.Backend = CacheRedis
			c.Cache.RedisAddr = ""
		}, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.Cache.TTL = -time.Second }, wantErr: true},
		{name: "geocode without credentials", mutate: func(c *Config) {
			c.Geocode = GeocodeConfig{Enabled: true, Workers: 2}
		}, wantErr: true},
		{name: "geocode without workers", mutate: func(c *Config) {
			c.Geocode = GeocodeConfig{Enabled: true, Email: "a", Password: "b"}
		}, wantErr: true},
		{name: "bad match index", mutate: func(c *Config) { c.Filter.MatchIndex = "some" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a , b "))
	assert.Equal(t, []string{}, parseList(""))
	assert.Equal(t, []string{}, parseList(",,,"))
}

func TestParseStages(t *testing.T) {
	stages, err := parseStages("0, 1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, stages)

	_, err = parseStages("zero")
	assert.Error(t, err)
}

package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	CacheTTL           time.Duration `mapstructure:"CACHE_TTL"`
	LocalCacheTTL      time.Duration `mapstructure:"LOCAL_CACHE_TTL"`
	RescoreConcurrency int           `mapstructure:"RESCORE_CONCURRENCY"`
	FHIRBaseURL        string        `mapstructure:"FHIR_BASE_URL"`

	// WHO ICD-API. Without a client id the service answers from the
	// ingested ICD-11 table.
	WHOClientID     string `mapstructure:"WHO_CLIENT_ID"`
	WHOClientSecret string `mapstructure:"WHO_CLIENT_SECRET"`
	WHOTokenURL     string `mapstructure:"WHO_TOKEN_URL"`
	WHOAPIURL       string `mapstructure:"WHO_API_URL"`
	WHORelease      string `mapstructure:"WHO_RELEASE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CACHE_TTL", "LOCAL_CACHE_TTL", "RESCORE_CONCURRENCY",
	"FHIR_BASE_URL", "WHO_CLIENT_ID", "WHO_CLIENT_SECRET", "WHO_TOKEN_URL", "WHO_API_URL", "WHO_RELEASE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("CACHE_TTL", "10m")
	v.SetDefault("LOCAL_CACHE_TTL", "30s")
	v.SetDefault("RESCORE_CONCURRENCY", 4)
	v.SetDefault("WHO_TOKEN_URL", "https://icdaccessmanagement.who.int/connect/token")
	v.SetDefault("WHO_API_URL", "https://id.who.int")
	v.SetDefault("WHO_RELEASE", "2024-01")

	// Unmarshal only sees keys viper knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.FHIRBaseURL == "" {
		cfg.FHIRBaseURL = fmt.Sprintf("http://localhost:%s/fhir", cfg.Port)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MemoryCacheTTL is the lifetime of entries in the in-process cache tier.
// With redis configured the tier is shared-nothing, so it is capped at
// LOCAL_CACHE_TTL to bound how long an instance serves an entry another
// instance has invalidated.
func (c *Config) MemoryCacheTTL() time.Duration {
	if c.RedisURL == "" || c.LocalCacheTTL <= 0 {
		return c.CacheTTL
	}
	return min(c.CacheTTL, c.LocalCacheTTL)
}

// SigningKey decodes AUTH_SIGNING_KEY. It returns nil when the key is unset.
func (c *Config) SigningKey() ([]byte, error) {
	if c.AuthSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate refuses configurations that would run outside development
// without token verification.
func (c *Config) Validate() error {
	if _, err := c.SigningKey(); err != nil {
		return err
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.RescoreConcurrency < 1 {
		return fmt.Errorf("RESCORE_CONCURRENCY must be positive, got %d", c.RescoreConcurrency)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

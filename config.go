package goToken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goToken/jwt"
)

// Config is the full engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT        JWTConfig
	Tokens     TokensConfig
	Extraction ExtractionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cleanup    CleanupConfig
	Logging    LoggingConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds key material and claim settings.
//
// When PrivateKey (or PublicKey) is empty the builder reads the PEM file at
// PrivateKeyPath (or PublicKeyPath). An empty public key is derived from the private key.
type JWTConfig struct {
	Issuer         string
	PrivateKeyPath string
	PublicKeyPath  string
	PrivateKey     []byte
	PublicKey      []byte
	Leeway         time.Duration
	Timezone       string
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig holds per-type lifetimes.
type TokensConfig struct {
	AccessTTL             time.Duration
	AccessCanBeUsedAfter  time.Duration
	RefreshTTL            time.Duration
	RefreshCanBeUsedAfter time.Duration
}

// Lifetimes converts c into the jwt package representation.
func (c TokensConfig) Lifetimes() map[jwt.TokenType]jwt.Lifetime {
	return map[jwt.TokenType]jwt.Lifetime{
		jwt.TypeAccess:  {TTL: c.AccessTTL, CanBeUsedAfter: c.AccessCanBeUsedAfter},
		jwt.TypeRefresh: {TTL: c.RefreshTTL, CanBeUsedAfter: c.RefreshCanBeUsedAfter},
	}
}

/*
====================================
EXTRACTION CONFIG
====================================
*/

// ExtractionConfig controls where middleware looks for a token.
//
// InputKey names the query parameter, body field, and cookie checked before the
// Authorization header.
type ExtractionConfig struct {
	InputKey     string
	MaxBodyBytes int64
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
STORAGE CONFIG
====================================
*/

// DatabaseConfig configures the PostgreSQL token store.
type DatabaseConfig struct {
	URL             string
	MaxConnections  int32
	MinConnections  int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	ConnectRetries  int
	AutoMigrate     bool
}

// RedisConfig configures the Redis token store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

/*
====================================
CLEANUP / LOGGING CONFIG
====================================
*/

// CleanupConfig configures the expired-token sweeper.
type CleanupConfig struct {
	Schedule string
	Timeout  time.Duration
}

// LoggingConfig configures [NewLogger].
type LoggingConfig struct {
	Level   string
	Format  string // "text" (default) or "json"
	AppName string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden:
// 30 minute access tokens, 15 day refresh tokens, no leeway, UTC.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:         "http://localhost",
			PrivateKeyPath: "storage/jwt/private_key.pem",
			PublicKeyPath:  "storage/jwt/public_key.pem",
			Timezone:       "UTC",
		},
		Tokens: TokensConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 21600 * time.Minute,
		},
		Extraction: ExtractionConfig{
			InputKey:     "token",
			MaxBodyBytes: 1 << 20,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Database: DatabaseConfig{
			MaxConnections:  10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
			ConnectTimeout:  5 * time.Second,
			ConnectRetries:  5,
		},
		Redis: RedisConfig{
			Prefix: "gotoken",
		},
		Cleanup: CleanupConfig{
			Schedule: "@hourly",
			Timeout:  time.Minute,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			AppName: "gotoken",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for values the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must be set")
	}
	if len(c.JWT.PrivateKey) == 0 && strings.TrimSpace(c.JWT.PrivateKeyPath) == "" {
		return errors.New("JWT requires PrivateKey or PrivateKeyPath")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if _, err := c.location(); err != nil {
		return err
	}

	// Tokens
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.AccessCanBeUsedAfter < 0 || c.Tokens.RefreshCanBeUsedAfter < 0 {
		return errors.New("Tokens CanBeUsedAfter must be >= 0")
	}

	// Extraction
	if strings.TrimSpace(c.Extraction.InputKey) == "" {
		return errors.New("Extraction InputKey must be set")
	}
	if c.Extraction.MaxBodyBytes <= 0 {
		return errors.New("Extraction MaxBodyBytes must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Database
	if c.Database.MinConnections < 0 || c.Database.MaxConnections < 0 {
		return errors.New("Database connection limits must be >= 0")
	}
	if c.Database.MaxConnections > 0 && c.Database.MinConnections > c.Database.MaxConnections {
		return errors.New("Database MinConnections must be <= MaxConnections")
	}

	// Redis
	if c.Redis.DB < 0 {
		return errors.New("Redis DB must be >= 0")
	}

	// Logging
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("Logging Format %q must be 'text' or 'json'", c.Logging.Format)
	}

	return nil
}

func (c *Config) location() (*time.Location, error) {
	name := strings.TrimSpace(c.JWT.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("JWT Timezone %q: %w", name, err)
	}
	return loc, nil
}

package goToken

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

/*
====================================
ENVIRONMENT LOADING
====================================
*/

// envConfig mirrors the supported environment variables before conversion.
type envConfig struct {
	PrivateKey      string
	PublicKey       string
	AppURL          string `validate:"omitempty,url"`
	AccessTTL       string
	AccessCBU       string
	RefreshTTL      string
	RefreshCBU      string
	Leeway          string
	Timezone        string `validate:"omitempty,timezone"`
	InputKey        string `validate:"omitempty,max=64,excludesall=0x20"`
	DatabaseURL     string
	RedisAddr       string `validate:"omitempty,hostname_port"`
	RedisPassword   string
	RedisDB         string `validate:"omitempty,number"`
	CleanupSchedule string
	LogLevel        string `validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	LogFormat       string `validate:"omitempty,oneof=text json"`
	AuditEnabled    string `validate:"omitempty,boolean"`
	MetricsEnabled  string `validate:"omitempty,boolean"`
	DatabaseMigrate string `validate:"omitempty,boolean"`
}

var envValidate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfigFromEnv builds a Config from environment variables layered over the defaults.
//
// The dotenv files are loaded first without overriding variables that are already set.
// With no files, ".env" is loaded when it exists.
//
// JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are file paths. Lifetimes (JWT_ACCESS_TTL,
// JWT_ACCESS_CBU, JWT_REFRESH_TTL, JWT_REFRESH_CBU) accept whole minutes or Go
// duration strings; JWT_LEEWAY accepts whole seconds or a duration.
func LoadConfigFromEnv(files ...string) (Config, error) {
	if err := loadDotenv(files); err != nil {
		return Config{}, err
	}
	return configFromLookup(os.LookupEnv)
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	raw := envConfig{
		PrivateKey:      get("JWT_PRIVATE_KEY"),
		PublicKey:       get("JWT_PUBLIC_KEY"),
		AppURL:          get("APP_URL"),
		AccessTTL:       get("JWT_ACCESS_TTL"),
		AccessCBU:       get("JWT_ACCESS_CBU"),
		RefreshTTL:      get("JWT_REFRESH_TTL"),
		RefreshCBU:      get("JWT_REFRESH_CBU"),
		Leeway:          get("JWT_LEEWAY"),
		Timezone:        get("JWT_TIMEZONE"),
		InputKey:        get("JWT_INPUT_KEY"),
		DatabaseURL:     get("DATABASE_URL"),
		RedisAddr:       get("REDIS_ADDR"),
		RedisPassword:   get("REDIS_PASSWORD"),
		RedisDB:         get("REDIS_DB"),
		CleanupSchedule: get("TOKEN_CLEANUP_SCHEDULE"),
		LogLevel:        strings.ToLower(get("LOG_LEVEL")),
		LogFormat:       strings.ToLower(get("LOG_FORMAT")),
		AuditEnabled:    get("AUDIT_ENABLED"),
		MetricsEnabled:  get("METRICS_ENABLED"),
		DatabaseMigrate: get("DATABASE_AUTO_MIGRATE"),
	}
	if err := envValidate.Struct(raw); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	cfg := defaultConfig()
	var err error

	setString(&cfg.JWT.PrivateKeyPath, raw.PrivateKey)
	setString(&cfg.JWT.PublicKeyPath, raw.PublicKey)
	setString(&cfg.JWT.Issuer, raw.AppURL)
	setString(&cfg.JWT.Timezone, raw.Timezone)
	setString(&cfg.Extraction.InputKey, raw.InputKey)
	setString(&cfg.Database.URL, raw.DatabaseURL)
	setString(&cfg.Redis.Addr, raw.RedisAddr)
	setString(&cfg.Redis.Password, raw.RedisPassword)
	setString(&cfg.Cleanup.Schedule, raw.CleanupSchedule)
	setString(&cfg.Logging.Level, raw.LogLevel)
	setString(&cfg.Logging.Format, raw.LogFormat)

	durations := []struct {
		key  string
		val  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"JWT_ACCESS_TTL", raw.AccessTTL, time.Minute, &cfg.Tokens.AccessTTL},
		{"JWT_ACCESS_CBU", raw.AccessCBU, time.Minute, &cfg.Tokens.AccessCanBeUsedAfter},
		{"JWT_REFRESH_TTL", raw.RefreshTTL, time.Minute, &cfg.Tokens.RefreshTTL},
		{"JWT_REFRESH_CBU", raw.RefreshCBU, time.Minute, &cfg.Tokens.RefreshCanBeUsedAfter},
		{"JWT_LEEWAY", raw.Leeway, time.Second, &cfg.JWT.Leeway},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		if *d.dst, err = parseEnvDuration(d.val, d.unit); err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	if raw.RedisDB != "" {
		if cfg.Redis.DB, err = strconv.Atoi(raw.RedisDB); err != nil {
			return Config{}, fmt.Errorf("REDIS_DB: %w", err)
		}
	}

	flags := []struct {
		val string
		dst *bool
	}{
		{raw.AuditEnabled, &cfg.Audit.Enabled},
		{raw.MetricsEnabled, &cfg.Metrics.Enabled},
		{raw.DatabaseMigrate, &cfg.Database.AutoMigrate},
	}
	for _, f := range flags {
		if f.val == "" {
			continue
		}
		// Already checked by the boolean validator tag.
		*f.dst, _ = strconv.ParseBool(f.val)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseEnvDuration reads a bare integer as a count of unit, otherwise a Go duration.
func parseEnvDuration(v string, unit time.Duration) (time.Duration, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Package config loads the environment configuration surface of the
// auth service. Every knob has a safe default; only the signing secret
// is mandatory.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the process-level configuration, populated from environment
// variables.
type Config struct {
	Env        string `env:"SHIFTDESK_ENV" env-default:"development"`
	ListenAddr string `env:"SHIFTDESK_LISTEN_ADDR" env-default:":8080"`

	PostgresDSN string `env:"SHIFTDESK_PG_DSN"`

	JWTSecret  string        `env:"SHIFTDESK_JWT_SECRET"`
	AccessTTL  time.Duration `env:"SHIFTDESK_ACCESS_TTL" env-default:"15m"`
	RefreshTTL time.Duration `env:"SHIFTDESK_REFRESH_TTL" env-default:"168h"`

	BcryptCost        int           `env:"SHIFTDESK_BCRYPT_COST" env-default:"12"`
	PasswordMinLength int           `env:"SHIFTDESK_PASSWORD_MIN_LENGTH" env-default:"8"`
	MaxFailedAttempts int           `env:"SHIFTDESK_MAX_FAILED_ATTEMPTS" env-default:"5"`
	LockoutDuration   time.Duration `env:"SHIFTDESK_LOCKOUT_DURATION" env-default:"15m"`
	RateLimitWindow   time.Duration `env:"SHIFTDESK_RATE_LIMIT_WINDOW" env-default:"15m"`
	RateLimitMax      int           `env:"SHIFTDESK_RATE_LIMIT_MAX" env-default:"5"`

	// Transport-level token bucket, independent of the login window.
	HTTPRateBurst  int `env:"SHIFTDESK_HTTP_RATE_BURST" env-default:"20"`
	HTTPRatePerSec int `env:"SHIFTDESK_HTTP_RATE_PER_SEC" env-default:"10"`
}

// Known-weak literals that must never be accepted as a signing secret.
var weakSecrets = []string{
	"secret", "changeme", "change-me", "password", "jwt-secret",
	"dev-secret", "test-secret", "default", "shiftdesk",
}

// Load reads the configuration from the environment and validates it.
// The returned warnings are advisory; the error is fatal.
func Load() (*Config, []string, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

// Validate enforces boot-time invariants. Secret validation is the
// fail-fast gate: a missing or known-weak secret stops startup.
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	secret := strings.TrimSpace(c.JWTSecret)
	if secret == "" {
		return nil, errors.New("config: SHIFTDESK_JWT_SECRET is required")
	}
	for _, weak := range weakSecrets {
		if strings.EqualFold(secret, weak) {
			return nil, fmt.Errorf("config: refusing known-weak JWT secret %q", weak)
		}
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("config: JWT secret must be at least 32 characters, got %d", len(secret))
	}
	if len(secret) < 64 {
		warnings = append(warnings, fmt.Sprintf("JWT secret is %d characters; 64 or more recommended", len(secret)))
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return nil, errors.New("config: token lifetimes must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		warnings = append(warnings, "access token TTL is not shorter than refresh token TTL")
	}
	if c.BcryptCost < 10 || c.BcryptCost > 16 {
		return nil, fmt.Errorf("config: bcrypt cost %d outside sane range [10,16]", c.BcryptCost)
	}
	if c.PasswordMinLength < 8 {
		return nil, errors.New("config: password minimum length below 8")
	}
	if c.MaxFailedAttempts < 1 {
		return nil, errors.New("config: max failed attempts must be at least 1")
	}
	if c.LockoutDuration <= 0 || c.RateLimitWindow <= 0 {
		return nil, errors.New("config: lockout and rate-limit windows must be positive")
	}
	if c.RateLimitMax < 1 {
		return nil, errors.New("config: rate limit max must be at least 1")
	}
	return warnings, nil
}

// IsProduction reports whether the process runs with production gating
// (temporary passwords are never echoed back in production).
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Env:               "development",
		ListenAddr:        ":8080",
		JWTSecret:         strings.Repeat("k", 64),
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        168 * time.Hour,
		BcryptCost:        12,
		PasswordMinLength: 8,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		RateLimitWindow:   15 * time.Minute,
		RateLimitMax:      5,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "   "
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestValidateRejectsWeakSecret(t *testing.T) {
	for _, secret := range []string{"secret", "CHANGEME", "Password"} {
		cfg := validConfig()
		cfg.JWTSecret = secret
		if _, err := cfg.Validate(); err == nil {
			t.Fatalf("expected rejection of weak secret %q", secret)
		}
	}
}

func TestValidateRejectsShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = strings.Repeat("k", 31)
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestValidateWarnsOnMediumSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = strings.Repeat("k", 48)
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected warning for secret shorter than 64 characters")
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("SHIFTDESK_JWT_SECRET", strings.Repeat("s", 64))

	cfg, warnings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access TTL: %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 168*time.Hour {
		t.Fatalf("unexpected refresh TTL: %v", cfg.RefreshTTL)
	}
	if cfg.MaxFailedAttempts != 5 || cfg.RateLimitMax != 5 {
		t.Fatalf("unexpected attempt limits: %d/%d", cfg.MaxFailedAttempts, cfg.RateLimitMax)
	}
	if cfg.IsProduction() {
		t.Fatal("default environment must not be production")
	}
}

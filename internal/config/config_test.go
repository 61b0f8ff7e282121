package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Booking.ConflictWindow != 15*time.Minute {
		t.Fatalf("conflict window = %s, want 15m", cfg.Booking.ConflictWindow)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.Port != 5432 {
		t.Fatalf("unexpected db defaults: %+v", cfg.DB)
	}
	if cfg.Auth.TokenTTL != 720*time.Hour {
		t.Fatalf("token ttl = %s, want 720h", cfg.Auth.TokenTTL)
	}
	if !cfg.IsLocal() {
		t.Fatalf("expected local env by default, got %q", cfg.App.Env)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "*" {
		t.Fatalf("allowed origins = %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "PRODUCTION")
	t.Setenv("BOOKING_CONFLICT_WINDOW", "30m")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "/tmp/clinic.db")
	t.Setenv("HTTP_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.App.Env != EnvProduction {
		t.Fatalf("env = %q, want production", cfg.App.Env)
	}
	if cfg.Booking.ConflictWindow != 30*time.Minute {
		t.Fatalf("conflict window = %s, want 30m", cfg.Booking.ConflictWindow)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.SQLitePath != "/tmp/clinic.db" {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Fatalf("allowed origins = %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":       {},
		"short window":         {"JWT_SECRET": "s", "BOOKING_CONFLICT_WINDOW": "10s"},
		"unknown driver":       {"JWT_SECRET": "s", "DB_DRIVER": "oracle"},
		"razorpay keys":        {"JWT_SECRET": "s", "PAYMENT_ENABLED": "true"},
		"unknown provider":     {"JWT_SECRET": "s", "PAYMENT_ENABLED": "true", "PAYMENT_PROVIDER": "stripe"},
		"static outside local": {"JWT_SECRET": "s", "APP_ENV": "production", "PAYMENT_ENABLED": "true", "PAYMENT_PROVIDER": "static"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Parse(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParse_StaticPaymentsInLocal(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "local")
	t.Setenv("PAYMENT_ENABLED", "true")
	t.Setenv("PAYMENT_PROVIDER", "Static")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Payment.Provider != "static" {
		t.Fatalf("provider = %q, want static", cfg.Payment.Provider)
	}
}

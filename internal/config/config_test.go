package config

import (
	"testing"
	"time"

	"billing-service/internal/billing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRORATION_UPGRADE", "")
	t.Setenv("PRORATION_DOWNGRADE", "")
	t.Setenv("TENANT_ALLOW_MULTIPLE", "")
	t.Setenv("SETTINGS_CACHE_TTL_SECONDS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tenancy.AllowMultiple {
		t.Errorf("expected single tenant ownership by default")
	}
	if cfg.Tenancy.CodeLength != 8 {
		t.Errorf("expected default code length 8, got %d", cfg.Tenancy.CodeLength)
	}
	if cfg.Billing.Proration.Upgrade != billing.ProrateImmediately {
		t.Errorf("expected upgrade %s, got %s", billing.ProrateImmediately, cfg.Billing.Proration.Upgrade)
	}
	if cfg.Billing.Proration.Downgrade != billing.EndOfPeriod {
		t.Errorf("expected downgrade %s, got %s", billing.EndOfPeriod, cfg.Billing.Proration.Downgrade)
	}
	if cfg.Settings.CacheKey != "settings:all" {
		t.Errorf("expected settings cache key settings:all, got %s", cfg.Settings.CacheKey)
	}
	if cfg.Settings.CacheTTL != time.Hour {
		t.Errorf("expected settings cache ttl 1h, got %s", cfg.Settings.CacheTTL)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("TENANT_ALLOW_MULTIPLE", "true")
	t.Setenv("PRORATION_UPGRADE", "charge_immediately")
	t.Setenv("PRORATION_DOWNGRADE", "prorate_immediately")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Server.Port)
	}
	if !cfg.Tenancy.AllowMultiple {
		t.Errorf("expected multiple tenants to be allowed")
	}
	if cfg.Billing.Proration.Upgrade != billing.ChargeImmediately {
		t.Errorf("expected upgrade charge_immediately, got %s", cfg.Billing.Proration.Upgrade)
	}
	if cfg.Billing.Proration.Downgrade != billing.ProrateImmediately {
		t.Errorf("expected downgrade prorate_immediately, got %s", cfg.Billing.Proration.Downgrade)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("expected redis db 3, got %d", cfg.Redis.DB)
	}
}

func TestLoad_InvalidProration(t *testing.T) {
	tests := []struct {
		name      string
		upgrade   string
		downgrade string
	}{
		{"unknown upgrade", "bill_later", "end_of_period"},
		{"unknown downgrade", "prorate_immediately", "never"},
		{"wrong case", "PRORATE_IMMEDIATELY", "end_of_period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRORATION_UPGRADE", tt.upgrade)
			t.Setenv("PRORATION_DOWNGRADE", tt.downgrade)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for upgrade=%q downgrade=%q", tt.upgrade, tt.downgrade)
			}
		})
	}
}

func TestLoad_InvalidCodeLength(t *testing.T) {
	t.Setenv("PRORATION_UPGRADE", "")
	t.Setenv("PRORATION_DOWNGRADE", "")
	t.Setenv("TENANT_CODE_LENGTH", "2")

	if _, err := Load(); err == nil {
		t.Error("expected error for a code length below 4")
	}
}

func TestGetEnvAsBoolWithDefault_Invalid(t *testing.T) {
	t.Setenv("SOME_FLAG", "not-a-bool")

	if got := getEnvAsBoolWithDefault("SOME_FLAG", true); !got {
		t.Errorf("expected default true for unparsable value")
	}
}

func TestGetEnvAsSliceWithDefault(t *testing.T) {
	t.Setenv("ORIGINS", " https://a.example.com, ,https://b.example.com ")

	got := getEnvAsSliceWithDefault("ORIGINS", nil)
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Errorf("unexpected origins: %v", got)
	}

	t.Setenv("ORIGINS", " , ")
	if got := getEnvAsSliceWithDefault("ORIGINS", defaultAllowedOrigins); len(got) != len(defaultAllowedOrigins) {
		t.Errorf("expected defaults for blank value, got %v", got)
	}
}

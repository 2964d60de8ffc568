package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		GeofenceStore:      "file",
		GeofenceFile:       "data/geofences.json",
		AvgSpeedKmh:        40,
		EventBusBufferSize: 100,
		TickIntervalStr:    "5s",
		DefaultDwellStr:    "60s",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config should not return error, got: %v", err)
	}
}

func TestValidate_UnknownStoreBackend(t *testing.T) {
	cfg := validConfig()
	cfg.GeofenceStore = "etcd"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for unknown store backend")
	}
	if !strings.Contains(err.Error(), "GEOFENCE_STORE") {
		t.Errorf("error should mention GEOFENCE_STORE: %q", err.Error())
	}
}

func TestValidate_PostgresRequiresDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.GeofenceStore = "postgres"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for postgres store without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should mention DATABASE_URL: %q", err.Error())
	}

	cfg.DatabaseURL = "postgres://localhost/dispatchd"
	if err := Validate(cfg); err != nil {
		t.Errorf("postgres store with DATABASE_URL should validate, got: %v", err)
	}
}

func TestValidate_RedisRequiresAddr(t *testing.T) {
	cfg := validConfig()
	cfg.GeofenceStore = "redis"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for redis store without REDIS_ADDR")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Errorf("error should mention REDIS_ADDR: %q", err.Error())
	}
}

func TestValidate_InvalidDurations(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		wantErr  string
	}{
		{"non-parseable", "invalid", "invalid duration"},
		{"negative", "-1s", "must be positive"},
		{"zero", "0s", "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.TickIntervalStr = tt.interval

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error for tick_interval=%q", tt.interval)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_WebhookTargetsRequireSecret(t *testing.T) {
	cfg := validConfig()
	cfg.OrderStatusURL = "https://orders.example.com/hook"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for webhook URL without secret")
	}
	if !strings.Contains(err.Error(), "WEBHOOK_SECRET") {
		t.Errorf("error should mention WEBHOOK_SECRET: %q", err.Error())
	}

	cfg.WebhookSecret = "s3cret"
	if err := Validate(cfg); err != nil {
		t.Errorf("webhook URL with secret should validate, got: %v", err)
	}
}

func TestValidate_MultipleErrorsCollected(t *testing.T) {
	cfg := validConfig()
	cfg.GeofenceStore = "bogus"
	cfg.AvgSpeedKmh = 0
	cfg.TickIntervalStr = "nope"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	var verrs ValidationErrors
	if !asValidationErrors(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) < 3 {
		t.Errorf("expected at least 3 errors, got %d: %v", len(verrs), verrs)
	}
}

func asValidationErrors(err error, target *ValidationErrors) bool {
	verrs, ok := err.(ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

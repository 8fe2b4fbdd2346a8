package config

import (
	"os"
	"testing"
)

func clearEngineEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CATALOG_URL", "CATALOG_KEY", "DELIVERY_PROVIDER_URL", "DELIVERY_PROVIDER_KEY",
		"SCHEDULE_STORE_ADDRESS", "POLL_BATCH_SIZE", "POLL_INTERVAL_MS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("CATALOG_URL", "postgres://localhost/catalog")
	t.Setenv("DELIVERY_PROVIDER_URL", "https://provider.example.com")
	t.Setenv("DELIVERY_PROVIDER_KEY", "test-key")

	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ScheduleStore.Address != "localhost:7233" {
		t.Errorf("got schedule store address %q, want default", cfg.ScheduleStore.Address)
	}
	if cfg.Polling.BatchSize != 100 {
		t.Errorf("got batch size %d, want 100", cfg.Polling.BatchSize)
	}
	if cfg.Reconciliation.DefaultTimezone != "UTC" {
		t.Errorf("got timezone %q, want UTC", cfg.Reconciliation.DefaultTimezone)
	}
	if cfg.EventBus.URL != "" {
		t.Errorf("got event bus URL %q, want empty (lifecycle events disabled by default)", cfg.EventBus.URL)
	}
	if cfg.EventBus.Exchange != "notification.lifecycle" {
		t.Errorf("got event bus exchange %q, want default", cfg.EventBus.Exchange)
	}
}

func TestLoadMissingRequiredFieldsFails(t *testing.T) {
	clearEngineEnv(t)

	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected validation error when catalog/delivery config is missing")
	}
}

func TestPollingDurationHelpers(t *testing.T) {
	p := PollingConfig{PollIntervalMS: 10000, FailedPollIntervalMS: 60000, ScheduledPollIntervalMS: 30000, JobRetryDelayMS: 5000}

	if p.PollInterval().Seconds() != 10 {
		t.Errorf("got %v, want 10s", p.PollInterval())
	}
	if p.FailedPollInterval().Seconds() != 60 {
		t.Errorf("got %v, want 60s", p.FailedPollInterval())
	}
	if p.ScheduledPollInterval().Seconds() != 30 {
		t.Errorf("got %v, want 30s", p.ScheduledPollInterval())
	}
	if p.JobRetryDelay().Seconds() != 5 {
		t.Errorf("got %v, want 5s", p.JobRetryDelay())
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{App: AppConfig{Environment: "production"}}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction() to be true")
	}
	if cfg.IsDevelopment() || cfg.IsStaging() {
		t.Error("expected IsDevelopment/IsStaging to be false")
	}
}

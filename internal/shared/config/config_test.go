package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-jwt-secret-key")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Auth.JWTSecret != "test-jwt-secret-key" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-jwt-secret-key")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Processor.InsertConcurrency != 8 {
		t.Errorf("Processor.InsertConcurrency = %d, want 8", cfg.Processor.InsertConcurrency)
	}
	if cfg.Processor.TransferWindowDays != 3 {
		t.Errorf("Processor.TransferWindowDays = %d, want 3", cfg.Processor.TransferWindowDays)
	}
	if cfg.LLM.Timeout != 20*time.Second {
		t.Errorf("LLM.Timeout = %v, want 20s", cfg.LLM.Timeout)
	}
	if cfg.Mapping.OverwriteMargin != 0.05 {
		t.Errorf("Mapping.OverwriteMargin = %v, want 0.05", cfg.Mapping.OverwriteMargin)
	}
	if cfg.Mapping.ConsensusThreshold != 3 {
		t.Errorf("Mapping.ConsensusThreshold = %d, want 3", cfg.Mapping.ConsensusThreshold)
	}
	if cfg.Listener.Channel != "statement_parsed" {
		t.Errorf("Listener.Channel = %q, want statement_parsed", cfg.Listener.Channel)
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing JWT_SECRET, got nil")
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_InvalidLLMTimeout(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("LLM_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid LLM_TIMEOUT, got nil")
	}
}

func TestLoad_InsertConcurrencyMustBePositive(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PROCESSOR_INSERT_CONCURRENCY", "0")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for zero PROCESSOR_INSERT_CONCURRENCY, got nil")
	}
}

func TestLoad_OverwriteMarginRange(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("MAPPING_OVERWRITE_MARGIN", "1.5")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for MAPPING_OVERWRITE_MARGIN out of range, got nil")
	}
}

func TestLoad_TransferKeywords(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TRANSFER_KEYWORDS", "neft, imps,, own account ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := []string{"neft", "imps", "own account"}
	if len(cfg.Processor.TransferKeywords) != len(want) {
		t.Fatalf("TransferKeywords = %v, want %v", cfg.Processor.TransferKeywords, want)
	}
	for i := range want {
		if cfg.Processor.TransferKeywords[i] != want[i] {
			t.Errorf("TransferKeywords[%d] = %q, want %q", i, cfg.Processor.TransferKeywords[i], want[i])
		}
	}
}

func TestLoad_TLSValidation(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without cert path, got nil")
	}
}

func TestLoad_TLSValidation_MissingKeyPath(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "/path/to/cert")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without key path, got nil")
	}
}

func TestLoad_AllowedHosts(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ALLOWED_HOSTS", "example.com, api.example.com, localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.AllowedHosts) != 3 {
		t.Errorf("AllowedHosts length = %d, want 3", len(cfg.Server.AllowedHosts))
	}
}

func TestLoad_SchedulerConfig(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_WORKERS", "10")
	t.Setenv("SCHEDULER_RUN_ON_STARTUP", "true")
	t.Setenv("SCHEDULER_TIMES", "02:30,14:00")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.Enabled != false {
		t.Error("Scheduler.Enabled should be false")
	}
	if cfg.Scheduler.WorkerCount != 10 {
		t.Errorf("Scheduler.WorkerCount = %d, want 10", cfg.Scheduler.WorkerCount)
	}
	if cfg.Scheduler.RunOnStartup != true {
		t.Error("Scheduler.RunOnStartup should be true")
	}
	if len(cfg.Scheduler.ScheduleTimes) != 2 {
		t.Errorf("Scheduler.ScheduleTimes = %v, want 2 entries", cfg.Scheduler.ScheduleTimes)
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"NO", true, false},
		{"invalid", true, true},   // returns default
		{"invalid", false, false}, // returns default
		{"", true, true},          // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	got := cfg.ConnectionString()
	if got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}

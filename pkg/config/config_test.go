package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
port: "8090"
env: "test"
database:
  host: "db.example.com"
jira:
  base_url: "https://jira.example.com"
`)

	// Clear env vars that might interfere with test
	os.Unsetenv("PGHOST")
	os.Unsetenv("JIRA_URL")

	// Set env vars to override YAML values
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JIRA_API_TOKEN", "secret-token")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify env vars override YAML
	if cfg.Port != "9090" {
		t.Errorf("expected Port=9090 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}

	// Verify version was set
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// Verify YAML values were read
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Jira.BaseURL != "https://jira.example.com" {
		t.Errorf("expected Jira.BaseURL from yaml, got %s", cfg.Jira.BaseURL)
	}

	// Secrets come only from env
	if cfg.Jira.APIToken != "secret-token" {
		t.Errorf("expected Jira.APIToken from env, got %q", cfg.Jira.APIToken)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
env: "test"
`)

	os.Unsetenv("RECONCILE_AUTHORITATIVE_SOURCE")
	os.Unsetenv("RECONCILE_CONFIDENCE_THRESHOLD")
	os.Unsetenv("DRIVER_WORKERS")
	os.Unsetenv("DRIVER_POLL_INTERVAL")
	os.Unsetenv("WAREHOUSE_TYPE")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Reconcile.AuthoritativeSource != "jira" {
		t.Errorf("expected AuthoritativeSource=jira (default), got %s", cfg.Reconcile.AuthoritativeSource)
	}
	if cfg.Reconcile.ConfidenceThreshold != 0.7 {
		t.Errorf("expected ConfidenceThreshold=0.7 (default), got %v", cfg.Reconcile.ConfidenceThreshold)
	}
	if cfg.Reconcile.HistoryLimit != 10 {
		t.Errorf("expected HistoryLimit=10 (default), got %d", cfg.Reconcile.HistoryLimit)
	}
	if cfg.Driver.Workers != 4 {
		t.Errorf("expected Workers=4 (default), got %d", cfg.Driver.Workers)
	}
	if cfg.Driver.PollInterval.Minutes() != 5 {
		t.Errorf("expected PollInterval=5m (default), got %v", cfg.Driver.PollInterval)
	}
	if cfg.Warehouse.Type != "postgres" {
		t.Errorf("expected Warehouse.Type=postgres (default), got %s", cfg.Warehouse.Type)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	chdirTemp(t)

	// Without config.yaml, configuration falls back to environment only.
	os.Unsetenv("RECONCILE_AUTHORITATIVE_SOURCE")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
}

func TestLoad_InvalidAuthoritativeSource(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
env: "test"
reconcile:
  authoritative_source: "sharepoint"
`)

	os.Unsetenv("RECONCILE_AUTHORITATIVE_SOURCE")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for invalid authoritative source, got nil")
	}
	if !strings.Contains(err.Error(), "authoritative_source") {
		t.Errorf("expected error to mention authoritative_source, got: %v", err)
	}
}

func TestLoad_InvalidConfidenceThreshold(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
env: "test"
reconcile:
  confidence_threshold: 1.5
`)

	os.Unsetenv("RECONCILE_CONFIDENCE_THRESHOLD")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for out-of-range confidence threshold, got nil")
	}
	if !strings.Contains(err.Error(), "confidence_threshold") {
		t.Errorf("expected error to mention confidence_threshold, got: %v", err)
	}
}

func TestLoad_InvalidWarehouseType(t *testing.T) {
	tmpDir := chdirTemp(t)
	writeConfig(t, tmpDir, `
env: "test"
warehouse:
  type: "oracle"
`)

	os.Unsetenv("WAREHOUSE_TYPE")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for unsupported warehouse type, got nil")
	}
	if !strings.Contains(err.Error(), "warehouse.type") {
		t.Errorf("expected error to mention warehouse.type, got: %v", err)
	}
}

func TestDatabaseConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "snowlink",
		Password: "pw",
		Database: "snowlink_engine",
		SSLMode:  "disable",
	}
	got := db.ConnectionString()
	want := "host=localhost port=5432 user=snowlink password=pw dbname=snowlink_engine sslmode=disable"
	if got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

func TestLLMHasFallback(t *testing.T) {
	llm := LLMConfig{FallbackModel: "claude-sonnet-4-20250514", FallbackAPIKey: "key"}
	if !llm.HasFallback() {
		t.Error("expected HasFallback()=true when model and key set")
	}
	llm.FallbackAPIKey = ""
	if llm.HasFallback() {
		t.Error("expected HasFallback()=false without API key")
	}
}

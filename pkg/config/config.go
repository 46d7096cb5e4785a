package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// Config holds all configuration for snowlink-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (tokens, passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Upstream knowledge sources
	Jira       JiraConfig       `yaml:"jira"`
	Confluence ConfluenceConfig `yaml:"confluence"`

	// Extraction model endpoints
	LLM LLMConfig `yaml:"llm"`

	// Reconciliation behavior
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Warehouse whose comment metadata is kept in sync
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Checkpoint store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Optional distributed extraction cache
	Redis RedisConfig `yaml:"redis"`

	// Sync driver scheduling
	Driver DriverConfig `yaml:"driver"`

	// Generated artifact sink
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Outbound notifications
	Notify NotifyConfig `yaml:"notify"`

	// Webhook ingress
	Webhook WebhookConfig `yaml:"webhook"`
}

// JiraConfig holds ticket-tracker source settings.
type JiraConfig struct {
	Enabled  bool     `yaml:"enabled" env:"JIRA_ENABLED" env-default:"true"`
	BaseURL  string   `yaml:"base_url" env:"JIRA_URL" env-default:""`
	User     string   `yaml:"user" env:"JIRA_USER" env-default:""`
	APIToken string   `yaml:"-" env:"JIRA_API_TOKEN"` // Secret - not in YAML
	Projects []string `yaml:"projects"`
	Labels   []string `yaml:"labels"`
}

// ConfluenceConfig holds wiki source settings.
type ConfluenceConfig struct {
	Enabled  bool     `yaml:"enabled" env:"CONFLUENCE_ENABLED" env-default:"true"`
	BaseURL  string   `yaml:"base_url" env:"CONFLUENCE_URL" env-default:""`
	User     string   `yaml:"user" env:"CONFLUENCE_USER" env-default:""`
	APIToken string   `yaml:"-" env:"CONFLUENCE_API_TOKEN"` // Secret - not in YAML
	Spaces   []string `yaml:"spaces"`
}

// LLMConfig holds extraction model endpoints. The fallback provider is
// optional; when configured, extraction fails over to it on transient
// primary failures.
type LLMConfig struct {
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	FallbackModel  string  `yaml:"fallback_model" env:"LLM_FALLBACK_MODEL" env-default:""`
	FallbackAPIKey string  `yaml:"-" env:"LLM_FALLBACK_API_KEY"` // Secret - not in YAML
}

// HasFallback reports whether a fallback provider is configured.
func (c *LLMConfig) HasFallback() bool {
	return c.FallbackModel != "" && c.FallbackAPIKey != ""
}

// ReconcileConfig holds reconciliation engine settings.
type ReconcileConfig struct {
	// AuthoritativeSource wins cross-source conflicts ("jira" or "confluence").
	AuthoritativeSource string `yaml:"authoritative_source" env:"RECONCILE_AUTHORITATIVE_SOURCE" env-default:"jira"`
	// ConfidenceThreshold gates mutations: facts below it are held for review.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"RECONCILE_CONFIDENCE_THRESHOLD" env-default:"0.7"`
	// HistoryLimit bounds the superseded-fact history per entity record.
	HistoryLimit int `yaml:"history_limit" env:"RECONCILE_HISTORY_LIMIT" env-default:"10"`
}

// WarehouseConfig holds the target warehouse connection settings.
type WarehouseConfig struct {
	Type     string `yaml:"type" env:"WAREHOUSE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"WAREHOUSE_USER" env-default:""`
	Password string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:"ANALYTICS"`
	SSLMode  string `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
}

// DatabaseConfig holds checkpoint-store PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"snowlink"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"snowlink_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds the optional extraction-cache Redis settings.
// Leave Host empty to run with the in-process cache only.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      int    `yaml:"ttl_seconds" env:"REDIS_TTL_SECONDS" env-default:"86400"`
}

// DriverConfig holds sync driver scheduling settings.
type DriverConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"DRIVER_POLL_INTERVAL" env-default:"5m"`
	Workers      int           `yaml:"workers" env:"DRIVER_WORKERS" env-default:"4"`
	QueueSize    int           `yaml:"queue_size" env:"DRIVER_QUEUE_SIZE" env-default:"256"`
	// SourceRatePerSecond is the shared token budget per external system.
	SourceRatePerSecond float64 `yaml:"source_rate_per_second" env:"DRIVER_SOURCE_RATE_PER_SECOND" env-default:"5"`
}

// ArtifactsConfig holds generated artifact sink settings.
type ArtifactsConfig struct {
	OutputDir       string `yaml:"output_dir" env:"ARTIFACTS_OUTPUT_DIR" env-default:"output"`
	Materialization string `yaml:"materialization" env:"ARTIFACTS_MATERIALIZATION" env-default:"table"`
}

// NotifyConfig holds notification channel settings. All channels are
// fire-and-forget; delivery failure never fails the pipeline.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"-" env:"SLACK_WEBHOOK_URL"` // Secret - not in YAML
	SlackChannel    string `yaml:"slack_channel" env:"SLACK_CHANNEL" env-default:"#data-sync"`
	TeamsWebhookURL string `yaml:"-" env:"TEAMS_WEBHOOK_URL"` // Secret - not in YAML
}

// WebhookConfig holds webhook ingress settings.
type WebhookConfig struct {
	// SigningSecret verifies JWT-signed webhook deliveries. Empty disables
	// verification (local development only).
	SigningSecret string `yaml:"-" env:"WEBHOOK_SIGNING_SECRET"` // Secret - not in YAML
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml does not exist, configuration comes from
// the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Reconcile.AuthoritativeSource {
	case models.SourceJira, models.SourceConfluence:
	default:
		return fmt.Errorf("reconcile.authoritative_source must be %q or %q, got %q",
			models.SourceJira, models.SourceConfluence, c.Reconcile.AuthoritativeSource)
	}

	if c.Reconcile.ConfidenceThreshold < 0 || c.Reconcile.ConfidenceThreshold > 1 {
		return fmt.Errorf("reconcile.confidence_threshold must be in [0,1], got %v",
			c.Reconcile.ConfidenceThreshold)
	}

	switch c.Warehouse.Type {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("warehouse.type must be postgres or mssql, got %q", c.Warehouse.Type)
	}

	if c.Driver.Workers < 1 {
		return fmt.Errorf("driver.workers must be at least 1, got %d", c.Driver.Workers)
	}

	return nil
}

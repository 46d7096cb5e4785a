package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/artifacts"
	"github.com/snowlink-io/snowlink-engine/pkg/audit"
	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/database"
	"github.com/snowlink-io/snowlink-engine/pkg/driver"
	"github.com/snowlink-io/snowlink-engine/pkg/engine"
	"github.com/snowlink-io/snowlink-engine/pkg/extractor"
	"github.com/snowlink-io/snowlink-engine/pkg/handlers"
	"github.com/snowlink-io/snowlink-engine/pkg/llm"
	"github.com/snowlink-io/snowlink-engine/pkg/middleware"
	"github.com/snowlink-io/snowlink-engine/pkg/notify"
	"github.com/snowlink-io/snowlink-engine/pkg/repositories"
	"github.com/snowlink-io/snowlink-engine/pkg/sources"
	_ "github.com/snowlink-io/snowlink-engine/pkg/sources/confluence"
	_ "github.com/snowlink-io/snowlink-engine/pkg/sources/jira"
	"github.com/snowlink-io/snowlink-engine/pkg/warehouse"
	_ "github.com/snowlink-io/snowlink-engine/pkg/warehouse/mssql"
	_ "github.com/snowlink-io/snowlink-engine/pkg/warehouse/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

// defaultSchema is assumed for facts that name a table without qualifying
// the schema.
const defaultSchema = "PUBLIC"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Engine exited with error", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("warehouse_type", cfg.Warehouse.Type),
		zap.String("authoritative_source", cfg.Reconcile.AuthoritativeSource),
		zap.Duration("poll_interval", cfg.Driver.PollInterval))

	// Checkpoint store.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect to checkpoint store: %w", err)
	}
	defer db.Close()

	// Run migrations using database/sql (required by golang-migrate).
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("run migrations: %w", err)
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	records := repositories.NewEntityRecordRepository(db)
	mutations := repositories.NewMutationRepository(db)
	checkpoints := repositories.NewCheckpointRepository(db)
	batches := repositories.NewBatchRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	recorder := audit.NewRecorder(auditRepo, logger)

	enabled, err := sources.EnabledSources(cfg, logger)
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	if len(enabled) == 0 {
		return fmt.Errorf("no sources enabled")
	}
	sourcesByType := make(map[string]sources.Source, len(enabled))
	for _, src := range enabled {
		if err := src.CheckConnection(ctx); err != nil {
			return fmt.Errorf("source %s unreachable: %w", src.Type(), err)
		}
		sourcesByType[src.Type()] = src
		logger.Info("Source connected", zap.String("source_system", src.Type()))
	}

	wh, err := warehouse.New(ctx, &cfg.Warehouse, logger)
	if err != nil {
		return fmt.Errorf("connect to warehouse: %w", err)
	}
	defer func() { _ = wh.Close() }()
	if err := wh.CheckConnection(ctx); err != nil {
		return fmt.Errorf("warehouse unreachable: %w", err)
	}

	client, err := newLLMClient(&cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	cache := extractor.NewCache(redisClient, time.Duration(cfg.Redis.TTL)*time.Second, logger)
	ext := extractor.New(client, cache, cfg.Warehouse.Database, defaultSchema, cfg.LLM.Temperature, logger)

	eng := engine.New(records, mutations, wh, recorder, &cfg.Reconcile, logger)

	drv := driver.New(&cfg.Driver, driver.Deps{
		Sources:     sourcesByType,
		Extractor:   ext,
		Engine:      eng,
		Records:     records,
		Mutations:   mutations,
		Checkpoints: checkpoints,
		Batches:     batches,
		Generator:   artifacts.New(cfg.Artifacts.Materialization),
		Sink:        artifacts.NewFileSink(cfg.Artifacts.OutputDir, logger),
		Notifier:    notify.New(&cfg.Notify, logger),
		Audit:       recorder,
	}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewWebhookHandler(&cfg.Webhook, drv, logger).RegisterRoutes(mux)
	handlers.NewDashboardHandler(records, batches, auditRepo, mutations, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	driverErr := make(chan error, 1)
	go func() {
		driverErr <- drv.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
		stop()
	case err := <-driverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("sync driver: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Engine stopped")
	return runErr
}

// newLLMClient builds the extraction client: an OpenAI-compatible primary,
// with an optional Anthropic fallback for transient primary failures.
func newLLMClient(cfg *config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	primary, err := llm.NewOpenAIClient(&llm.OpenAIConfig{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}, logger)
	if err != nil {
		return nil, err
	}

	if !cfg.HasFallback() {
		return primary, nil
	}

	fallback, err := llm.NewAnthropicClient(&llm.AnthropicConfig{
		APIKey: cfg.FallbackAPIKey,
		Model:  cfg.FallbackModel,
	}, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewFallbackClient(primary, []llm.Client{fallback}, logger), nil
}

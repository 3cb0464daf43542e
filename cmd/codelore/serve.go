package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codelore/codelore"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion and maintenance daemon",
		Long: `Run the codelore daemon: the background worker that ingests repositories,
builds the knowledge graph, generates documentation, and runs periodic
refresh and retention sweeps.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  DATA_DIR                     Data directory (default: ~/.codelore)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/codelore.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)

  CHAT_ENDPOINT_*              Chat completion AI service configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., gpt-4o-mini)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 3)

  EMBEDDING_ENDPOINT_*         Embedding AI service configuration
    (same fields as CHAT_ENDPOINT, plus MAX_BATCH_SIZE)

  SOURCE_API_BASE              Source host REST API root (default: https://api.github.com)
  SOURCE_TOKEN                 Access token for private repositories

  INGESTION_AUTO_DOCS          Generate documentation after ingestion (default: true)
  INGESTION_REFRESH_INTERVAL_SECONDS  Repository refresh interval (default: 1800)
  DOCS_MIN_QUALITY_SCORE       Documentation quality floor (default: 0.7)
  RATE_LIMIT_REQUESTS_PER_MINUTE      Provider request ceiling (default: 20)
  RATE_LIMIT_MAX_TOKENS_PER_DAY       Provider token ceiling (default: 1000000)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, dataDir)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.codelore)")

	return cmd
}

func runServe(envFile, dataDir string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg = cfg.Apply(config.WithDataDir(dataDir))
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	slogger := log.New(cfg)

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting codelore", attrs...)

	opts := append(clientOptions(cfg), codelore.WithLogger(slogger))

	client, err := codelore.New(opts...)
	if err != nil {
		return fmt.Errorf("create codelore client: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slogger.Info("shutting down", slog.String("signal", sig.String()))

	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close codelore client: %w", err)
		}
	case <-time.After(30 * time.Second):
		return fmt.Errorf("close codelore client: timed out after 30s")
	}

	return nil
}

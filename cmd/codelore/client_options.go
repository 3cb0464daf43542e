package main

import (
	"strings"

	"github.com/codelore/codelore"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/retry"
)

// clientOptions returns the codelore.Option slice derived from the shared
// parts of AppConfig: database storage, AI endpoints, source host access,
// and the per-pipeline tuning configs. Callers append entrypoint-specific
// options before passing the full slice to codelore.New.
func clientOptions(cfg config.AppConfig) []codelore.Option {
	opts := []codelore.Option{
		codelore.WithDataDir(cfg.DataDir()),
	}

	opts = append(opts, storageOptions(cfg)...)
	opts = append(opts, providerOptions(cfg)...)
	opts = append(opts, sourceOptions(cfg)...)

	opts = append(opts,
		codelore.WithChatConfig(cfg.Chat()),
		codelore.WithConversationConfig(cfg.Conversation()),
		codelore.WithIngestionConfig(cfg.Ingestion()),
		codelore.WithDocsConfig(cfg.Docs()),
		codelore.WithGraphConfig(cfg.Graph()),
		codelore.WithIndexingConfig(cfg.Indexing()),
		codelore.WithRateLimitConfig(cfg.RateLimit()),
	)

	return opts
}

// storageOptions returns the codelore.Option for the configured database
// backend. An empty DB_URL falls back to SQLite under the data directory.
func storageOptions(cfg config.AppConfig) []codelore.Option {
	dbURL := cfg.DBURL()

	if dbURL != "" && !isSQLite(dbURL) {
		return []codelore.Option{codelore.WithPostgres(dbURL)}
	}

	dbPath := cfg.DataDir() + "/codelore.db"
	if dbURL != "" && isSQLite(dbURL) {
		dbPath = strings.TrimPrefix(dbURL, "sqlite:///")
		if dbPath == dbURL {
			dbPath = strings.TrimPrefix(dbURL, "sqlite:")
		}
	}

	return []codelore.Option{codelore.WithSQLite(dbPath)}
}

// providerOptions maps the chat and embedding endpoints to provider options.
// Unconfigured endpoints are skipped: the client falls back to the local
// embedder, and chat stays disabled without a chat endpoint.
func providerOptions(cfg config.AppConfig) []codelore.Option {
	var opts []codelore.Option

	if chat := cfg.ChatEndpoint(); chat != nil && chat.IsConfigured() {
		opts = append(opts, codelore.WithTextProvider(openAIFromEndpoint(*chat, true)))
	}
	if emb := cfg.EmbeddingEndpoint(); emb != nil && emb.IsConfigured() {
		opts = append(opts, codelore.WithEmbeddingProvider(openAIFromEndpoint(*emb, false)))
	}

	return opts
}

// openAIFromEndpoint builds an OpenAI-compatible provider from endpoint
// config. The same constructor serves chat and embedding endpoints; only
// the model option differs.
func openAIFromEndpoint(e config.Endpoint, chat bool) *provider.OpenAIProvider {
	policy := retry.DefaultPolicy()
	if e.MaxRetries() > 0 {
		policy = policy.WithAttempts(e.MaxRetries())
	}

	popts := []provider.OpenAIOption{
		provider.WithRetryPolicy(policy),
	}
	if e.BaseURL() != "" {
		popts = append(popts, provider.WithBaseURL(e.BaseURL()))
	}
	if chat {
		popts = append(popts, provider.WithChatModel(e.Model()))
	} else {
		popts = append(popts, provider.WithEmbeddingModel(e.Model()))
		if e.MaxBatchSize() > 0 {
			popts = append(popts, provider.WithEmbeddingBatchSize(e.MaxBatchSize()))
		}
	}

	return provider.NewOpenAIProvider(e.APIKey(), popts...)
}

// sourceOptions maps source host config to client options.
func sourceOptions(cfg config.AppConfig) []codelore.Option {
	source := cfg.Source()

	var opts []codelore.Option
	if source.APIBaseURL() != "" {
		opts = append(opts, codelore.WithSourceAPIBase(source.APIBaseURL()))
	}
	if source.Token() != "" {
		opts = append(opts, codelore.WithSourceToken(source.Token()))
	}
	return opts
}

// isSQLite checks if the database URL is for SQLite.
func isSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite:")
}

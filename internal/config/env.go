// Package config provides application configuration.
package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., CHAT_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.codelore
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/codelore.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of valid API keys.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// ChatEndpoint configures the chat completion AI service.
	ChatEndpoint EndpointEnv `envconfig:"CHAT_ENDPOINT"`

	// EmbeddingEndpoint configures the embedding AI service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// Chat configures response generation parameters.
	Chat ChatEnv `envconfig:"CHAT"`

	// Conversation configures conversation lifecycle management.
	Conversation ConversationEnv `envconfig:"CONVERSATION"`

	// Ingestion configures the repository ingestion pipeline.
	Ingestion IngestionEnv `envconfig:"INGESTION"`

	// Docs configures documentation generation.
	Docs DocsEnv `envconfig:"DOCS"`

	// Graph configures knowledge-graph construction.
	Graph GraphEnv `envconfig:"GRAPH"`

	// Indexing configures chunking and the hybrid content index.
	Indexing IndexingEnv `envconfig:"INDEXING"`

	// RateLimit configures AI provider usage ceilings.
	RateLimit RateLimitEnv `envconfig:"RATE_LIMIT"`

	// Source configures repository host access.
	Source SourceEnv `envconfig:"SOURCE"`

	// Reporting configures progress reporting.
	Reporting ReportingEnv `envconfig:"REPORTING"`

	// WorkerCount is the number of background workers.
	// Env: WORKER_COUNT (default: 1)
	WorkerCount int `envconfig:"WORKER_COUNT" default:"1"`

	// SearchLimit is the default search result limit.
	// Env: SEARCH_LIMIT (default: 10)
	SearchLimit int `envconfig:"SEARCH_LIMIT" default:"10"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier (e.g., gpt-4o-mini or text-embedding-3-small).
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// NumParallelTasks is the number of parallel tasks.
	// Env: *_NUM_PARALLEL_TASKS (default: 1)
	NumParallelTasks int `envconfig:"NUM_PARALLEL_TASKS" default:"1"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 3)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`

	// ExtraParams is a JSON-encoded map of extra parameters.
	// Env: *_EXTRA_PARAMS
	ExtraParams string `envconfig:"EXTRA_PARAMS"`

	// MaxTokens is the maximum token limit per response.
	// Env: *_MAX_TOKENS (default: 3000)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"3000"`

	// MaxBatchSize is the maximum number of inputs per embedding batch.
	// Env: *_MAX_BATCH_SIZE (default: 8)
	MaxBatchSize int `envconfig:"MAX_BATCH_SIZE" default:"8"`
}

// ChatEnv holds environment configuration for response generation.
type ChatEnv struct {
	// Temperature is the sampling temperature.
	// Env: CHAT_TEMPERATURE (default: 0.7)
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.7"`

	// TopP is the nucleus sampling parameter.
	// Env: CHAT_TOP_P (default: 0.95)
	TopP float64 `envconfig:"TOP_P" default:"0.95"`

	// MaxContextItems caps retrieved items per prompt.
	// Env: CHAT_MAX_CONTEXT_ITEMS (default: 10)
	MaxContextItems int `envconfig:"MAX_CONTEXT_ITEMS" default:"10"`

	// MaxConversationHistory caps prior turns per prompt.
	// Env: CHAT_MAX_CONVERSATION_HISTORY (default: 20)
	MaxConversationHistory int `envconfig:"MAX_CONVERSATION_HISTORY" default:"20"`

	// MaxContextTokens caps retrieved context tokens per prompt.
	// Env: CHAT_MAX_CONTEXT_TOKENS (default: 8000)
	MaxContextTokens int `envconfig:"MAX_CONTEXT_TOKENS" default:"8000"`

	// MaxPromptTokens caps the assembled prompt size.
	// Env: CHAT_MAX_PROMPT_TOKENS (default: 12000)
	MaxPromptTokens int `envconfig:"MAX_PROMPT_TOKENS" default:"12000"`

	// MinIntentConfidence is the floor below which intent classification
	// falls back to the default intent.
	// Env: CHAT_MIN_INTENT_CONFIDENCE (default: 0.3)
	MinIntentConfidence float64 `envconfig:"MIN_INTENT_CONFIDENCE" default:"0.3"`

	// FollowUpQuestions is how many follow-up questions to generate.
	// Env: CHAT_FOLLOW_UP_QUESTIONS (default: 3)
	FollowUpQuestions int `envconfig:"FOLLOW_UP_QUESTIONS" default:"3"`

	// SummaryAfterTurns is the turn count past which retrieval folds a
	// conversation summary into the search text.
	// Env: CHAT_SUMMARY_AFTER_TURNS (default: 6)
	SummaryAfterTurns int `envconfig:"SUMMARY_AFTER_TURNS" default:"6"`
}

// ConversationEnv holds environment configuration for conversation lifecycle.
type ConversationEnv struct {
	// MaxMessages caps messages per conversation.
	// Env: CONVERSATION_MAX_MESSAGES (default: 200)
	MaxMessages int `envconfig:"MAX_MESSAGES" default:"200"`

	// MaxPerUser caps active conversations per user.
	// Env: CONVERSATION_MAX_PER_USER (default: 100)
	MaxPerUser int `envconfig:"MAX_PER_USER" default:"100"`

	// RetentionDays is how long deleted conversations are retained.
	// Env: CONVERSATION_RETENTION_DAYS (default: 90)
	RetentionDays int `envconfig:"RETENTION_DAYS" default:"90"`

	// AutoArchiveAfterHours is the idle window before auto-archiving.
	// Env: CONVERSATION_AUTO_ARCHIVE_AFTER_HOURS (default: 168)
	AutoArchiveAfterHours int `envconfig:"AUTO_ARCHIVE_AFTER_HOURS" default:"168"`

	// CleanupIntervalHours is how often the maintenance sweep runs.
	// Env: CONVERSATION_CLEANUP_INTERVAL_HOURS (default: 24)
	CleanupIntervalHours int `envconfig:"CLEANUP_INTERVAL_HOURS" default:"24"`

	// CleanupBatchSize caps removals per sweep.
	// Env: CONVERSATION_CLEANUP_BATCH_SIZE (default: 100)
	CleanupBatchSize int `envconfig:"CLEANUP_BATCH_SIZE" default:"100"`
}

// IngestionEnv holds environment configuration for the ingestion pipeline.
type IngestionEnv struct {
	// MaxConcurrent caps parallel repository ingestions.
	// Env: INGESTION_MAX_CONCURRENT (default: 5)
	MaxConcurrent int `envconfig:"MAX_CONCURRENT" default:"5"`

	// AutoDocs controls whether documentation generation follows ingestion.
	// Env: INGESTION_AUTO_DOCS (default: true)
	AutoDocs bool `envconfig:"AUTO_DOCS" default:"true"`

	// RefreshEnabled controls periodic repository refresh.
	// Env: INGESTION_REFRESH_ENABLED (default: true)
	RefreshEnabled bool `envconfig:"REFRESH_ENABLED" default:"true"`

	// RefreshIntervalSeconds is the refresh interval in seconds.
	// Env: INGESTION_REFRESH_INTERVAL_SECONDS (default: 1800)
	RefreshIntervalSeconds float64 `envconfig:"REFRESH_INTERVAL_SECONDS" default:"1800"`

	// RetryAttempts is the retry count for transient failures.
	// Env: INGESTION_RETRY_ATTEMPTS (default: 3)
	RetryAttempts int `envconfig:"RETRY_ATTEMPTS" default:"3"`
}

// DocsEnv holds environment configuration for documentation generation.
type DocsEnv struct {
	// MaxConcurrent caps parallel documentation runs.
	// Env: DOCS_MAX_CONCURRENT (default: 3)
	MaxConcurrent int `envconfig:"MAX_CONCURRENT" default:"3"`

	// MaxTokensPerSection caps one section generation call.
	// Env: DOCS_MAX_TOKENS_PER_SECTION (default: 4000)
	MaxTokensPerSection int `envconfig:"MAX_TOKENS_PER_SECTION" default:"4000"`

	// SectionTemperature is the sampling temperature for section generation.
	// Env: DOCS_SECTION_TEMPERATURE (default: 0.3)
	SectionTemperature float64 `envconfig:"SECTION_TEMPERATURE" default:"0.3"`

	// MinQualityScore is the quality floor for accepting a run.
	// Env: DOCS_MIN_QUALITY_SCORE (default: 0.7)
	MinQualityScore float64 `envconfig:"MIN_QUALITY_SCORE" default:"0.7"`

	// Enrichment controls the LLM enrichment pass.
	// Env: DOCS_ENRICHMENT (default: true)
	Enrichment bool `envconfig:"ENRICHMENT" default:"true"`
}

// GraphEnv holds environment configuration for knowledge-graph construction.
type GraphEnv struct {
	// MaxConcurrentAnalysis caps concurrent file parses per repository.
	// Env: GRAPH_MAX_CONCURRENT_ANALYSIS (default: 5)
	MaxConcurrentAnalysis int `envconfig:"MAX_CONCURRENT_ANALYSIS" default:"5"`

	// MinRelationshipConfidence is the confidence floor for keeping an edge.
	// Env: GRAPH_MIN_RELATIONSHIP_CONFIDENCE (default: 0.6)
	MinRelationshipConfidence float64 `envconfig:"MIN_RELATIONSHIP_CONFIDENCE" default:"0.6"`

	// MinPatternConfidence is the confidence floor for keeping a pattern.
	// Env: GRAPH_MIN_PATTERN_CONFIDENCE (default: 0.7)
	MinPatternConfidence float64 `envconfig:"MIN_PATTERN_CONFIDENCE" default:"0.7"`

	// MaxRelationshipDepth bounds neighborhood traversals.
	// Env: GRAPH_MAX_RELATIONSHIP_DEPTH (default: 3)
	MaxRelationshipDepth int `envconfig:"MAX_RELATIONSHIP_DEPTH" default:"3"`

	// MaxEntitiesPerRepository caps extracted entities per repository.
	// Env: GRAPH_MAX_ENTITIES_PER_REPOSITORY (default: 50000)
	MaxEntitiesPerRepository int `envconfig:"MAX_ENTITIES_PER_REPOSITORY" default:"50000"`

	// EntityBatchSize is the persistence batch size for entities.
	// Env: GRAPH_ENTITY_BATCH_SIZE (default: 100)
	EntityBatchSize int `envconfig:"ENTITY_BATCH_SIZE" default:"100"`

	// RefreshIntervalSeconds is the staleness-check interval in seconds.
	// Env: GRAPH_REFRESH_INTERVAL_SECONDS (default: 21600)
	RefreshIntervalSeconds float64 `envconfig:"REFRESH_INTERVAL_SECONDS" default:"21600"`
}

// IndexingEnv holds environment configuration for the content index.
type IndexingEnv struct {
	// MaxFileContentLength is the chunk size ceiling in bytes.
	// Env: INDEXING_MAX_FILE_CONTENT_LENGTH (default: 32768)
	MaxFileContentLength int `envconfig:"MAX_FILE_CONTENT_LENGTH" default:"32768"`

	// ChunkOverlapPercent is the overlap between adjacent chunks as a
	// percentage of the chunk size ceiling.
	// Env: INDEXING_CHUNK_OVERLAP_PERCENT (default: 10)
	ChunkOverlapPercent int `envconfig:"CHUNK_OVERLAP_PERCENT" default:"10"`

	// BatchSize is how many documents one index write carries.
	// Env: INDEXING_BATCH_SIZE (default: 100)
	BatchSize int `envconfig:"BATCH_SIZE" default:"100"`

	// MinSearchScore is the relevance floor below which hits are dropped.
	// Env: INDEXING_MIN_SEARCH_SCORE (default: 0.5)
	MinSearchScore float64 `envconfig:"MIN_SEARCH_SCORE" default:"0.5"`

	// ExcludedExtensions is a comma-separated extension list overriding
	// the built-in binary/media/lockfile set.
	// Env: INDEXING_EXCLUDED_EXTENSIONS
	ExcludedExtensions []string `envconfig:"EXCLUDED_EXTENSIONS"`

	// IgnoredDirectories is a comma-separated directory-name list
	// overriding the built-in set.
	// Env: INDEXING_IGNORED_DIRECTORIES
	IgnoredDirectories []string `envconfig:"IGNORED_DIRECTORIES"`
}

// RateLimitEnv holds environment configuration for provider usage ceilings.
type RateLimitEnv struct {
	// RequestsPerMinute caps provider requests per minute.
	// Env: RATE_LIMIT_REQUESTS_PER_MINUTE (default: 20)
	RequestsPerMinute int `envconfig:"REQUESTS_PER_MINUTE" default:"20"`

	// MaxTokensPerDay caps provider tokens per day.
	// Env: RATE_LIMIT_MAX_TOKENS_PER_DAY (default: 1000000)
	MaxTokensPerDay int64 `envconfig:"MAX_TOKENS_PER_DAY" default:"1000000"`
}

// SourceEnv holds environment configuration for repository host access.
type SourceEnv struct {
	// APIBase is the REST API root of the source host.
	// Env: SOURCE_API_BASE (default: https://api.github.com)
	APIBase string `envconfig:"API_BASE" default:"https://api.github.com"`

	// Token is the access token for private repositories.
	// Env: SOURCE_TOKEN
	Token string `envconfig:"TOKEN"`

	// Timeout is the host API request timeout in seconds.
	// Env: SOURCE_TIMEOUT (default: 30)
	Timeout float64 `envconfig:"TIMEOUT" default:"30"`

	// MaxRetries is the maximum retry attempts for host API calls.
	// Env: SOURCE_MAX_RETRIES (default: 3)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`

	// VerifySSL controls SSL certificate verification.
	// Env: SOURCE_VERIFY_SSL (default: true)
	VerifySSL bool `envconfig:"VERIFY_SSL" default:"true"`
}

// ReportingEnv holds environment configuration for reporting.
type ReportingEnv struct {
	// LogTimeInterval is the logging interval in seconds.
	// Env: REPORTING_LOG_TIME_INTERVAL (default: 5)
	LogTimeInterval float64 `envconfig:"LOG_TIME_INTERVAL" default:"5"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "CODELORE" would require CODELORE_DATA_DIR instead
// of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Normalize clamps out-of-range numeric values back to their defaults.
// Struct tag defaults cover unset variables; this covers explicit zeros
// and negatives that would otherwise disable limits entirely.
func (e EnvConfig) Normalize() EnvConfig {
	if e.Port <= 0 {
		e.Port = DefaultPort
	}
	if e.WorkerCount <= 0 {
		e.WorkerCount = DefaultWorkerCount
	}
	if e.SearchLimit <= 0 {
		e.SearchLimit = DefaultSearchLimit
	}
	if e.Ingestion.MaxConcurrent <= 0 {
		e.Ingestion.MaxConcurrent = DefaultMaxConcurrentIngestions
	}
	if e.Docs.MaxConcurrent <= 0 {
		e.Docs.MaxConcurrent = DefaultMaxConcurrentGenerations
	}
	if e.Graph.MaxConcurrentAnalysis <= 0 {
		e.Graph.MaxConcurrentAnalysis = DefaultMaxConcurrentAnalysis
	}
	if e.Graph.EntityBatchSize <= 0 {
		e.Graph.EntityBatchSize = DefaultEntityBatchSize
	}
	if e.Conversation.MaxMessages <= 0 {
		e.Conversation.MaxMessages = DefaultMaxMessages
	}
	if e.Conversation.CleanupBatchSize <= 0 {
		e.Conversation.CleanupBatchSize = DefaultCleanupBatchSize
	}
	if e.Indexing.MaxFileContentLength <= 0 {
		e.Indexing.MaxFileContentLength = DefaultMaxFileContentLength
	}
	if e.Indexing.BatchSize <= 0 {
		e.Indexing.BatchSize = DefaultIndexBatchSize
	}
	if e.RateLimit.RequestsPerMinute <= 0 {
		e.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if e.RateLimit.MaxTokensPerDay <= 0 {
		e.RateLimit.MaxTokensPerDay = DefaultMaxTokensPerDay
	}
	return e
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	// Apply overrides from environment
	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}

	if e.APIKeys != "" {
		cfg = applyOption(cfg, WithAPIKeys(ParseAPIKeys(e.APIKeys)))
	}

	if e.ChatEndpoint.IsConfigured() {
		cfg = applyOption(cfg, WithChatEndpoint(e.ChatEndpoint.ToEndpoint()))
	}
	if e.EmbeddingEndpoint.IsConfigured() {
		cfg = applyOption(cfg, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}

	cfg = applyOption(cfg, WithChatConfig(e.Chat.ToChatConfig()))
	cfg = applyOption(cfg, WithConversationConfig(e.Conversation.ToConversationConfig()))
	cfg = applyOption(cfg, WithIngestionConfig(e.Ingestion.ToIngestionConfig()))
	cfg = applyOption(cfg, WithDocsConfig(e.Docs.ToDocsConfig()))
	cfg = applyOption(cfg, WithGraphConfig(e.Graph.ToGraphConfig()))
	cfg = applyOption(cfg, WithIndexingConfig(e.Indexing.ToIndexingConfig()))
	cfg = applyOption(cfg, WithRateLimitConfig(e.RateLimit.ToRateLimitConfig()))
	cfg = applyOption(cfg, WithSourceConfig(e.Source.ToSourceConfig()))
	cfg = applyOption(cfg, WithReportingConfig(e.Reporting.ToReportingConfig()))

	if e.WorkerCount > 0 {
		cfg = applyOption(cfg, WithWorkerCount(e.WorkerCount))
	}
	if e.SearchLimit > 0 {
		cfg = applyOption(cfg, WithSearchLimit(e.SearchLimit))
	}

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithNumParallelTasks(e.NumParallelTasks),
		WithTimeout(time.Duration(e.Timeout * float64(time.Second))),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(time.Duration(e.InitialDelay * float64(time.Second))),
		WithBackoffFactor(e.BackoffFactor),
		WithMaxTokens(e.MaxTokens),
		WithMaxBatchSize(e.MaxBatchSize),
	}

	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	if e.ExtraParams != "" {
		params := parseExtraParams(e.ExtraParams)
		if params != nil {
			opts = append(opts, WithExtraParams(params))
		}
	}

	return NewEndpointWithOptions(opts...)
}

// ToChatConfig converts ChatEnv to ChatConfig.
func (c ChatEnv) ToChatConfig() ChatConfig {
	return NewChatConfig().
		WithTemperature(c.Temperature).
		WithTopP(c.TopP).
		WithMaxContextItems(c.MaxContextItems).
		WithMaxConversationHistory(c.MaxConversationHistory).
		WithMaxContextTokens(c.MaxContextTokens).
		WithMaxPromptTokens(c.MaxPromptTokens).
		WithMinIntentConfidence(c.MinIntentConfidence).
		WithFollowUpQuestions(c.FollowUpQuestions).
		WithSummaryAfterTurns(c.SummaryAfterTurns)
}

// ToConversationConfig converts ConversationEnv to ConversationConfig.
func (c ConversationEnv) ToConversationConfig() ConversationConfig {
	return NewConversationConfig().
		WithMaxMessages(c.MaxMessages).
		WithMaxPerUser(c.MaxPerUser).
		WithRetentionDays(c.RetentionDays).
		WithAutoArchiveAfter(time.Duration(c.AutoArchiveAfterHours) * time.Hour).
		WithCleanupInterval(time.Duration(c.CleanupIntervalHours) * time.Hour).
		WithCleanupBatchSize(c.CleanupBatchSize)
}

// ToIngestionConfig converts IngestionEnv to IngestionConfig.
func (i IngestionEnv) ToIngestionConfig() IngestionConfig {
	return NewIngestionConfig().
		WithMaxConcurrent(i.MaxConcurrent).
		WithAutoDocs(i.AutoDocs).
		WithRefreshEnabled(i.RefreshEnabled).
		WithRefreshIntervalSeconds(i.RefreshIntervalSeconds).
		WithRetryAttempts(i.RetryAttempts)
}

// ToDocsConfig converts DocsEnv to DocsConfig.
func (d DocsEnv) ToDocsConfig() DocsConfig {
	return NewDocsConfig().
		WithMaxConcurrent(d.MaxConcurrent).
		WithMaxTokensPerSection(d.MaxTokensPerSection).
		WithSectionTemperature(d.SectionTemperature).
		WithMinQualityScore(d.MinQualityScore).
		WithEnrichment(d.Enrichment)
}

// ToGraphConfig converts GraphEnv to GraphConfig.
func (g GraphEnv) ToGraphConfig() GraphConfig {
	return NewGraphConfig().
		WithMaxConcurrentAnalysis(g.MaxConcurrentAnalysis).
		WithMinRelationshipConfidence(g.MinRelationshipConfidence).
		WithMinPatternConfidence(g.MinPatternConfidence).
		WithMaxRelationshipDepth(g.MaxRelationshipDepth).
		WithMaxEntitiesPerRepository(g.MaxEntitiesPerRepository).
		WithEntityBatchSize(g.EntityBatchSize).
		WithRefreshIntervalSeconds(g.RefreshIntervalSeconds)
}

// ToIndexingConfig converts IndexingEnv to IndexingConfig.
func (i IndexingEnv) ToIndexingConfig() IndexingConfig {
	return NewIndexingConfig().
		WithMaxFileContentLength(i.MaxFileContentLength).
		WithChunkOverlapPercent(i.ChunkOverlapPercent).
		WithBatchSize(i.BatchSize).
		WithMinSearchScore(i.MinSearchScore).
		WithExcludedExtensions(i.ExcludedExtensions).
		WithIgnoredDirectories(i.IgnoredDirectories)
}

// ToRateLimitConfig converts RateLimitEnv to RateLimitConfig.
func (r RateLimitEnv) ToRateLimitConfig() RateLimitConfig {
	return NewRateLimitConfig().
		WithRequestsPerMinute(r.RequestsPerMinute).
		WithMaxTokensPerDay(r.MaxTokensPerDay)
}

// ToSourceConfig converts SourceEnv to SourceConfig.
func (s SourceEnv) ToSourceConfig() SourceConfig {
	opts := []SourceConfigOption{
		WithSourceAPIBase(s.APIBase),
		WithSourceTimeout(time.Duration(s.Timeout * float64(time.Second))),
		WithSourceMaxRetries(s.MaxRetries),
		WithVerifySSL(s.VerifySSL),
	}
	if s.Token != "" {
		opts = append(opts, WithSourceToken(s.Token))
	}
	return NewSourceConfigWithOptions(opts...)
}

// ToReportingConfig converts ReportingEnv to ReportingConfig.
func (r ReportingEnv) ToReportingConfig() ReportingConfig {
	return NewReportingConfig().
		WithLogTimeInterval(time.Duration(r.LogTimeInterval * float64(time.Second)))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

// parseExtraParams parses JSON-encoded extra parameters.
func parseExtraParams(s string) map[string]any {
	if s == "" {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil
	}
	return params
}

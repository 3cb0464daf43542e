// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8080
	DefaultLogLevel    = "INFO"
	DefaultWorkerCount = 1
	DefaultSearchLimit = 10
	DefaultCloneSubdir = "repos"

	DefaultEndpointParallelTasks = 1
	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 3
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0
	DefaultEndpointMaxTokens     = 3000
	DefaultEmbeddingBatchSize    = 8

	DefaultChatTemperature         = 0.7
	DefaultChatTopP                = 0.95
	DefaultMaxContextItems         = 10
	DefaultMaxConversationHistory  = 20
	DefaultMaxContextTokens        = 8000
	DefaultMaxPromptTokens         = 12000
	DefaultMinIntentConfidence     = 0.3
	DefaultFollowUpQuestions       = 3
	DefaultSummaryAfterTurns       = 6
	DefaultMaxMessages             = 200
	DefaultMaxConversationsPerUser = 100
	DefaultRetentionDays           = 90
	DefaultAutoArchiveAfterHours   = 168
	DefaultCleanupIntervalHours    = 24
	DefaultCleanupBatchSize        = 100

	DefaultMaxConcurrentIngestions  = 5
	DefaultMaxConcurrentGenerations = 3
	DefaultMaxTokensPerSection      = 4000
	DefaultSectionTemperature       = 0.3
	DefaultMinQualityScore          = 0.7
	DefaultRefreshInterval          = 1800.0 // seconds
	DefaultRefreshCheckInterval     = 10.0   // seconds
	DefaultRefreshRetries           = 3

	DefaultMaxConcurrentAnalysis     = 5
	DefaultMinRelationshipConfidence = 0.6
	DefaultMinPatternConfidence      = 0.7
	DefaultMaxRelationshipDepth      = 3
	DefaultMaxEntitiesPerRepository  = 50_000
	DefaultEntityBatchSize           = 100
	DefaultGraphRefreshInterval      = 21600.0 // seconds

	DefaultMaxFileContentLength = 32 * 1024
	DefaultChunkOverlapPercent  = 10
	DefaultIndexBatchSize       = 100
	DefaultMinSearchScore       = 0.5

	DefaultRequestsPerMinute = 20
	DefaultMaxTokensPerDay   = 1_000_000

	DefaultSourceTimeout    = 30 * time.Second
	DefaultSourceMaxRetries = 3
	DefaultSourceAPIBase    = "https://api.github.com"

	DefaultReportingInterval = 5 * time.Second
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// ReportingConfig configures progress reporting.
type ReportingConfig struct {
	logTimeInterval time.Duration
}

// NewReportingConfig creates a new ReportingConfig with defaults.
func NewReportingConfig() ReportingConfig {
	return ReportingConfig{
		logTimeInterval: DefaultReportingInterval,
	}
}

// LogTimeInterval returns the time interval for logging progress.
func (r ReportingConfig) LogTimeInterval() time.Duration {
	return r.logTimeInterval
}

// WithLogTimeInterval returns a new config with the specified interval.
func (r ReportingConfig) WithLogTimeInterval(d time.Duration) ReportingConfig {
	r.logTimeInterval = d
	return r
}

// Endpoint configures an AI service endpoint.
type Endpoint struct {
	baseURL          string
	model            string
	apiKey           string
	numParallelTasks int
	timeout          time.Duration
	maxRetries       int
	initialDelay     time.Duration
	backoffFactor    float64
	extraParams      map[string]any
	maxTokens        int
	maxBatchSize     int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		numParallelTasks: DefaultEndpointParallelTasks,
		timeout:          DefaultEndpointTimeout,
		maxRetries:       DefaultEndpointMaxRetries,
		initialDelay:     DefaultEndpointInitialDelay,
		backoffFactor:    DefaultEndpointBackoffFactor,
		maxTokens:        DefaultEndpointMaxTokens,
		maxBatchSize:     DefaultEmbeddingBatchSize,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// NumParallelTasks returns the number of parallel tasks.
func (e Endpoint) NumParallelTasks() int { return e.numParallelTasks }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// ExtraParams returns additional provider-specific parameters.
func (e Endpoint) ExtraParams() map[string]any {
	if e.extraParams == nil {
		return nil
	}
	result := make(map[string]any, len(e.extraParams))
	for k, v := range e.extraParams {
		result[k] = v
	}
	return result
}

// MaxTokens returns the maximum token limit per response.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// MaxBatchSize returns the maximum number of inputs per embedding batch.
func (e Endpoint) MaxBatchSize() int { return e.maxBatchSize }

// IsConfigured returns true if the endpoint has required configuration.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithNumParallelTasks sets the parallel task count.
func WithNumParallelTasks(n int) EndpointOption {
	return func(e *Endpoint) { e.numParallelTasks = n }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithExtraParams sets extra provider parameters.
func WithExtraParams(params map[string]any) EndpointOption {
	return func(e *Endpoint) {
		if params != nil {
			e.extraParams = make(map[string]any, len(params))
			for k, v := range params {
				e.extraParams[k] = v
			}
		}
	}
}

// WithMaxTokens sets the maximum token limit.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// WithMaxBatchSize sets the maximum number of inputs per embedding batch.
func WithMaxBatchSize(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.maxBatchSize = n
		}
	}
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// ChatConfig configures response generation and query analysis.
type ChatConfig struct {
	temperature            float64
	topP                   float64
	maxContextItems        int
	maxConversationHistory int
	maxContextTokens       int
	maxPromptTokens        int
	minIntentConfidence    float64
	followUpQuestions      int
	summaryAfterTurns      int
}

// NewChatConfig creates a new ChatConfig with defaults.
func NewChatConfig() ChatConfig {
	return ChatConfig{
		temperature:            DefaultChatTemperature,
		topP:                   DefaultChatTopP,
		maxContextItems:        DefaultMaxContextItems,
		maxConversationHistory: DefaultMaxConversationHistory,
		maxContextTokens:       DefaultMaxContextTokens,
		maxPromptTokens:        DefaultMaxPromptTokens,
		minIntentConfidence:    DefaultMinIntentConfidence,
		followUpQuestions:      DefaultFollowUpQuestions,
		summaryAfterTurns:      DefaultSummaryAfterTurns,
	}
}

// Temperature returns the sampling temperature for chat completions.
func (c ChatConfig) Temperature() float64 { return c.temperature }

// TopP returns the nucleus sampling parameter.
func (c ChatConfig) TopP() float64 { return c.topP }

// MaxContextItems returns how many retrieved items may enter a prompt.
func (c ChatConfig) MaxContextItems() int { return c.maxContextItems }

// MaxConversationHistory returns how many prior turns may enter a prompt.
func (c ChatConfig) MaxConversationHistory() int { return c.maxConversationHistory }

// MaxContextTokens returns the token ceiling for retrieved context.
func (c ChatConfig) MaxContextTokens() int { return c.maxContextTokens }

// MaxPromptTokens returns the token ceiling for the assembled prompt.
func (c ChatConfig) MaxPromptTokens() int { return c.maxPromptTokens }

// MinIntentConfidence returns the confidence floor below which intent
// classification falls back to the default intent.
func (c ChatConfig) MinIntentConfidence() float64 { return c.minIntentConfidence }

// FollowUpQuestions returns how many follow-up questions to generate.
func (c ChatConfig) FollowUpQuestions() int { return c.followUpQuestions }

// SummaryAfterTurns returns the history length beyond which a conversation
// summary is folded into the retrieval query.
func (c ChatConfig) SummaryAfterTurns() int { return c.summaryAfterTurns }

// WithTemperature returns a new config with the specified temperature.
func (c ChatConfig) WithTemperature(t float64) ChatConfig {
	c.temperature = t
	return c
}

// WithTopP returns a new config with the specified top_p.
func (c ChatConfig) WithTopP(p float64) ChatConfig {
	c.topP = p
	return c
}

// WithMaxContextItems returns a new config with the specified item limit.
func (c ChatConfig) WithMaxContextItems(n int) ChatConfig {
	if n > 0 {
		c.maxContextItems = n
	}
	return c
}

// WithMaxConversationHistory returns a new config with the specified turn limit.
func (c ChatConfig) WithMaxConversationHistory(n int) ChatConfig {
	if n > 0 {
		c.maxConversationHistory = n
	}
	return c
}

// WithMaxContextTokens returns a new config with the specified context budget.
func (c ChatConfig) WithMaxContextTokens(n int) ChatConfig {
	if n > 0 {
		c.maxContextTokens = n
	}
	return c
}

// WithMaxPromptTokens returns a new config with the specified prompt budget.
func (c ChatConfig) WithMaxPromptTokens(n int) ChatConfig {
	if n > 0 {
		c.maxPromptTokens = n
	}
	return c
}

// WithMinIntentConfidence returns a new config with the specified floor.
func (c ChatConfig) WithMinIntentConfidence(f float64) ChatConfig {
	c.minIntentConfidence = f
	return c
}

// WithFollowUpQuestions returns a new config with the specified count.
func (c ChatConfig) WithFollowUpQuestions(n int) ChatConfig {
	if n > 0 {
		c.followUpQuestions = n
	}
	return c
}

// WithSummaryAfterTurns returns a new config with the specified threshold.
func (c ChatConfig) WithSummaryAfterTurns(n int) ChatConfig {
	if n > 0 {
		c.summaryAfterTurns = n
	}
	return c
}

// ConversationConfig configures conversation lifecycle management.
type ConversationConfig struct {
	maxMessages      int
	maxPerUser       int
	retentionDays    int
	autoArchiveAfter time.Duration
	cleanupInterval  time.Duration
	cleanupBatchSize int
}

// NewConversationConfig creates a new ConversationConfig with defaults.
func NewConversationConfig() ConversationConfig {
	return ConversationConfig{
		maxMessages:      DefaultMaxMessages,
		maxPerUser:       DefaultMaxConversationsPerUser,
		retentionDays:    DefaultRetentionDays,
		autoArchiveAfter: DefaultAutoArchiveAfterHours * time.Hour,
		cleanupInterval:  DefaultCleanupIntervalHours * time.Hour,
		cleanupBatchSize: DefaultCleanupBatchSize,
	}
}

// MaxMessages returns the message cap per conversation.
func (c ConversationConfig) MaxMessages() int { return c.maxMessages }

// MaxPerUser returns the active conversation cap per user.
func (c ConversationConfig) MaxPerUser() int { return c.maxPerUser }

// RetentionDays returns how long deleted conversations are retained
// before permanent removal.
func (c ConversationConfig) RetentionDays() int { return c.retentionDays }

// AutoArchiveAfter returns the idle duration after which active
// conversations are archived.
func (c ConversationConfig) AutoArchiveAfter() time.Duration { return c.autoArchiveAfter }

// CleanupInterval returns how often the maintenance sweep runs.
func (c ConversationConfig) CleanupInterval() time.Duration { return c.cleanupInterval }

// CleanupBatchSize returns how many conversations one sweep may remove.
func (c ConversationConfig) CleanupBatchSize() int { return c.cleanupBatchSize }

// WithMaxMessages returns a new config with the specified message cap.
func (c ConversationConfig) WithMaxMessages(n int) ConversationConfig {
	if n > 0 {
		c.maxMessages = n
	}
	return c
}

// WithMaxPerUser returns a new config with the specified per-user cap.
func (c ConversationConfig) WithMaxPerUser(n int) ConversationConfig {
	if n > 0 {
		c.maxPerUser = n
	}
	return c
}

// WithRetentionDays returns a new config with the specified retention.
func (c ConversationConfig) WithRetentionDays(n int) ConversationConfig {
	if n > 0 {
		c.retentionDays = n
	}
	return c
}

// WithAutoArchiveAfter returns a new config with the specified idle window.
func (c ConversationConfig) WithAutoArchiveAfter(d time.Duration) ConversationConfig {
	if d > 0 {
		c.autoArchiveAfter = d
	}
	return c
}

// WithCleanupInterval returns a new config with the specified sweep interval.
func (c ConversationConfig) WithCleanupInterval(d time.Duration) ConversationConfig {
	if d > 0 {
		c.cleanupInterval = d
	}
	return c
}

// WithCleanupBatchSize returns a new config with the specified batch size.
func (c ConversationConfig) WithCleanupBatchSize(n int) ConversationConfig {
	if n > 0 {
		c.cleanupBatchSize = n
	}
	return c
}

// IngestionConfig configures the repository ingestion pipeline.
type IngestionConfig struct {
	maxConcurrent        int
	autoDocs             bool
	refreshEnabled       bool
	refreshInterval      float64
	refreshCheckInterval float64
	retryAttempts        int
}

// NewIngestionConfig creates a new IngestionConfig with defaults.
func NewIngestionConfig() IngestionConfig {
	return IngestionConfig{
		maxConcurrent:        DefaultMaxConcurrentIngestions,
		autoDocs:             true,
		refreshEnabled:       true,
		refreshInterval:      DefaultRefreshInterval,
		refreshCheckInterval: DefaultRefreshCheckInterval,
		retryAttempts:        DefaultRefreshRetries,
	}
}

// MaxConcurrent returns how many repositories may ingest in parallel.
func (c IngestionConfig) MaxConcurrent() int { return c.maxConcurrent }

// AutoDocs returns whether documentation generation follows ingestion.
func (c IngestionConfig) AutoDocs() bool { return c.autoDocs }

// RefreshEnabled returns whether periodic refresh is enabled.
func (c IngestionConfig) RefreshEnabled() bool { return c.refreshEnabled }

// RefreshInterval returns the refresh interval as a duration.
func (c IngestionConfig) RefreshInterval() time.Duration {
	return time.Duration(c.refreshInterval * float64(time.Second))
}

// RefreshCheckInterval returns how often to check for repositories due
// for refresh.
func (c IngestionConfig) RefreshCheckInterval() time.Duration {
	return time.Duration(c.refreshCheckInterval * float64(time.Second))
}

// RetryAttempts returns the retry count for transient pipeline failures.
func (c IngestionConfig) RetryAttempts() int { return c.retryAttempts }

// WithMaxConcurrent returns a new config with the specified concurrency.
func (c IngestionConfig) WithMaxConcurrent(n int) IngestionConfig {
	if n > 0 {
		c.maxConcurrent = n
	}
	return c
}

// WithAutoDocs returns a new config with the specified docs policy.
func (c IngestionConfig) WithAutoDocs(enabled bool) IngestionConfig {
	c.autoDocs = enabled
	return c
}

// WithRefreshEnabled returns a new config with the specified refresh state.
func (c IngestionConfig) WithRefreshEnabled(enabled bool) IngestionConfig {
	c.refreshEnabled = enabled
	return c
}

// WithRefreshIntervalSeconds returns a new config with the specified interval.
func (c IngestionConfig) WithRefreshIntervalSeconds(seconds float64) IngestionConfig {
	if seconds > 0 {
		c.refreshInterval = seconds
	}
	return c
}

// WithRefreshCheckIntervalSeconds returns a new config with the specified check interval.
func (c IngestionConfig) WithRefreshCheckIntervalSeconds(seconds float64) IngestionConfig {
	if seconds > 0 {
		c.refreshCheckInterval = seconds
	}
	return c
}

// WithRetryAttempts returns a new config with the specified retry count.
func (c IngestionConfig) WithRetryAttempts(n int) IngestionConfig {
	if n >= 0 {
		c.retryAttempts = n
	}
	return c
}

// DocsConfig configures documentation generation.
type DocsConfig struct {
	maxConcurrent       int
	maxTokensPerSection int
	sectionTemperature  float64
	minQualityScore     float64
	enrichment          bool
}

// NewDocsConfig creates a new DocsConfig with defaults.
func NewDocsConfig() DocsConfig {
	return DocsConfig{
		maxConcurrent:       DefaultMaxConcurrentGenerations,
		maxTokensPerSection: DefaultMaxTokensPerSection,
		sectionTemperature:  DefaultSectionTemperature,
		minQualityScore:     DefaultMinQualityScore,
		enrichment:          true,
	}
}

// MaxConcurrent returns how many sections may generate in parallel.
func (c DocsConfig) MaxConcurrent() int { return c.maxConcurrent }

// MaxTokensPerSection returns the token cap for one section generation call.
func (c DocsConfig) MaxTokensPerSection() int { return c.maxTokensPerSection }

// SectionTemperature returns the sampling temperature for section
// generation.
func (c DocsConfig) SectionTemperature() float64 { return c.sectionTemperature }

// MinQualityScore returns the quality floor below which a documentation
// run is rejected.
func (c DocsConfig) MinQualityScore() float64 { return c.minQualityScore }

// Enrichment returns whether the LLM enrichment pass runs.
func (c DocsConfig) Enrichment() bool { return c.enrichment }

// WithMaxConcurrent returns a new config with the specified concurrency.
func (c DocsConfig) WithMaxConcurrent(n int) DocsConfig {
	if n > 0 {
		c.maxConcurrent = n
	}
	return c
}

// WithMaxTokensPerSection returns a new config with the specified cap.
func (c DocsConfig) WithMaxTokensPerSection(n int) DocsConfig {
	if n > 0 {
		c.maxTokensPerSection = n
	}
	return c
}

// WithSectionTemperature returns a new config with the specified temperature.
func (c DocsConfig) WithSectionTemperature(t float64) DocsConfig {
	if t >= 0 {
		c.sectionTemperature = t
	}
	return c
}

// WithMinQualityScore returns a new config with the specified floor.
func (c DocsConfig) WithMinQualityScore(f float64) DocsConfig {
	if f > 0 {
		c.minQualityScore = f
	}
	return c
}

// WithEnrichment returns a new config with the specified enrichment state.
func (c DocsConfig) WithEnrichment(enabled bool) DocsConfig {
	c.enrichment = enabled
	return c
}

// GraphConfig configures knowledge-graph construction.
type GraphConfig struct {
	maxConcurrentAnalysis     int
	minRelationshipConfidence float64
	minPatternConfidence      float64
	maxRelationshipDepth      int
	maxEntitiesPerRepository  int
	entityBatchSize           int
	refreshInterval           float64
}

// NewGraphConfig creates a new GraphConfig with defaults.
func NewGraphConfig() GraphConfig {
	return GraphConfig{
		maxConcurrentAnalysis:     DefaultMaxConcurrentAnalysis,
		minRelationshipConfidence: DefaultMinRelationshipConfidence,
		minPatternConfidence:      DefaultMinPatternConfidence,
		maxRelationshipDepth:      DefaultMaxRelationshipDepth,
		maxEntitiesPerRepository:  DefaultMaxEntitiesPerRepository,
		entityBatchSize:           DefaultEntityBatchSize,
		refreshInterval:           DefaultGraphRefreshInterval,
	}
}

// MaxConcurrentAnalysis returns how many files may parse in parallel
// within one repository.
func (c GraphConfig) MaxConcurrentAnalysis() int { return c.maxConcurrentAnalysis }

// MinRelationshipConfidence returns the normalized confidence floor (on
// the [0,1] scale) below which relationships are dropped.
func (c GraphConfig) MinRelationshipConfidence() float64 { return c.minRelationshipConfidence }

// MinPatternConfidence returns the confidence floor below which detected
// patterns are dropped.
func (c GraphConfig) MinPatternConfidence() float64 { return c.minPatternConfidence }

// MaxRelationshipDepth returns the hop bound for graph path queries.
func (c GraphConfig) MaxRelationshipDepth() int { return c.maxRelationshipDepth }

// MaxEntitiesPerRepository returns the entity ceiling per repository.
func (c GraphConfig) MaxEntitiesPerRepository() int { return c.maxEntitiesPerRepository }

// EntityBatchSize returns the persistence batch size for entities.
func (c GraphConfig) EntityBatchSize() int { return c.entityBatchSize }

// RefreshInterval returns how often a complete graph is rechecked against
// its repositories.
func (c GraphConfig) RefreshInterval() time.Duration {
	return time.Duration(c.refreshInterval * float64(time.Second))
}

// WithMaxConcurrentAnalysis returns a new config with the specified
// parallelism.
func (c GraphConfig) WithMaxConcurrentAnalysis(n int) GraphConfig {
	if n > 0 {
		c.maxConcurrentAnalysis = n
	}
	return c
}

// WithMinRelationshipConfidence returns a new config with the specified floor.
func (c GraphConfig) WithMinRelationshipConfidence(f float64) GraphConfig {
	if f >= 0 && f <= 1 {
		c.minRelationshipConfidence = f
	}
	return c
}

// WithMinPatternConfidence returns a new config with the specified floor.
func (c GraphConfig) WithMinPatternConfidence(f float64) GraphConfig {
	if f >= 0 && f <= 1 {
		c.minPatternConfidence = f
	}
	return c
}

// WithMaxRelationshipDepth returns a new config with the specified hop bound.
func (c GraphConfig) WithMaxRelationshipDepth(n int) GraphConfig {
	if n > 0 {
		c.maxRelationshipDepth = n
	}
	return c
}

// WithMaxEntitiesPerRepository returns a new config with the specified ceiling.
func (c GraphConfig) WithMaxEntitiesPerRepository(n int) GraphConfig {
	if n > 0 {
		c.maxEntitiesPerRepository = n
	}
	return c
}

// WithEntityBatchSize returns a new config with the specified batch size.
func (c GraphConfig) WithEntityBatchSize(n int) GraphConfig {
	if n > 0 {
		c.entityBatchSize = n
	}
	return c
}

// WithRefreshIntervalSeconds returns a new config with the specified interval.
func (c GraphConfig) WithRefreshIntervalSeconds(seconds float64) GraphConfig {
	if seconds > 0 {
		c.refreshInterval = seconds
	}
	return c
}

// DefaultExcludedExtensions lists file extensions the indexer never
// chunks: binary, media, archive, and lockfile formats.
var DefaultExcludedExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".svg", ".webp",
	".mp3", ".mp4", ".avi", ".mov", ".wav", ".flac",
	".zip", ".tar", ".gz", ".bz2", ".xz", ".7z", ".rar",
	".exe", ".dll", ".so", ".dylib", ".bin", ".o", ".a", ".class",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".lock", ".sum", ".min.js", ".min.css", ".map",
	".db", ".sqlite", ".sqlite3", ".pyc", ".wasm",
}

// DefaultIgnoredDirectories lists directory names the indexer skips at
// any depth.
var DefaultIgnoredDirectories = []string{
	"node_modules", "vendor", ".git", ".hg", ".svn",
	"dist", "build", "out", "bin", "obj", "target",
	"__pycache__", ".venv", "venv", ".tox", ".idea", ".vscode",
	"coverage", ".next", ".nuxt", "bower_components",
}

// IndexingConfig configures chunking and the hybrid content index.
type IndexingConfig struct {
	maxFileContentLength int
	chunkOverlapPercent  int
	batchSize            int
	minSearchScore       float64
	excludedExtensions   []string
	ignoredDirectories   []string
}

// NewIndexingConfig creates a new IndexingConfig with defaults.
func NewIndexingConfig() IndexingConfig {
	return IndexingConfig{
		maxFileContentLength: DefaultMaxFileContentLength,
		chunkOverlapPercent:  DefaultChunkOverlapPercent,
		batchSize:            DefaultIndexBatchSize,
		minSearchScore:       DefaultMinSearchScore,
		excludedExtensions:   copyStrings(DefaultExcludedExtensions),
		ignoredDirectories:   copyStrings(DefaultIgnoredDirectories),
	}
}

// MaxFileContentLength returns the chunk size ceiling in bytes.
func (c IndexingConfig) MaxFileContentLength() int { return c.maxFileContentLength }

// ChunkOverlapPercent returns the overlap between adjacent chunks as a
// percentage of the chunk size ceiling.
func (c IndexingConfig) ChunkOverlapPercent() int { return c.chunkOverlapPercent }

// BatchSize returns how many documents one index write carries.
func (c IndexingConfig) BatchSize() int { return c.batchSize }

// MinSearchScore returns the relevance floor below which hits are dropped.
func (c IndexingConfig) MinSearchScore() float64 { return c.minSearchScore }

// ExcludedExtensions returns the file extensions never indexed.
func (c IndexingConfig) ExcludedExtensions() []string {
	return copyStrings(c.excludedExtensions)
}

// IgnoredDirectories returns the directory names never indexed.
func (c IndexingConfig) IgnoredDirectories() []string {
	return copyStrings(c.ignoredDirectories)
}

// WithMaxFileContentLength returns a new config with the specified ceiling.
func (c IndexingConfig) WithMaxFileContentLength(n int) IndexingConfig {
	if n > 0 {
		c.maxFileContentLength = n
	}
	return c
}

// WithChunkOverlapPercent returns a new config with the specified overlap.
func (c IndexingConfig) WithChunkOverlapPercent(n int) IndexingConfig {
	if n >= 0 && n < 100 {
		c.chunkOverlapPercent = n
	}
	return c
}

// WithBatchSize returns a new config with the specified batch size.
func (c IndexingConfig) WithBatchSize(n int) IndexingConfig {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

// WithMinSearchScore returns a new config with the specified floor.
func (c IndexingConfig) WithMinSearchScore(f float64) IndexingConfig {
	if f >= 0 && f <= 1 {
		c.minSearchScore = f
	}
	return c
}

// WithExcludedExtensions returns a new config with the extension list
// replaced.
func (c IndexingConfig) WithExcludedExtensions(exts []string) IndexingConfig {
	if len(exts) > 0 {
		c.excludedExtensions = copyStrings(exts)
	}
	return c
}

// WithIgnoredDirectories returns a new config with the directory list
// replaced.
func (c IndexingConfig) WithIgnoredDirectories(dirs []string) IndexingConfig {
	if len(dirs) > 0 {
		c.ignoredDirectories = copyStrings(dirs)
	}
	return c
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// RateLimitConfig configures AI provider usage ceilings.
type RateLimitConfig struct {
	requestsPerMinute int
	maxTokensPerDay   int64
}

// NewRateLimitConfig creates a new RateLimitConfig with defaults.
func NewRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		requestsPerMinute: DefaultRequestsPerMinute,
		maxTokensPerDay:   DefaultMaxTokensPerDay,
	}
}

// RequestsPerMinute returns the provider request ceiling per minute.
func (c RateLimitConfig) RequestsPerMinute() int { return c.requestsPerMinute }

// MaxTokensPerDay returns the provider token ceiling per day.
func (c RateLimitConfig) MaxTokensPerDay() int64 { return c.maxTokensPerDay }

// WithRequestsPerMinute returns a new config with the specified ceiling.
func (c RateLimitConfig) WithRequestsPerMinute(n int) RateLimitConfig {
	if n > 0 {
		c.requestsPerMinute = n
	}
	return c
}

// WithMaxTokensPerDay returns a new config with the specified ceiling.
func (c RateLimitConfig) WithMaxTokensPerDay(n int64) RateLimitConfig {
	if n > 0 {
		c.maxTokensPerDay = n
	}
	return c
}

// SourceConfig configures access to repository hosts.
type SourceConfig struct {
	apiBaseURL string
	token      string
	timeout    time.Duration
	maxRetries int
	verifySSL  bool
}

// NewSourceConfig creates a new SourceConfig with defaults.
func NewSourceConfig() SourceConfig {
	return SourceConfig{
		apiBaseURL: DefaultSourceAPIBase,
		timeout:    DefaultSourceTimeout,
		maxRetries: DefaultSourceMaxRetries,
		verifySSL:  true,
	}
}

// APIBaseURL returns the REST API root of the source host.
func (s SourceConfig) APIBaseURL() string { return s.apiBaseURL }

// Token returns the access token for private repositories.
func (s SourceConfig) Token() string { return s.token }

// Timeout returns the request timeout for host API calls.
func (s SourceConfig) Timeout() time.Duration { return s.timeout }

// MaxRetries returns the maximum retry count for host API calls.
func (s SourceConfig) MaxRetries() int { return s.maxRetries }

// VerifySSL returns whether SSL verification is enabled.
func (s SourceConfig) VerifySSL() bool { return s.verifySSL }

// SourceConfigOption is a functional option for SourceConfig.
type SourceConfigOption func(*SourceConfig)

// WithSourceAPIBase sets the REST API root of the source host.
func WithSourceAPIBase(base string) SourceConfigOption {
	return func(s *SourceConfig) {
		if base != "" {
			s.apiBaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithSourceToken sets the access token.
func WithSourceToken(token string) SourceConfigOption {
	return func(s *SourceConfig) { s.token = token }
}

// WithSourceTimeout sets the timeout.
func WithSourceTimeout(d time.Duration) SourceConfigOption {
	return func(s *SourceConfig) { s.timeout = d }
}

// WithSourceMaxRetries sets the max retries.
func WithSourceMaxRetries(n int) SourceConfigOption {
	return func(s *SourceConfig) { s.maxRetries = n }
}

// WithVerifySSL sets SSL verification.
func WithVerifySSL(verify bool) SourceConfigOption {
	return func(s *SourceConfig) { s.verifySSL = verify }
}

// NewSourceConfigWithOptions creates a SourceConfig with options.
func NewSourceConfigWithOptions(opts ...SourceConfigOption) SourceConfig {
	s := NewSourceConfig()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host              string
	port              int
	dataDir           string
	dbURL             string
	logLevel          string
	logFormat         LogFormat
	chatEndpoint      *Endpoint
	embeddingEndpoint *Endpoint
	chat              ChatConfig
	conversation      ConversationConfig
	ingestion         IngestionConfig
	docs              DocsConfig
	graph             GraphConfig
	indexing          IndexingConfig
	rateLimit         RateLimitConfig
	source            SourceConfig
	reporting         ReportingConfig
	apiKeys           []string
	workerCount       int
	searchLimit       int
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codelore"
	}
	return filepath.Join(home, ".codelore")
}

// DefaultCloneDir returns the default clone directory for a given data directory.
func DefaultCloneDir(dataDir string) string {
	return filepath.Join(dataDir, DefaultCloneSubdir)
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// PrepareCloneDir resolves the clone directory (defaulting if empty) and creates it.
func PrepareCloneDir(cloneDir, dataDir string) (string, error) {
	if cloneDir == "" {
		cloneDir = DefaultCloneDir(dataDir)
	}
	if err := os.MkdirAll(cloneDir, 0o755); err != nil {
		return "", fmt.Errorf("create clone directory: %w", err)
	}
	return cloneDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:         DefaultHost,
		port:         DefaultPort,
		dataDir:      dataDir,
		dbURL:        "sqlite:///" + filepath.Join(dataDir, "codelore.db"),
		logLevel:     DefaultLogLevel,
		logFormat:    LogFormatPretty,
		chat:         NewChatConfig(),
		conversation: NewConversationConfig(),
		ingestion:    NewIngestionConfig(),
		docs:         NewDocsConfig(),
		graph:        NewGraphConfig(),
		indexing:     NewIndexingConfig(),
		rateLimit:    NewRateLimitConfig(),
		source:       NewSourceConfig(),
		reporting:    NewReportingConfig(),
		apiKeys:      []string{},
		workerCount:  DefaultWorkerCount,
		searchLimit:  DefaultSearchLimit,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// ChatEndpoint returns the chat completion endpoint config.
func (c AppConfig) ChatEndpoint() *Endpoint { return c.chatEndpoint }

// EmbeddingEndpoint returns the embedding endpoint config.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// Chat returns the chat config.
func (c AppConfig) Chat() ChatConfig { return c.chat }

// Conversation returns the conversation config.
func (c AppConfig) Conversation() ConversationConfig { return c.conversation }

// Ingestion returns the ingestion config.
func (c AppConfig) Ingestion() IngestionConfig { return c.ingestion }

// Docs returns the documentation config.
func (c AppConfig) Docs() DocsConfig { return c.docs }

// Graph returns the knowledge-graph config.
func (c AppConfig) Graph() GraphConfig { return c.graph }

// Indexing returns the content index config.
func (c AppConfig) Indexing() IndexingConfig { return c.indexing }

// RateLimit returns the provider rate limit config.
func (c AppConfig) RateLimit() RateLimitConfig { return c.rateLimit }

// Source returns the repository host config.
func (c AppConfig) Source() SourceConfig { return c.source }

// Reporting returns the reporting config.
func (c AppConfig) Reporting() ReportingConfig { return c.reporting }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// WorkerCount returns the number of background workers.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// SearchLimit returns the default search result limit.
func (c AppConfig) SearchLimit() int { return c.searchLimit }

// CloneDir returns the clone directory path.
func (c AppConfig) CloneDir() string {
	return filepath.Join(c.dataDir, DefaultCloneSubdir)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// EnsureCloneDir creates the clone directory if it doesn't exist.
func (c AppConfig) EnsureCloneDir() error {
	return os.MkdirAll(c.CloneDir(), 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		// Update default DB URL when data dir changes
		if c.dbURL == "" || strings.Contains(c.dbURL, "codelore.db") {
			c.dbURL = "sqlite:///" + filepath.Join(dir, "codelore.db")
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithChatEndpoint sets the chat completion endpoint.
func WithChatEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.chatEndpoint = &e }
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithChatConfig sets the chat config.
func WithChatConfig(cc ChatConfig) AppConfigOption {
	return func(c *AppConfig) { c.chat = cc }
}

// WithConversationConfig sets the conversation config.
func WithConversationConfig(cc ConversationConfig) AppConfigOption {
	return func(c *AppConfig) { c.conversation = cc }
}

// WithIngestionConfig sets the ingestion config.
func WithIngestionConfig(ic IngestionConfig) AppConfigOption {
	return func(c *AppConfig) { c.ingestion = ic }
}

// WithDocsConfig sets the documentation config.
func WithDocsConfig(dc DocsConfig) AppConfigOption {
	return func(c *AppConfig) { c.docs = dc }
}

// WithGraphConfig sets the knowledge-graph config.
func WithGraphConfig(gc GraphConfig) AppConfigOption {
	return func(c *AppConfig) { c.graph = gc }
}

// WithIndexingConfig sets the content index config.
func WithIndexingConfig(ic IndexingConfig) AppConfigOption {
	return func(c *AppConfig) { c.indexing = ic }
}

// WithRateLimitConfig sets the rate limit config.
func WithRateLimitConfig(rc RateLimitConfig) AppConfigOption {
	return func(c *AppConfig) { c.rateLimit = rc }
}

// WithSourceConfig sets the repository host config.
func WithSourceConfig(sc SourceConfig) AppConfigOption {
	return func(c *AppConfig) { c.source = sc }
}

// WithReportingConfig sets the reporting config.
func WithReportingConfig(r ReportingConfig) AppConfigOption {
	return func(c *AppConfig) { c.reporting = r }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithWorkerCount sets the number of background workers.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithSearchLimit sets the default search result limit.
func WithSearchLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
// This copies all fields from the receiver and then applies the options,
// making it safe to use when adding new fields to AppConfig.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Sensitive values like API keys are masked or shown as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("clone_dir", c.CloneDir()),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("chat_base_url", c.endpointBaseURL(c.chatEndpoint)),
		slog.String("chat_model", c.endpointModel(c.chatEndpoint)),
		slog.String("embedding_base_url", c.endpointBaseURL(c.embeddingEndpoint)),
		slog.String("embedding_model", c.endpointModel(c.embeddingEndpoint)),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Int("worker_count", c.workerCount),
		slog.Int("max_concurrent_ingestions", c.ingestion.MaxConcurrent()),
		slog.Bool("refresh_enabled", c.ingestion.RefreshEnabled()),
		slog.Duration("refresh_interval", c.ingestion.RefreshInterval()),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if len(c.dbURL) >= 7 && c.dbURL[:7] == "sqlite:" {
		return c.dbURL
	}
	return "postgres://***@***"
}

func (c AppConfig) endpointBaseURL(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.BaseURL()
}

func (c AppConfig) endpointModel(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.Model()
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// Package codelore provides a library for repository-aware code knowledge:
// ingesting Git repositories, building knowledge graphs, generating
// documentation, and answering questions about code over conversations.
//
// Basic usage:
//
//	client, err := codelore.New(
//	    codelore.WithSQLite(".codelore/data.db"),
//	    codelore.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Register a repository; the ingestion pipeline runs in the background
//	repo, err := client.Repositories.Add(ctx, "https://github.com/acme/widgets")
//
//	// Ask questions once the repository is ready
//	conv, err := client.Conversations.Create(ctx, "user-1", "widgets", conversation.Context{})
//	reply, err := client.Chat.Ask(ctx, conv.ID(), "how does sharding work?")
package codelore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/analyzer"
	"github.com/codelore/codelore/infrastructure/index"
	"github.com/codelore/codelore/infrastructure/persistence"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/infrastructure/tracking"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/database"
	"github.com/codelore/codelore/internal/eventbus"
)

// Client is the main entry point for the codelore library.
// The background worker starts automatically on creation.
//
// Access resources via struct fields:
//
//	client.Repositories.Add(ctx, url)
//	client.Chat.Ask(ctx, conversationID, query)
//	client.Events.SubscribeConversation(conversationID)
type Client struct {
	// Public resource fields (direct service access)
	Repositories  *service.Ingestion
	Conversations *service.Conversations
	Chat          *service.Chat
	Retrieval     *service.Retrieval
	Docs          *service.Docs
	Tasks         *service.Queue
	Events        *eventbus.Bus

	db database.Database

	// Stores shared across handlers
	repoStore         persistence.RepositoryStore
	branchStore       persistence.BranchStore
	commitStore       persistence.CommitStore
	docsStore         docs.Store
	taskStore         persistence.TaskStore
	statusStore       persistence.StatusStore
	conversationStore persistence.ConversationStore
	graphStores       graph.Stores

	// Pipeline infrastructure
	adapter   analyzer.Source
	profiler  *analyzer.Analyzer
	indexer   *index.Indexer
	builder   *service.GraphBuilder
	generator provider.TextGenerator
	embedder  search.Embedder
	cred      source.Credential

	queue       *service.Queue
	worker      *service.Worker
	maintenance *service.Maintenance
	registry    *service.Registry

	trackerFactory handler.TrackerFactory

	localEmbedder *provider.LocalEmbedder
	closers       []io.Closer

	ingestCfg config.IngestionConfig
	docsCfg   config.DocsConfig

	logger  *slog.Logger
	dataDir string
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a new Client with the given options.
// The background worker and maintenance schedules start automatically.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.database == databaseUnset {
		return nil, ErrNoDatabase
	}

	// Set up logger
	logger := cfg.logger
	if logger == nil {
		logger = config.DefaultLogger()
	}

	// Set up data directory
	dataDir, err := config.PrepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	// Create built-in embedding provider if no external provider is configured
	var localEmbedder *provider.LocalEmbedder
	if cfg.embedder == nil {
		modelDir := cfg.modelDir
		if modelDir == "" {
			modelDir = filepath.Join(dataDir, "models")
		}
		localEmbedder = provider.NewLocalEmbedder(modelDir)
		if localEmbedder.Available() {
			logger.Info("built-in embedding provider enabled", slog.String("model_dir", modelDir))
		} else if !cfg.skipProviderValidation {
			return nil, fmt.Errorf("no embedding model found in %s — configure an external embedding provider", modelDir)
		}
		cfg.embedder = localEmbedder
	}

	// Build database URL
	ctx := context.Background()
	dbURL, err := buildDatabaseURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("build database url: %w", err)
	}

	// Open database
	db, err := database.NewDatabase(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Run auto migration
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	// Validate schema matches GORM models
	if err := persistence.ValidateSchema(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("validate schema: %w", err), errClose)
	}

	// Create stores
	repoStore := persistence.NewRepositoryStore(db)
	branchStore := persistence.NewBranchStore(db)
	commitStore := persistence.NewCommitStore(db)
	docsStore := persistence.NewDocsStore(db)
	conversationStore := persistence.NewConversationStore(db)
	taskStore := persistence.NewTaskStore(db)
	statusStore := persistence.NewStatusStore(db)
	documentStore := persistence.NewSearchDocumentStore(db)

	graphStores := graph.Stores{
		Graphs:        persistence.NewGraphStore(db),
		Entities:      persistence.NewEntityStore(db),
		Relationships: persistence.NewRelationshipStore(db),
		Patterns:      persistence.NewPatternStore(db),
	}

	// Probe embedding dimension once (only needed for PostgreSQL, where the
	// pgvector column declares VECTOR(N); SQLite stores JSON and needs no
	// dimension up front).
	dimension := cfg.embeddingDimension
	if db.IsPostgres() && dimension == 0 {
		vectors, err := cfg.embedder.Embed(ctx, []string{"dimension probe"})
		if err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("probe embedding dimension: %w", err), errClose)
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			errClose := db.Close()
			return nil, errors.Join(errors.New("failed to obtain embedding dimension from provider"), errClose)
		}
		dimension = len(vectors[0])
	}

	// Create search stores matching the database driver
	lexicalStore, err := persistence.NewLexicalStore(db, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("lexical store: %w", err), errClose)
	}
	vectorStore, err := persistence.NewVectorStore(ctx, db, cfg.embedder, dimension, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("vector store: %w", err), errClose)
	}

	indexer := index.NewIndexer(lexicalStore, vectorStore, documentStore, cfg.indexing, logger)

	// Create source host infrastructure
	adapter := cfg.adapter
	if adapter == nil {
		adapter = source.NewRemoteAdapter(cfg.sourceConfig(), logger)
	}
	cred := source.Credential{Token: cfg.sourceToken}
	profiler := analyzer.NewAnalyzer(adapter, logger)

	// Wrap the text generator with the provider rate limiter
	generator := cfg.textProvider
	if generator != nil {
		limiter := provider.NewRateLimiter(cfg.rateLimit.RequestsPerMinute(), cfg.rateLimit.MaxTokensPerDay(), logger)
		generator = provider.NewLimitedGenerator(generator, limiter)
	}

	// Create application services
	registry := service.NewRegistry()
	queue := service.NewQueue(taskStore, logger)
	bus := eventbus.NewBus(logger)

	// Create tracker factory for progress reporting.
	// Wrap reporters in cooldowns to limit database writes and log output
	// to at most once per second per status ID during high-frequency updates.
	dbCooldown := tracking.NewCooldown(tracking.NewDBReporter(statusStore, logger), time.Second)
	logCooldown := tracking.NewCooldown(tracking.NewLoggingReporter(logger), time.Second)
	trackerFactory := &trackerFactoryImpl{
		reporters: []tracking.Reporter{dbCooldown, logCooldown},
		logger:    logger,
	}
	cfg.closers = append(cfg.closers, dbCooldown, logCooldown)

	worker := service.NewWorker(taskStore, registry, &workerTrackerAdapter{trackerFactory}, logger)
	if cfg.workerPollPeriod > 0 {
		worker.WithPollPeriod(cfg.workerPollPeriod)
	}

	builder := service.NewGraphBuilder(graphStores, repoStore, adapter, cfg.graph, logger)
	ingestion := service.NewIngestion(repoStore, queue, profiler, cfg.ingestion, cfg.docs, cred, logger)
	conversations := service.NewConversations(conversationStore, cfg.conversation, logger)
	retrieval := service.NewRetrieval(indexer, graphStores, generator, cfg.chat, logger)
	docsSvc := service.NewDocs(docsStore, repoStore, queue, cfg.docs, logger)
	maintenance := service.NewMaintenance(ingestion, queue, cfg.conversation, cfg.ingestion, logger)

	// Chat requires a text generator; without one the field stays nil and
	// ingestion still runs.
	var chat *service.Chat
	if generator != nil {
		chat = service.NewChat(conversations, retrieval, generator, bus, cfg.chat, logger)
	}

	client := &Client{
		Repositories:      ingestion,
		Conversations:     conversations,
		Chat:              chat,
		Retrieval:         retrieval,
		Docs:              docsSvc,
		Tasks:             queue,
		Events:            bus,
		db:                db,
		repoStore:         repoStore,
		branchStore:       branchStore,
		commitStore:       commitStore,
		docsStore:         docsStore,
		taskStore:         taskStore,
		statusStore:       statusStore,
		conversationStore: conversationStore,
		graphStores:       graphStores,
		adapter:           adapter,
		profiler:          profiler,
		indexer:           indexer,
		builder:           builder,
		generator:         generator,
		embedder:          cfg.embedder,
		cred:              cred,
		queue:             queue,
		worker:            worker,
		maintenance:       maintenance,
		registry:          registry,
		trackerFactory:    trackerFactory,
		localEmbedder:     localEmbedder,
		closers:           cfg.closers,
		ingestCfg:         cfg.ingestion,
		docsCfg:           cfg.docs,
		logger:            logger,
		dataDir:           dataDir,
	}

	// Register task handlers
	client.registerHandlers(bus)

	// Validate all prescribed operations have handlers
	if !cfg.skipProviderValidation {
		if err := client.validateHandlers(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	// Start the background worker and maintenance schedules
	worker.Start(ctx)
	if cfg.maintenance {
		maintenance.Start(ctx)
	}

	return client, nil
}

// Close releases all resources and stops the background worker.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Stop the schedules and worker
	c.maintenance.Stop()
	c.worker.Stop()
	c.Events.Close()

	// Close built-in embedding provider
	if c.localEmbedder != nil {
		if err := c.localEmbedder.Close(); err != nil {
			c.logger.Error("failed to close local embedder", slog.Any("error", err))
		}
	}

	// Close registered resources (e.g. reporter cooldowns)
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	// Close the database
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("codelore client closed")
	return nil
}

// WorkerIdle reports whether the background worker has no in-flight task.
func (c *Client) WorkerIdle() bool {
	return !c.worker.Busy()
}

// Statuses returns the progress records for a repository, ordered by
// creation time.
func (c *Client) Statuses(ctx context.Context, repositoryID int64) ([]task.Status, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.statusStore.FindByTrackable(ctx, task.TrackableTypeRepository, repositoryID)
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Searcher returns the hybrid content index for direct candidate search.
// Useful for advanced callers like MCP servers that build their own
// search.Query values.
func (c *Client) Searcher() service.CandidateSearcher {
	return c.indexer
}

package codelore

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codelore/codelore/application/handler"
	convhandler "github.com/codelore/codelore/application/handler/conversation"
	docshandler "github.com/codelore/codelore/application/handler/docs"
	ingestionhandler "github.com/codelore/codelore/application/handler/ingestion"
	repohandler "github.com/codelore/codelore/application/handler/repository"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/tracking"
	"github.com/codelore/codelore/internal/retry"
)

// registerHandlers registers all task handlers with the worker registry.
func (c *Client) registerHandlers(bus event.Publisher) {
	// Ingestion pipeline handlers (always registered). Source-touching
	// stages share one retry budget for transient faults.
	policy := retry.DefaultPolicy().WithAttempts(c.ingestCfg.RetryAttempts())
	c.registry.Register(task.OperationConnectRepository, ingestionhandler.NewConnect(
		c.repoStore, c.branchStore, c.commitStore, c.adapter, c.cred, bus, c.trackerFactory, c.logger,
	).WithRetryPolicy(policy))
	c.registry.Register(task.OperationAnalyzeStructure, ingestionhandler.NewAnalyzeStructure(
		c.repoStore, c.profiler, c.cred, bus, c.trackerFactory, c.logger,
	).WithRetryPolicy(policy))
	c.registry.Register(task.OperationExtractEntities, ingestionhandler.NewExtractEntities(
		c.repoStore, c.builder, c.graphStores, c.embedder, c.cred, bus, c.trackerFactory, c.logger,
	).WithRetryPolicy(policy))
	c.registry.Register(task.OperationBuildGraph, ingestionhandler.NewBuildGraph(
		c.repoStore, c.builder, c.cred, bus, c.trackerFactory, c.logger,
	))
	c.registry.Register(task.OperationIndexContent, ingestionhandler.NewIndexContent(
		c.repoStore, c.adapter, c.indexer, c.cred, bus, c.trackerFactory, c.logger,
	).WithRetryPolicy(policy))

	// Documentation handlers. Section generation and enrichment need a
	// text generator; the rest of the pipeline does not.
	c.registry.Register(task.OperationAnalyzeDocumentation, docshandler.NewAnalyze(
		c.docsStore, c.repoStore, c.profiler, c.cred, bus, c.trackerFactory, c.logger,
	))
	if c.generator != nil {
		c.registry.Register(task.OperationGenerateSections, docshandler.NewGenerateSections(
			c.docsStore, c.repoStore, c.indexer, c.generator, c.docsCfg, bus, c.trackerFactory, c.logger,
		))
		c.registry.Register(task.OperationEnrichSections, docshandler.NewEnrich(
			c.docsStore, c.generator, bus, c.trackerFactory, c.logger,
		))
	}
	c.registry.Register(task.OperationIndexSections, docshandler.NewIndexSections(
		c.docsStore, c.indexer, bus, c.trackerFactory, c.logger,
	))
	c.registry.Register(task.OperationFinalizeDocumentation, docshandler.NewFinalize(
		c.docsStore, c.generator, c.docsCfg, bus, c.trackerFactory, c.logger,
	))

	// Repository lifecycle handlers
	c.registry.Register(task.OperationRefreshRepository, repohandler.NewRefresh(
		c.repoStore, c.profiler, c.queue, c.ingestCfg, c.docsCfg, c.cred, c.trackerFactory, c.logger,
	))
	c.registry.Register(task.OperationRemoveRepository, repohandler.NewRemove(
		c.repoStore, c.branchStore, c.commitStore, c.graphStores, c.builder, c.docsStore, c.indexer, bus, c.trackerFactory, c.logger,
	))

	// Conversation maintenance handlers
	c.registry.Register(task.OperationArchiveConversations, convhandler.NewArchive(
		c.Conversations, c.trackerFactory, c.logger,
	))
	c.registry.Register(task.OperationCleanupConversations, convhandler.NewCleanup(
		c.Conversations, c.trackerFactory, c.logger,
	))

	c.logger.Info("registered task handlers", slog.Int("count", len(c.registry.Operations())))
}

// validateHandlers verifies every prescribed operation has a registered
// handler, so queued workflows cannot stall on a missing stage.
func (c *Client) validateHandlers() error {
	prescribed := task.NewPrescribedOperations(c.ingestCfg.AutoDocs(), c.docsCfg.Enrichment())
	required := append(prescribed.All(), task.OperationRefreshRepository)

	var missing []string
	for _, op := range required {
		if !c.registry.HasHandler(op) {
			missing = append(missing, op.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf(
			"missing handlers for prescribed operations: %s — configure a text provider (WithOpenAI or WithAnthropic) or disable documentation with WithIngestionConfig(config.NewIngestionConfig().WithAutoDocs(false))",
			strings.Join(missing, ", "),
		)
	}
	return nil
}

// trackerFactoryImpl creates trackers wired to the configured reporters.
type trackerFactoryImpl struct {
	reporters []tracking.Reporter
	logger    *slog.Logger
}

// ForOperation creates a tracker for the given operation and trackable.
func (f *trackerFactoryImpl) ForOperation(
	operation task.Operation,
	trackableType task.TrackableType,
	trackableID int64,
) handler.Tracker {
	tracker := tracking.TrackerForOperation(operation, f.logger, trackableType, trackableID)
	for _, reporter := range f.reporters {
		tracker.Subscribe(reporter)
	}
	return tracker
}

// workerTrackerAdapter narrows handler.TrackerFactory to the worker's
// tracker interface.
type workerTrackerAdapter struct {
	inner handler.TrackerFactory
}

func (a *workerTrackerAdapter) ForOperation(
	operation task.Operation,
	trackableType task.TrackableType,
	trackableID int64,
) service.WorkerTracker {
	return a.inner.ForOperation(operation, trackableType, trackableID)
}

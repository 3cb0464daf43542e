package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/internal/config"
)

// Maintenance runs the background schedules: the periodic conversation
// sweep (auto-archive then retention cleanup) and the refresh check that
// re-enqueues repositories whose source changed. Both run on their own
// timers and enqueue tasks rather than doing the work inline.
type Maintenance struct {
	ingestion *Ingestion
	queue     *Queue
	convCfg   config.ConversationConfig
	ingestCfg config.IngestionConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaintenance creates a Maintenance scheduler.
func NewMaintenance(
	ingestion *Ingestion,
	queue *Queue,
	convCfg config.ConversationConfig,
	ingestCfg config.IngestionConfig,
	logger *slog.Logger,
) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		ingestion: ingestion,
		queue:     queue,
		convCfg:   convCfg,
		ingestCfg: ingestCfg,
		logger:    logger,
	}
}

// Start launches the schedules in background goroutines.
func (m *Maintenance) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Go(func() {
		m.runSweep(ctx)
	})
	if m.ingestCfg.RefreshEnabled() {
		m.wg.Go(func() {
			m.runRefresh(ctx)
		})
	}

	m.logger.Info("maintenance scheduler started",
		slog.Duration("sweep_interval", m.convCfg.CleanupInterval()),
		slog.Duration("refresh_check_interval", m.ingestCfg.RefreshCheckInterval()),
	)
}

// Stop cancels the schedules and waits for them to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("maintenance scheduler stopped")
}

// SweepNow enqueues one conversation maintenance cycle immediately.
func (m *Maintenance) SweepNow(ctx context.Context) error {
	// A stable payload keeps the dedup key constant, so a sweep already
	// pending is not enqueued twice.
	ops := task.PrescribedOperations{}.MaintenanceSweep()
	return m.queue.EnqueueOperations(ctx, ops, task.PriorityBackground, nil)
}

func (m *Maintenance) runSweep(ctx context.Context) {
	ticker := time.NewTicker(m.convCfg.CleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SweepNow(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("failed to enqueue maintenance sweep",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (m *Maintenance) runRefresh(ctx context.Context) {
	ticker := time.NewTicker(m.ingestCfg.RefreshCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scheduled, err := m.ingestion.ScheduleRefreshDue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("refresh check failed",
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			if scheduled > 0 {
				m.logger.Info("repositories scheduled for refresh",
					slog.Int("count", scheduled),
				)
			}
		}
	}
}

package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/ternarybob/nuntio/internal/pipeline"
)

// Handlers hosts the kind-specific job handlers dispatched by the queue.
// Exactly one handler exists per kind.
type Handlers struct {
	fetcher   interfaces.FetchService
	processor *pipeline.Processor
	storage   interfaces.StorageManager
	llm       interfaces.GenerationService
	logger    arbor.ILogger
}

// NewHandlers creates the job handler set
func NewHandlers(fetcher interfaces.FetchService, processor *pipeline.Processor, storage interfaces.StorageManager, llm interfaces.GenerationService, logger arbor.ILogger) *Handlers {
	return &Handlers{
		fetcher:   fetcher,
		processor: processor,
		storage:   storage,
		llm:       llm,
		logger:    logger,
	}
}

// Register binds every job kind to its handler
func (h *Handlers) Register(queue interfaces.QueueService) {
	queue.RegisterHandler(models.JobKindRSSFetch, h.handleRSSFetch)
	queue.RegisterHandler(models.JobKindAIProcessing, h.handleBatch)
	queue.RegisterHandler(models.JobKindBatchProcessing, h.handleBatch)
	queue.RegisterHandler(models.JobKindCleanup, h.handleCleanup)
	queue.RegisterHandler(models.JobKindHealthCheck, h.handleHealthCheck)
}

func (h *Handlers) handleRSSFetch(ctx context.Context, job *models.Job) error {
	payload, ok := job.Data.(models.RSSFetchPayload)
	if !ok {
		return fmt.Errorf("rss_fetch job %s carries %T instead of RSSFetchPayload", job.ID, job.Data)
	}

	result, err := h.fetcher.FetchAll(ctx, payload.SourceURLs, payload.Limit)
	if result != nil {
		job.SetMetadata("items_fetched", result.ItemsFetched)
		job.SetMetadata("new_items", result.NewItems)
	}
	return err
}

// handleBatch serves both ai_processing and batch_processing; they share the
// payload shape and pipeline, differing only in how they were requested
func (h *Handlers) handleBatch(ctx context.Context, job *models.Job) error {
	payload, ok := job.Data.(models.BatchPayload)
	if !ok {
		return fmt.Errorf("%s job %s carries %T instead of BatchPayload", job.Kind, job.ID, job.Data)
	}

	result, err := h.processor.ProcessBatch(ctx, payload)
	if result != nil {
		job.SetMetadata("articles_total", result.Total)
		job.SetMetadata("articles_completed", result.Completed)
		job.SetMetadata("articles_rejected", result.Rejected)
		job.SetMetadata("articles_failed", result.Failed)
		job.SetMetadata("articles_skipped", result.Skipped)
	}
	return err
}

func (h *Handlers) handleCleanup(ctx context.Context, job *models.Job) error {
	payload, ok := job.Data.(models.CleanupPayload)
	if !ok {
		return fmt.Errorf("cleanup job %s carries %T instead of CleanupPayload", job.ID, job.Data)
	}

	cutoff := time.Now().AddDate(0, 0, -payload.OlderThanDays)
	removed, err := h.storage.ArticleStorage().PurgeArticles(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("article purge failed: %w", err)
	}
	job.SetMetadata("articles_removed", removed)

	if err := h.storage.RunGC(); err != nil {
		// Space reclamation is best effort once the purge itself succeeded
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Value log GC failed after purge")
	}
	return nil
}

func (h *Handlers) handleHealthCheck(ctx context.Context, job *models.Job) error {
	payload, ok := job.Data.(models.HealthCheckPayload)
	if !ok {
		return fmt.Errorf("health_check job %s carries %T instead of HealthCheckPayload", job.ID, job.Data)
	}

	if err := h.storage.Ping(ctx); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}

	if payload.Deep {
		if err := h.llm.HealthCheck(ctx); err != nil {
			return fmt.Errorf("generation service health check failed: %w", err)
		}
	}

	h.logger.Debug().Bool("deep", payload.Deep).Msg("Health check passed")
	return nil
}

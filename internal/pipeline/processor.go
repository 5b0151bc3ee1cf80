package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/ternarybob/nuntio/internal/queue"
)

// Processor drives the per-article AI pipeline. Articles within a batch run
// sequentially; concurrency lives at the job level, not here.
type Processor struct {
	storage interfaces.ArticleStorage
	llm     interfaces.GenerationService
	policy  queue.RetryPolicy
	logger  arbor.ILogger
}

// NewProcessor creates an article processor. The retry policy paces
// per-article retry eligibility across sweeps.
func NewProcessor(storage interfaces.ArticleStorage, llm interfaces.GenerationService, policy queue.RetryPolicy, logger arbor.ILogger) *Processor {
	return &Processor{
		storage: storage,
		llm:     llm,
		policy:  policy,
		logger:  logger,
	}
}

// ProcessBatch runs the pipeline over a frozen batch payload. Each article
// reaches exactly one outcome: completed, rejected, failed (retry-eligible)
// or skipped. The batch itself errors only when every article failed.
func (p *Processor) ProcessBatch(ctx context.Context, payload models.BatchPayload) (*models.BatchResult, error) {
	result := &models.BatchResult{Total: len(payload.ArticleIDs)}

	for _, id := range payload.ArticleIDs {
		outcome := p.processArticle(ctx, id, payload.Categories, payload.ResearchDepth)
		switch outcome {
		case models.ProcessingStatusCompleted:
			result.Completed++
		case models.ProcessingStatusRejected:
			result.Rejected++
		case models.ProcessingStatusFailed:
			result.Failed++
		case models.ProcessingStatusSkipped:
			result.Skipped++
		}
	}

	p.logger.Info().
		Int("total", result.Total).
		Int("completed", result.Completed).
		Int("rejected", result.Rejected).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("Batch processed")

	if result.Total > 0 && result.Failed == result.Total {
		return result, fmt.Errorf("all %d articles in batch failed", result.Total)
	}
	return result, nil
}

// processArticle runs one article through the state machine and returns its
// outcome status
func (p *Processor) processArticle(ctx context.Context, id string, categories []models.Category, researchDepth string) models.ProcessingStatus {
	article, err := p.storage.GetArticle(ctx, id)
	if err != nil {
		p.logger.Warn().Err(err).Str("article_id", id).Msg("Article not found for processing")
		return models.ProcessingStatusSkipped
	}

	// The batch payload is a snapshot; the article may have reached a
	// terminal state since the sweep that captured it
	if models.IsTerminalProcessingStatus(article.ProcessingStatus) {
		p.logger.Debug().
			Str("article_id", id).
			Str("status", string(article.ProcessingStatus)).
			Msg("Article already terminal, skipping")
		return models.ProcessingStatusSkipped
	}

	if err := p.storage.MarkProcessing(ctx, id); err != nil {
		p.logger.Warn().Err(err).Str("article_id", id).Msg("Failed to mark article processing")
		return models.ProcessingStatusSkipped
	}

	generation, err := p.llm.GenerateArticle(ctx, article, categories, researchDepth)
	if err != nil {
		return p.recordFailure(ctx, article, err)
	}

	if generation.Status == models.GenerationStatusRejected {
		// Terminal by design: an unsuitable article never becomes suitable,
		// so no retries and nothing persisted
		reason := generation.RejectionReason
		if reason == "" {
			reason = "rejected by generation service"
		}
		if err := p.storage.UpdateProcessingStatus(ctx, id, models.ProcessingStatusRejected, reason); err != nil {
			p.logger.Error().Err(err).Str("article_id", id).Msg("Failed to record rejection")
		}
		p.logger.Info().
			Str("article_id", id).
			Str("reason", reason).
			Msg("Article rejected")
		return models.ProcessingStatusRejected
	}

	generated := &models.GeneratedArticle{
		ID:           common.NewArticleID(),
		SourceID:     article.ID,
		Title:        generation.Title,
		Content:      generation.Content,
		CategorySlug: generation.CategorySlug,
		Sources:      generation.Sources,
		Confidence:   generation.Confidence,
		CreatedAt:    time.Now(),
	}
	if err := p.storage.CreateGeneratedArticle(ctx, generated); err != nil {
		return p.recordFailure(ctx, article, fmt.Errorf("failed to persist generated article: %w", err))
	}

	if err := p.storage.UpdateProcessingStatus(ctx, id, models.ProcessingStatusCompleted, ""); err != nil {
		p.logger.Error().Err(err).Str("article_id", id).Msg("Failed to record completion")
	}

	p.logger.Info().
		Str("article_id", id).
		Str("generated_id", generated.ID).
		Str("category", generated.CategorySlug).
		Float64("confidence", generated.Confidence).
		Msg("Article generated")
	return models.ProcessingStatusCompleted
}

// recordFailure applies per-article retry bookkeeping. The storage layer
// escalates to skipped once the retry budget is exhausted; until then the
// article stays failed and the next sweep past NextRetryAt picks it up.
func (p *Processor) recordFailure(ctx context.Context, article *models.Article, cause error) models.ProcessingStatus {
	delay := p.policy.Delay(article.RetryCount + 1)
	nextRetryAt := time.Now().Add(delay)

	if err := p.storage.RecordArticleFailure(ctx, article.ID, cause.Error(), nextRetryAt); err != nil {
		p.logger.Error().Err(err).Str("article_id", article.ID).Msg("Failed to record article failure")
		return models.ProcessingStatusFailed
	}

	p.logger.Warn().
		Err(cause).
		Str("article_id", article.ID).
		Int("retry_count", article.RetryCount+1).
		Int("max_retries", article.MaxRetries).
		Dur("retry_delay", delay).
		Msg("Article processing failed")
	return models.ProcessingStatusFailed
}

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/nuntio/internal/models"
)

// ArticleStorage persists source articles, categories and generated output
type ArticleStorage interface {
	SaveArticle(ctx context.Context, article *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	GetArticleBySourceURL(ctx context.Context, url string) (*models.Article, error)

	// GetPendingArticles returns up to limit articles eligible for
	// processing: pending, or failed with retry budget left and the retry
	// delay elapsed.
	GetPendingArticles(ctx context.Context, limit int) ([]*models.Article, error)

	// MarkProcessing transitions an article to processing
	MarkProcessing(ctx context.Context, id string) error

	// UpdateProcessingStatus sets a terminal or retryable outcome
	UpdateProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus, reason string) error

	// RecordArticleFailure applies retry bookkeeping: increments the retry
	// count, stores the error and next retry time, and escalates to skipped
	// once the budget is exhausted.
	RecordArticleFailure(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error

	GetCategories(ctx context.Context) ([]models.Category, error)
	SaveCategory(ctx context.Context, category *models.Category) error

	CreateGeneratedArticle(ctx context.Context, article *models.GeneratedArticle) error

	// PurgeArticles deletes terminal articles older than the cutoff and
	// returns the number removed
	PurgeArticles(ctx context.Context, olderThan time.Time) (int, error)
}

// StorageManager owns the database connection and its typed stores
type StorageManager interface {
	ArticleStorage() ArticleStorage

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error

	// RunGC reclaims value-log space. Used by the cleanup job.
	RunGC() error

	Close() error
}

package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArticleStorage implements the ArticleStorage interface for Badger
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ArticleStorage) SaveArticle(ctx context.Context, article *models.Article) error {
	if article.ID == "" {
		return fmt.Errorf("article ID is required")
	}

	article.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(article.ID, article); err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

func (s *ArticleStorage) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("article not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

func (s *ArticleStorage) GetArticleBySourceURL(ctx context.Context, url string) (*models.Article, error) {
	var articles []models.Article
	if err := s.db.Store().Find(&articles, badgerhold.Where("SourceURL").Eq(url).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find article by source URL: %w", err)
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("article not found for source URL: %s", url)
	}
	return &articles[0], nil
}

// GetPendingArticles returns up to limit articles eligible for processing:
// pending, or failed with retry budget left and the retry delay elapsed.
// Oldest fetched first. The budget and delay comparisons involve two fields
// of the same record, which badgerhold queries cannot express, so candidates
// are filtered here.
func (s *ArticleStorage) GetPendingArticles(ctx context.Context, limit int) ([]*models.Article, error) {
	var candidates []models.Article
	err := s.db.Store().Find(&candidates,
		badgerhold.Where("ProcessingStatus").In(
			models.ProcessingStatusPending,
			models.ProcessingStatusFailed,
		))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending articles: %w", err)
	}

	now := time.Now()
	eligible := make([]*models.Article, 0, len(candidates))
	for i := range candidates {
		article := &candidates[i]
		if article.ProcessingStatus == models.ProcessingStatusFailed {
			if article.RetryCount >= article.MaxRetries {
				continue
			}
			if article.NextRetryAt != nil && article.NextRetryAt.After(now) {
				continue
			}
		}
		eligible = append(eligible, article)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].FetchedAt.Before(eligible[j].FetchedAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func (s *ArticleStorage) MarkProcessing(ctx context.Context, id string) error {
	return s.updateArticle(id, func(article *models.Article) {
		article.ProcessingStatus = models.ProcessingStatusProcessing
	})
}

func (s *ArticleStorage) UpdateProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus, reason string) error {
	return s.updateArticle(id, func(article *models.Article) {
		article.ProcessingStatus = status
		if status == models.ProcessingStatusRejected {
			article.RejectionReason = reason
		} else if reason != "" {
			article.LastError = reason
		}
		if status == models.ProcessingStatusCompleted {
			article.LastError = ""
			article.NextRetryAt = nil
		}
	})
}

// RecordArticleFailure applies per-article retry bookkeeping and escalates
// to skipped once the retry budget is exhausted
func (s *ArticleStorage) RecordArticleFailure(ctx context.Context, id string, errMsg string, nextRetryAt time.Time) error {
	return s.updateArticle(id, func(article *models.Article) {
		article.RetryCount++
		article.LastError = errMsg

		if article.RetryCount >= article.MaxRetries {
			article.ProcessingStatus = models.ProcessingStatusSkipped
			article.NextRetryAt = nil
			s.logger.Info().
				Str("article_id", id).
				Int("retry_count", article.RetryCount).
				Msg("Article retry budget exhausted, skipping")
			return
		}

		article.ProcessingStatus = models.ProcessingStatusFailed
		article.NextRetryAt = &nextRetryAt
	})
}

func (s *ArticleStorage) updateArticle(id string, mutate func(*models.Article)) error {
	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("article not found: %s", id)
		}
		return fmt.Errorf("failed to get article: %w", err)
	}

	mutate(&article)
	article.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, &article); err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	return nil
}

func (s *ArticleStorage) GetCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Store().Find(&categories, nil); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Slug < categories[j].Slug
	})
	return categories, nil
}

func (s *ArticleStorage) SaveCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		return fmt.Errorf("category ID is required")
	}
	if category.Slug == "" {
		return fmt.Errorf("category slug is required")
	}
	if err := s.db.Store().Upsert(category.ID, category); err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *ArticleStorage) CreateGeneratedArticle(ctx context.Context, article *models.GeneratedArticle) error {
	if article.ID == "" {
		return fmt.Errorf("generated article ID is required")
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(article.ID, article); err != nil {
		return fmt.Errorf("failed to create generated article: %w", err)
	}
	return nil
}

// PurgeArticles deletes terminal articles older than the cutoff and returns
// the number removed
func (s *ArticleStorage) PurgeArticles(ctx context.Context, olderThan time.Time) (int, error) {
	var stale []models.Article
	err := s.db.Store().Find(&stale,
		badgerhold.Where("ProcessingStatus").In(
			models.ProcessingStatusCompleted,
			models.ProcessingStatusRejected,
			models.ProcessingStatusSkipped,
		).And("FetchedAt").Lt(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to query stale articles: %w", err)
	}

	removed := 0
	for i := range stale {
		if err := s.db.Store().Delete(stale[i].ID, &models.Article{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return removed, fmt.Errorf("failed to delete article %s: %w", stale[i].ID, err)
		}
		removed++
	}

	s.logger.Info().
		Int("removed", removed).
		Str("older_than", olderThan.Format(time.RFC3339)).
		Msg("Stale articles purged")
	return removed, nil
}

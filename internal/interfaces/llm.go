package interfaces

import (
	"context"

	"github.com/ternarybob/nuntio/internal/models"
)

// GenerationService is the AI collaborator producing a generated article
// (or a rejection) from one source article
type GenerationService interface {
	// GenerateArticle researches and rewrites one source article. A rejected
	// result is a valid outcome, not an error; errors indicate the call
	// itself failed and the article is retry-eligible.
	GenerateArticle(ctx context.Context, article *models.Article, categories []models.Category, researchDepth string) (*models.GenerationResult, error)

	// HealthCheck probes the provider with a minimal request
	HealthCheck(ctx context.Context) error

	Close() error
}

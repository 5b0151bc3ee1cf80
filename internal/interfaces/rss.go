package interfaces

import (
	"context"

	"github.com/ternarybob/nuntio/internal/models"
)

// FetchService pulls items from configured feeds and stores new articles
type FetchService interface {
	// FetchAll polls the given sources (all configured sources when empty)
	// and stores previously unseen items, up to limit
	FetchAll(ctx context.Context, sourceURLs []string, limit int) (*models.FetchResult, error)
}

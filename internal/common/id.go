package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID prefixed by kind.
// Format: <kind>_<unix-millis>_<uuid-fragment>
func NewJobID(kind string) string {
	return fmt.Sprintf("%s_%d_%s", kind, time.Now().UnixMilli(), uuid.New().String()[:8])
}

// NewArticleID generates a unique article ID with the "article_" prefix
func NewArticleID() string {
	return "article_" + uuid.New().String()
}

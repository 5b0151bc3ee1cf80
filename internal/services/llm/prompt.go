package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/nuntio/internal/models"
)

const systemPrompt = `You are a news rewriting assistant for an aggregation platform.
Given a source article and a list of publishing categories, research the topic and write
an original article suitable for publication.

Respond with a single JSON object and nothing else. On success:
{"status":"success","title":"...","content":"markdown body","category_slug":"one of the provided slugs","confidence":0.0-1.0,"sources":["url",...]}
If the article is unsuitable for publication or fits none of the provided categories:
{"status":"rejected","rejection_reason":"short explanation"}`

// buildUserPrompt renders one article plus the category snapshot into the
// generation request
func buildUserPrompt(article *models.Article, categories []models.Category, researchDepth string) string {
	var b strings.Builder

	b.WriteString("Available categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s (slug: %s)\n", c.Name, c.Slug)
	}

	depth := researchDepth
	if depth == "" {
		depth = "quick"
	}
	fmt.Fprintf(&b, "\nResearch depth: %s\n", depth)

	fmt.Fprintf(&b, "\nSource article from %s (published %s):\n", article.SourceName, article.PublishedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Title: %s\n\n%s\n", article.Title, article.Content)

	return b.String()
}

// parseGenerationResult decodes the provider's JSON reply. Models sometimes
// wrap JSON in markdown fences; strip them before decoding. A success result
// whose category slug is not in the provided snapshot is downgraded to a
// rejection rather than persisting an unfiled article.
func parseGenerationResult(raw string, categories []models.Category) (*models.GenerationResult, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Tolerate leading prose by locating the outermost object
	if idx := strings.Index(cleaned, "{"); idx > 0 {
		cleaned = cleaned[idx:]
	}
	if idx := strings.LastIndex(cleaned, "}"); idx >= 0 {
		cleaned = cleaned[:idx+1]
	}

	var result models.GenerationResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}

	switch result.Status {
	case models.GenerationStatusRejected:
		return &result, nil
	case models.GenerationStatusSuccess:
		if result.Title == "" || result.Content == "" {
			return nil, fmt.Errorf("generation response missing title or content")
		}
		if !slugKnown(result.CategorySlug, categories) {
			return &models.GenerationResult{
				Status:          models.GenerationStatusRejected,
				RejectionReason: "no category match",
			}, nil
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("generation response has unknown status %q", result.Status)
	}
}

func slugKnown(slug string, categories []models.Category) bool {
	for _, c := range categories {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

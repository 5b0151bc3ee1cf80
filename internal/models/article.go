// -----------------------------------------------------------------------
// Article - persisted source items and AI-generated output
// -----------------------------------------------------------------------

package models

import "time"

// ProcessingStatus tracks an article through the AI pipeline
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
	ProcessingStatusRejected   ProcessingStatus = "rejected"
	ProcessingStatusSkipped    ProcessingStatus = "skipped"
)

// IsTerminalProcessingStatus returns true for statuses the pipeline never
// revisits. Failed articles remain eligible for the next sweep until their
// retry budget is exhausted.
func IsTerminalProcessingStatus(status ProcessingStatus) bool {
	return status == ProcessingStatusCompleted ||
		status == ProcessingStatusRejected ||
		status == ProcessingStatusSkipped
}

// Article is a source item fetched from an RSS feed, awaiting or undergoing
// AI processing. Retry bookkeeping is tracked per article because one batch
// job covers many articles with independent outcomes.
type Article struct {
	ID               string           `json:"id" badgerhold:"key"`
	SourceURL        string           `json:"source_url" badgerhold:"unique"`
	SourceName       string           `json:"source_name"`
	Title            string           `json:"title"`
	Content          string           `json:"content"` // Markdown
	PublishedAt      time.Time        `json:"published_at"`
	FetchedAt        time.Time        `json:"fetched_at"`
	ProcessingStatus ProcessingStatus `json:"processing_status" badgerhold:"index"`
	RetryCount       int              `json:"retry_count"`
	MaxRetries       int              `json:"max_retries"`
	NextRetryAt      *time.Time       `json:"next_retry_at,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Category is a publishing category an article can be filed under
type Category struct {
	ID   string `json:"id" badgerhold:"key"`
	Name string `json:"name"`
	Slug string `json:"slug" badgerhold:"unique"`
}

// GeneratedArticle is the AI-produced article persisted on a successful
// pipeline run
type GeneratedArticle struct {
	ID           string    `json:"id" badgerhold:"key"`
	SourceID     string    `json:"source_id" badgerhold:"index"` // Originating Article ID
	Title        string    `json:"title"`
	Content      string    `json:"content"` // Markdown
	CategorySlug string    `json:"category_slug"`
	Sources      []string  `json:"sources,omitempty"` // URLs cited by the AI research step
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// GenerationStatus is the AI collaborator's decision for one article
type GenerationStatus string

const (
	GenerationStatusSuccess  GenerationStatus = "success"
	GenerationStatusRejected GenerationStatus = "rejected"
)

// GenerationResult is the structured outcome of one AI generation call
type GenerationResult struct {
	Status          GenerationStatus `json:"status"`
	Title           string           `json:"title,omitempty"`
	Content         string           `json:"content,omitempty"`
	CategorySlug    string           `json:"category_slug,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	Sources         []string         `json:"sources,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// FetchResult summarizes one RSS fetch run
type FetchResult struct {
	ItemsFetched int            `json:"items_fetched"`
	NewItems     int            `json:"new_items"`
	PerSource    map[string]int `json:"per_source,omitempty"`
}

// BatchResult summarizes one batch pipeline run. The batch counts as failed
// only when every article in it failed.
type BatchResult struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

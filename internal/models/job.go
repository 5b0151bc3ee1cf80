// -----------------------------------------------------------------------
// Job - unit of background work dispatched through the in-memory queue
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind identifies the handler responsible for a job. Closed set.
type JobKind string

const (
	JobKindRSSFetch        JobKind = "rss_fetch"
	JobKindAIProcessing    JobKind = "ai_processing"
	JobKindBatchProcessing JobKind = "batch_processing"
	JobKindCleanup         JobKind = "cleanup"
	JobKindHealthCheck     JobKind = "health_check"
)

// ValidJobKind reports whether kind is a member of the closed kind set
func ValidJobKind(kind JobKind) bool {
	switch kind {
	case JobKindRSSFetch, JobKindAIProcessing, JobKindBatchProcessing, JobKindCleanup, JobKindHealthCheck:
		return true
	}
	return false
}

// JobStatus tracks a job through its lifecycle
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCancelled JobStatus = "cancelled"
)

// Priority bands. Lower value is served first; any integer is accepted.
const (
	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 10
)

// Job represents one unit of background work. The Data payload is frozen
// at enqueue time and reused unchanged across retries.
type Job struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"kind"`
	Priority   int       `json:"priority"`
	Status     JobStatus `json:"status"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	Error string `json:"error,omitempty"`

	Data     any            `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RSSFetchPayload is the data shape for rss_fetch jobs
type RSSFetchPayload struct {
	SourceURLs []string `json:"source_urls,omitempty"` // Empty means all configured sources
	Limit      int      `json:"limit,omitempty"`       // Max new items to store, 0 means config default
}

// BatchPayload is the data shape for ai_processing and batch_processing jobs.
// ArticleIDs and Categories are a snapshot taken at enqueue time.
type BatchPayload struct {
	ArticleIDs    []string   `json:"article_ids"`
	Categories    []Category `json:"categories"`
	ResearchDepth string     `json:"research_depth,omitempty"` // "quick" or "thorough"
}

// CleanupPayload is the data shape for cleanup jobs
type CleanupPayload struct {
	OlderThanDays int `json:"older_than_days"`
}

// HealthCheckPayload is the data shape for health_check jobs
type HealthCheckPayload struct {
	Deep bool `json:"deep"` // Deep checks also probe the AI provider
}

// ValidatePayload checks that data carries the kind-specific payload type.
// A malformed payload is the caller's bug and is rejected synchronously,
// never retried.
func ValidatePayload(kind JobKind, data any) error {
	switch kind {
	case JobKindRSSFetch:
		if _, ok := data.(RSSFetchPayload); !ok {
			return fmt.Errorf("job kind %s requires RSSFetchPayload, got %T", kind, data)
		}
	case JobKindAIProcessing, JobKindBatchProcessing:
		payload, ok := data.(BatchPayload)
		if !ok {
			return fmt.Errorf("job kind %s requires BatchPayload, got %T", kind, data)
		}
		if len(payload.ArticleIDs) == 0 {
			return fmt.Errorf("job kind %s requires at least one article ID", kind)
		}
	case JobKindCleanup:
		if _, ok := data.(CleanupPayload); !ok {
			return fmt.Errorf("job kind %s requires CleanupPayload, got %T", kind, data)
		}
	case JobKindHealthCheck:
		if _, ok := data.(HealthCheckPayload); !ok {
			return fmt.Errorf("job kind %s requires HealthCheckPayload, got %T", kind, data)
		}
	default:
		return fmt.Errorf("unknown job kind: %s", kind)
	}
	return nil
}

// DecodePayload unmarshals raw JSON into the kind-specific payload type.
// Used by the control layer, where job data arrives untyped.
func DecodePayload(kind JobKind, raw []byte) (any, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	decode := func(target any) error {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("invalid %s payload: %w", kind, err)
		}
		return nil
	}

	switch kind {
	case JobKindRSSFetch:
		var p RSSFetchPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case JobKindAIProcessing, JobKindBatchProcessing:
		var p BatchPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case JobKindCleanup:
		var p CleanupPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case JobKindHealthCheck:
		var p HealthCheckPayload
		if err := decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}
}

// MarkStarted transitions the job to running. StartedAt is set exactly once.
func (j *Job) MarkStarted() {
	j.Status = JobStatusRunning
	if j.StartedAt == nil {
		now := time.Now()
		j.StartedAt = &now
	}
}

// MarkCompleted transitions the job to terminal completed and clears the
// error left by any earlier failed attempt.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.Error = ""
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed with an error message
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	now := time.Now()
	j.FailedAt = &now
}

// MarkRetrying records the scheduled retry time
func (j *Job) MarkRetrying(nextRetryAt time.Time) {
	j.Status = JobStatusRetrying
	j.NextRetryAt = &nextRetryAt
}

// MarkCancelled transitions a pending job to terminal cancelled
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
}

// IsTerminal returns true if the job can no longer change state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}

// CanRetry reports whether the job has retry budget left
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// GetMetadataString retrieves a string value from metadata
func (j *Job) GetMetadataString(key string) (string, bool) {
	val, ok := j.Metadata[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// SetMetadata sets a metadata value
func (j *Job) SetMetadata(key string, value any) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]any)
	}
	j.Metadata[key] = value
}

// QueueStatistics is a point-in-time snapshot of queue state. Pending,
// running and retrying reflect live sizes; completed, failed and cancelled
// are cumulative counters since queue start.
type QueueStatistics struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	RetryingJobs  int `json:"retrying_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	CancelledJobs int `json:"cancelled_jobs"`
}

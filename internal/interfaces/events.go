package interfaces

import (
	"context"
	"time"
)

// EventType identifies an internal notification. The set is closed:
// subscriptions are wired once at construction time and there are no
// dynamic topics.
type EventType string

const (
	EventRSSFetchRequested        EventType = "rss_fetch_requested"
	EventBatchProcessingRequested EventType = "batch_processing_requested"
	EventHealthCheckRequested     EventType = "health_check_requested"
	EventCleanupRequested         EventType = "cleanup_requested"
	EventJobCompleted             EventType = "job_completed"
	EventJobFailed                EventType = "job_failed"
)

// Event is a typed notification with an arbitrary payload
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler processes a published event
type EventHandler func(ctx context.Context, event Event) error

// EventService provides pub/sub between the scheduler, queue and coordinator
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}

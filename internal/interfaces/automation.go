package interfaces

import (
	"time"

	"github.com/ternarybob/nuntio/internal/models"
)

// StartOptions tunes automation startup
type StartOptions struct {
	// Force starts even when the pre-start health check reports critical
	Force bool `json:"force,omitempty"`

	// MaxConcurrentJobs overrides the configured queue concurrency cap
	MaxConcurrentJobs *int `json:"max_concurrent_jobs,omitempty"`
}

// StopOptions tunes automation shutdown
type StopOptions struct {
	// Graceful waits for active jobs to drain before stopping
	Graceful bool `json:"graceful_shutdown"`

	// Timeout bounds the drain wait. Zero means the configured default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// TriggerRequest submits a manual job through the coordinator
type TriggerRequest struct {
	Kind     models.JobKind `json:"job_type" validate:"required"`
	Data     any            `json:"job_data"`
	Priority *int           `json:"priority,omitempty"`
}

// AutomationStatus is a point-in-time snapshot of the automation subsystem
type AutomationStatus struct {
	Running          bool                   `json:"running"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	Uptime           string                 `json:"uptime,omitempty"`
	SchedulerRunning bool                   `json:"scheduler_running"`
	Queue            models.QueueStatistics `json:"queue"`
	NextRuns         []ScheduledJobInfo     `json:"next_runs,omitempty"`
}

// AutomationService coordinates the scheduler, queue and handlers
type AutomationService interface {
	Start(opts StartOptions) error
	Stop(opts StopOptions) error
	EmergencyStop() error
	TriggerManualJob(req TriggerRequest) (string, error)
	Status() AutomationStatus
	UpdateSchedulerConfig(update SchedulerUpdate) error
}

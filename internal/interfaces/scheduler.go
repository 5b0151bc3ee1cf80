package interfaces

import "time"

// ScheduledJobInfo describes one cadence and its estimated next fire time
type ScheduledJobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
}

// SchedulerUpdate carries a partial cadence reconfiguration. Nil fields are
// left unchanged.
type SchedulerUpdate struct {
	RSSFetchSchedule     *string `json:"rss_fetch_schedule,omitempty"`
	AIProcessingSchedule *string `json:"ai_processing_schedule,omitempty"`
	HealthCheckSchedule  *string `json:"health_check_schedule,omitempty"`
	CleanupSchedule      *string `json:"cleanup_schedule,omitempty"`
	SweepLimit           *int    `json:"sweep_limit,omitempty"`
	BatchSize            *int    `json:"batch_size,omitempty"`
}

// SchedulerService owns the recurring automation cadences
type SchedulerService interface {
	// Start registers and starts all cadences. Idempotent.
	Start() error

	// Stop halts all cadences. Idempotent.
	Stop()

	// IsRunning reports whether cadences are active
	IsRunning() bool

	// UpdateConfig merges a partial update. If running, the scheduler is
	// stopped and restarted so new cadences apply atomically.
	UpdateConfig(update SchedulerUpdate) error

	// NextScheduledJobs reports each cadence with its estimated next fire
	// time. Advisory only.
	NextScheduledJobs() []ScheduledJobInfo
}

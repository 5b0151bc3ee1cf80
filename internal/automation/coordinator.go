package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

// Coordinator wires the scheduler's request events into queue jobs and
// owns the automation lifecycle. It is an explicit instance held by the
// composition root; tests construct independent coordinators.
type Coordinator struct {
	mu        sync.Mutex
	running   bool
	startedAt time.Time

	config    *common.Config
	queue     interfaces.QueueService
	scheduler interfaces.SchedulerService
	events    interfaces.EventService
	storage   interfaces.StorageManager

	drainTimeout time.Duration
	logger       arbor.ILogger
}

// NewCoordinator creates a coordinator and wires its event subscriptions.
// Wiring is fixed at construction time.
func NewCoordinator(config *common.Config, queue interfaces.QueueService, scheduler interfaces.SchedulerService, events interfaces.EventService, storage interfaces.StorageManager, logger arbor.ILogger) (*Coordinator, error) {
	drainTimeout := 60 * time.Second
	if config.Queue.DrainTimeout != "" {
		d, err := time.ParseDuration(config.Queue.DrainTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid drain timeout '%s': %w", config.Queue.DrainTimeout, err)
		}
		drainTimeout = d
	}

	c := &Coordinator{
		config:       config,
		queue:        queue,
		scheduler:    scheduler,
		events:       events,
		storage:      storage,
		drainTimeout: drainTimeout,
		logger:       logger,
	}

	if err := c.subscribe(); err != nil {
		return nil, err
	}
	return c, nil
}

// subscribe binds each scheduler request event to a job submission
func (c *Coordinator) subscribe() error {
	subscriptions := []struct {
		event    interfaces.EventType
		kind     models.JobKind
		priority int
	}{
		{interfaces.EventRSSFetchRequested, models.JobKindRSSFetch, models.PriorityHigh},
		{interfaces.EventBatchProcessingRequested, models.JobKindBatchProcessing, models.PriorityNormal},
		{interfaces.EventHealthCheckRequested, models.JobKindHealthCheck, models.PriorityLow},
		{interfaces.EventCleanupRequested, models.JobKindCleanup, models.PriorityLow},
	}

	for _, sub := range subscriptions {
		s := sub
		err := c.events.Subscribe(s.event, func(ctx context.Context, event interfaces.Event) error {
			return c.enqueueFromEvent(ctx, s.kind, s.priority, event)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", s.event, err)
		}
	}
	return nil
}

// enqueueFromEvent turns a cadence request event into a queue job
func (c *Coordinator) enqueueFromEvent(ctx context.Context, kind models.JobKind, priority int, event interfaces.Event) error {
	data := event.Payload
	if data == nil && kind == models.JobKindRSSFetch {
		data = models.RSSFetchPayload{}
	}

	id, err := c.queue.AddJob(ctx, interfaces.JobSpec{
		Kind:       kind,
		Priority:   priority,
		MaxRetries: c.maxRetriesFor(kind),
		Data:       data,
		Metadata:   map[string]any{"source": "scheduler"},
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}

	c.logger.Debug().
		Str("job_id", id).
		Str("kind", string(kind)).
		Str("event_type", string(event.Type)).
		Msg("Scheduled job enqueued")
	return nil
}

func (c *Coordinator) maxRetriesFor(kind models.JobKind) int {
	return c.config.RetryConfigFor(string(kind)).MaxRetries
}

// Start brings up the queue and scheduler after a pre-start health check.
// A critical health result refuses startup unless opts.Force is set.
func (c *Coordinator) Start(opts interfaces.StartOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	if err := c.preStartHealthCheck(); err != nil {
		if !opts.Force {
			return fmt.Errorf("%w: %v", ErrHealthCheckFailed, err)
		}
		c.logger.Warn().Err(err).Msg("Health check critical, starting anyway (force)")
	}

	if opts.MaxConcurrentJobs != nil {
		c.queue.SetMaxConcurrentJobs(*opts.MaxConcurrentJobs)
		c.logger.Info().
			Int("max_concurrent_jobs", *opts.MaxConcurrentJobs).
			Msg("Queue concurrency overridden at start")
	}

	if err := c.queue.Start(); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	if err := c.scheduler.Start(); err != nil {
		c.queue.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	c.running = true
	c.startedAt = time.Now()

	c.logger.Info().Msg("Automation started")
	return nil
}

// preStartHealthCheck verifies the subsystem is sane before starting.
// Storage unreachability is critical; a large pending backlog is only
// logged.
func (c *Coordinator) preStartHealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.storage.Ping(ctx); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}

	stats := c.queue.GetStatistics()
	if stats.PendingJobs > 100 {
		c.logger.Warn().
			Int("pending_jobs", stats.PendingJobs).
			Msg("Large pending backlog at startup")
	}

	if c.scheduler.IsRunning() {
		return fmt.Errorf("scheduler already running outside coordinator control")
	}
	return nil
}

// Stop shuts automation down. Graceful stops drain active jobs first,
// bounded by the timeout (configured default when zero).
func (c *Coordinator) Stop(opts interfaces.StopOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}

	// Scheduler first so no new jobs arrive during the drain
	c.scheduler.Stop()

	if opts.Graceful {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = c.drainTimeout
		}
		if drained := c.queue.WaitForActiveJobs(timeout); !drained {
			c.logger.Warn().
				Dur("timeout", timeout).
				Msg("Drain timed out, stopping with jobs still active")
		}
	}

	c.queue.Stop()
	c.running = false

	c.logger.Info().Bool("graceful", opts.Graceful).Msg("Automation stopped")
	return nil
}

// EmergencyStop halts everything immediately, skipping the drain
func (c *Coordinator) EmergencyStop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}

	c.scheduler.Stop()
	c.queue.Stop()
	c.running = false

	c.logger.Warn().Msg("Automation emergency stopped")
	return nil
}

// TriggerManualJob submits a job directly, tagged as manually triggered.
// Business rules beyond AddJob's own validation are not enforced here.
func (c *Coordinator) TriggerManualJob(req interfaces.TriggerRequest) (string, error) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if !running {
		return "", ErrNotRunning
	}

	priority := models.PriorityNormal
	if req.Priority != nil {
		priority = *req.Priority
	}

	id, err := c.queue.AddJob(context.Background(), interfaces.JobSpec{
		Kind:       req.Kind,
		Priority:   priority,
		MaxRetries: c.maxRetriesFor(req.Kind),
		Data:       req.Data,
		Metadata:   map[string]any{"manual": true},
	})
	if err != nil {
		return "", err
	}

	c.logger.Info().
		Str("job_id", id).
		Str("kind", string(req.Kind)).
		Int("priority", priority).
		Msg("Manual job triggered")
	return id, nil
}

// Status returns a point-in-time snapshot of the automation subsystem
func (c *Coordinator) Status() interfaces.AutomationStatus {
	c.mu.Lock()
	running := c.running
	startedAt := c.startedAt
	c.mu.Unlock()

	status := interfaces.AutomationStatus{
		Running:          running,
		SchedulerRunning: c.scheduler.IsRunning(),
		Queue:            c.queue.GetStatistics(),
	}
	if running {
		t := startedAt
		status.StartedAt = &t
		status.Uptime = time.Since(startedAt).Round(time.Second).String()
		status.NextRuns = c.scheduler.NextScheduledJobs()
	}
	return status
}

// UpdateSchedulerConfig applies a partial cadence reconfiguration
func (c *Coordinator) UpdateSchedulerConfig(update interfaces.SchedulerUpdate) error {
	return c.scheduler.UpdateConfig(update)
}

var _ interfaces.AutomationService = (*Coordinator)(nil)

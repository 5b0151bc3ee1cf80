package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

// pendingJob pairs a job with its insertion sequence so equal priorities
// dequeue first-submitted-first-served
type pendingJob struct {
	job *models.Job
	seq uint64
}

// Service implements QueueService: an in-memory priority queue with a
// bounded set of in-flight jobs. A single dispatch goroutine waits on a
// wake signal raised whenever a job is added, a slot frees, or a retry
// re-enters the queue.
//
// The queue is not durable. A process restart loses pending and retrying
// jobs; articles mid-retry resume from their persisted processing status on
// the next scheduled sweep.
type Service struct {
	mu       sync.Mutex
	pending  []pendingJob
	active   map[string]*models.Job
	retrying map[string]*models.Job
	timers   map[string]*time.Timer
	handlers map[models.JobKind]interfaces.JobHandler
	seq      uint64

	maxConcurrent int
	policies      PolicySet
	retryEnabled  bool

	running bool
	stopCh  chan struct{}
	wake    chan struct{}
	loopWG  sync.WaitGroup

	completedCount int
	failedCount    int
	cancelledCount int

	events interfaces.EventService
	logger arbor.ILogger
}

// NewService creates a queue service. Handlers are registered before Start.
func NewService(maxConcurrent int, policies PolicySet, events interfaces.EventService, logger arbor.ILogger) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		pending:       make([]pendingJob, 0),
		active:        make(map[string]*models.Job),
		retrying:      make(map[string]*models.Job),
		timers:        make(map[string]*time.Timer),
		handlers:      make(map[models.JobKind]interfaces.JobHandler),
		maxConcurrent: maxConcurrent,
		policies:      policies,
		retryEnabled:  true,
		wake:          make(chan struct{}, 1),
		events:        events,
		logger:        logger,
	}
}

// RegisterHandler binds the single handler for a job kind
func (s *Service) RegisterHandler(kind models.JobKind, handler interfaces.JobHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler
}

// Start launches the dispatch loop. Idempotent.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.loopWG.Add(1)
	go s.dispatchLoop(s.stopCh)

	s.logger.Info().
		Int("max_concurrent_jobs", s.maxConcurrent).
		Msg("Job queue started")

	return nil
}

// Stop halts dispatch. Active jobs run to completion; pending jobs stay
// queued and resume if Start is called again.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.loopWG.Wait()

	s.logger.Info().Msg("Job queue stopped")
}

// AddJob validates the spec, assigns an ID and inserts the job into the
// pending sequence sorted by (priority, insertion order). Returns the new
// ID synchronously.
func (s *Service) AddJob(ctx context.Context, spec interfaces.JobSpec) (string, error) {
	if !models.ValidJobKind(spec.Kind) {
		return "", fmt.Errorf("unknown job kind: %s", spec.Kind)
	}
	if err := models.ValidatePayload(spec.Kind, spec.Data); err != nil {
		return "", fmt.Errorf("invalid job payload: %w", err)
	}

	maxRetries := spec.MaxRetries
	if maxRetries < 0 {
		maxRetries = s.policies.For(spec.Kind).MaxRetries
	}

	job := &models.Job{
		ID:         common.NewJobID(string(spec.Kind)),
		Kind:       spec.Kind,
		Priority:   spec.Priority,
		Status:     models.JobStatusPending,
		RetryCount: 0,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
		Data:       spec.Data,
		Metadata:   spec.Metadata,
	}

	s.mu.Lock()
	s.insertLocked(job)
	s.mu.Unlock()
	s.signal()

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("priority", job.Priority).
		Int("max_retries", job.MaxRetries).
		Msg("Job enqueued")

	return job.ID, nil
}

// insertLocked places a job into the pending sequence at the back of its
// priority band. Caller holds s.mu.
func (s *Service) insertLocked(job *models.Job) {
	s.seq++
	entry := pendingJob{job: job, seq: s.seq}

	// seq is strictly increasing, so inserting after all entries with
	// priority <= job.Priority keeps FIFO order within a band
	idx := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].job.Priority > job.Priority
	})
	s.pending = append(s.pending, pendingJob{})
	copy(s.pending[idx+1:], s.pending[idx:])
	s.pending[idx] = entry
}

// signal wakes the dispatch loop. Non-blocking; a single buffered slot
// coalesces bursts.
func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop waits for wake signals and dispatches as many jobs as the
// concurrency cap allows
func (s *Service) dispatchLoop(stopCh chan struct{}) {
	defer s.loopWG.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-s.wake:
		}

		for s.dispatchNext() {
		}
	}
}

// dispatchNext moves the head of the pending sequence to the active set and
// launches its handler. Returns false when nothing can be dispatched.
func (s *Service) dispatchNext() bool {
	s.mu.Lock()
	if !s.running || len(s.pending) == 0 || len(s.active) >= s.maxConcurrent {
		s.mu.Unlock()
		return false
	}

	entry := s.pending[0]
	s.pending = s.pending[1:]
	job := entry.job

	handler, ok := s.handlers[job.Kind]
	job.MarkStarted()
	s.active[job.ID] = job
	s.mu.Unlock()

	if !ok {
		// Unknown kind is a programming error, surfaced as a normal failure
		s.finishJob(job, fmt.Errorf("no handler registered for job kind %s", job.Kind))
		return true
	}

	go s.runJob(job, handler)
	return true
}

// runJob executes one handler invocation, recovering panics as failures
func (s *Service) runJob(job *models.Job, handler interfaces.JobHandler) {
	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("retry_count", job.RetryCount).
		Msg("Job started")

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job handler panicked: %v", r)
			}
		}()
		err = handler(context.Background(), job)
	}()

	s.finishJob(job, err)
}

// finishJob applies the terminal or failed transition, frees the slot and
// emits the lifecycle notification. A failed job with retry budget left is
// handed straight to ScheduleRetry; only failures past the budget count
// toward the failed total.
func (s *Service) finishJob(job *models.Job, err error) {
	s.mu.Lock()
	delete(s.active, job.ID)
	if err != nil {
		job.MarkFailed(err.Error())
		if !s.retryEnabled || !job.CanRetry() {
			s.failedCount++
		}
	} else {
		job.MarkCompleted()
		s.completedCount++
	}
	retry := err != nil && s.retryEnabled && job.CanRetry()
	s.mu.Unlock()
	s.signal()

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Int("retry_count", job.RetryCount).
			Int("max_retries", job.MaxRetries).
			Msg("Job failed")
		s.publish(interfaces.EventJobFailed, job)
		if retry {
			s.ScheduleRetry(job)
		}
		return
	}

	duration := time.Duration(0)
	if job.StartedAt != nil {
		duration = time.Since(*job.StartedAt)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Dur("duration", duration).
		Msg("Job completed")
	s.publish(interfaces.EventJobCompleted, job)
}

func (s *Service) publish(eventType interfaces.EventType, job *models.Job) {
	if s.events == nil {
		return
	}
	snapshot := *job
	if err := s.events.Publish(context.Background(), interfaces.Event{
		Type:      eventType,
		Payload:   &snapshot,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job event")
	}
}

// ScheduleRetry increments the retry count, marks the job retrying and
// re-inserts it at the back of its priority band once the backoff elapses.
// No-op when the retry budget is exhausted.
func (s *Service) ScheduleRetry(job *models.Job) {
	s.mu.Lock()
	if job.RetryCount >= job.MaxRetries {
		s.mu.Unlock()
		return
	}

	job.RetryCount++
	delay := s.policies.For(job.Kind).Delay(job.RetryCount)
	job.MarkRetrying(time.Now().Add(delay))

	s.retrying[job.ID] = job
	s.timers[job.ID] = time.AfterFunc(delay, func() {
		s.requeue(job)
	})
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("retry_count", job.RetryCount).
		Int("max_retries", job.MaxRetries).
		Dur("delay", delay).
		Msg("Job retry scheduled")
}

// requeue moves a retrying job back into the pending sequence
func (s *Service) requeue(job *models.Job) {
	s.mu.Lock()
	if _, ok := s.retrying[job.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.retrying, job.ID)
	delete(s.timers, job.ID)

	job.Status = models.JobStatusPending
	s.insertLocked(job)
	s.mu.Unlock()
	s.signal()

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("retry_count", job.RetryCount).
		Msg("Job requeued after backoff")
}

// CancelJob removes a pending job. Running and retrying jobs are not
// interrupted.
func (s *Service) CancelJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.pending {
		if entry.job.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			entry.job.MarkCancelled()
			s.cancelledCount++
			s.logger.Info().Str("job_id", id).Msg("Job cancelled")
			return nil
		}
	}

	if _, ok := s.active[id]; ok {
		return fmt.Errorf("job %s is running and cannot be cancelled", id)
	}
	return fmt.Errorf("job %s not found in pending queue", id)
}

// GetJob returns a snapshot of a pending, active or retrying job
func (s *Service) GetJob(id string) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.active[id]; ok {
		snapshot := *job
		return &snapshot, true
	}
	if job, ok := s.retrying[id]; ok {
		snapshot := *job
		return &snapshot, true
	}
	for _, entry := range s.pending {
		if entry.job.ID == id {
			snapshot := *entry.job
			return &snapshot, true
		}
	}
	return nil, false
}

// SetMaxConcurrentJobs adjusts the concurrency cap
func (s *Service) SetMaxConcurrentJobs(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxConcurrent = n
	s.mu.Unlock()
	s.signal()
}

// SetRetryEnabled toggles automatic retry scheduling on handler failure
func (s *Service) SetRetryEnabled(enabled bool) {
	s.mu.Lock()
	s.retryEnabled = enabled
	s.mu.Unlock()
}

// GetStatistics returns live sizes plus cumulative counters
func (s *Service) GetStatistics() models.QueueStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.QueueStatistics{
		PendingJobs:   len(s.pending),
		RunningJobs:   len(s.active),
		RetryingJobs:  len(s.retrying),
		CompletedJobs: s.completedCount,
		FailedJobs:    s.failedCount,
		CancelledJobs: s.cancelledCount,
	}
	stats.TotalJobs = stats.PendingJobs + stats.RunningJobs + stats.RetryingJobs +
		stats.CompletedJobs + stats.FailedJobs + stats.CancelledJobs
	return stats
}

// WaitForActiveJobs blocks until no jobs are running or the timeout
// elapses. Returns true if the active set drained.
func (s *Service) WaitForActiveJobs(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		activeCount := len(s.active)
		s.mu.Unlock()

		if activeCount == 0 {
			return true
		}
		if time.Now().After(deadline) {
			s.logger.Warn().
				Int("active_jobs", activeCount).
				Dur("timeout", timeout).
				Msg("Timed out waiting for active jobs")
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

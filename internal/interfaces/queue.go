package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/nuntio/internal/models"
)

// JobHandler executes one job. A returned error marks the job failed;
// panics are recovered and treated the same way.
type JobHandler func(ctx context.Context, job *models.Job) error

// JobSpec describes a job submission. Data must carry the kind-specific
// payload type and is frozen once accepted.
type JobSpec struct {
	Kind       models.JobKind
	Priority   int
	MaxRetries int
	Data       any
	Metadata   map[string]any
}

// QueueService owns the in-memory pending queue and the in-flight job set
type QueueService interface {
	// Start launches the dispatch loop. Idempotent.
	Start() error

	// Stop halts dispatch. Active jobs run to completion.
	Stop()

	// RegisterHandler binds the single handler for a job kind
	RegisterHandler(kind models.JobKind, handler JobHandler)

	// AddJob validates the spec, assigns an ID and inserts the job into the
	// pending sequence. Returns the ID synchronously without waiting for
	// execution.
	AddJob(ctx context.Context, spec JobSpec) (string, error)

	// CancelJob removes a pending job. Running jobs are not interrupted.
	CancelJob(id string) error

	// GetJob returns a snapshot of a pending or active job
	GetJob(id string) (*models.Job, bool)

	// ScheduleRetry increments the retry count and re-inserts the job after
	// its backoff delay. No-op when the retry budget is exhausted.
	ScheduleRetry(job *models.Job)

	// SetMaxConcurrentJobs adjusts the concurrency cap. Takes effect on the
	// next dispatch; running jobs are never interrupted.
	SetMaxConcurrentJobs(n int)

	// GetStatistics returns live sizes plus cumulative counters
	GetStatistics() models.QueueStatistics

	// WaitForActiveJobs blocks until no jobs are running or the timeout
	// elapses. Returns true if the queue drained.
	WaitForActiveJobs(timeout time.Duration) bool
}

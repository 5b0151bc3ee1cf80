package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/events"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

func fastPolicies() PolicySet {
	return NewPolicySet(map[models.JobKind]RetryPolicy{
		models.JobKindAIProcessing: {MaxRetries: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond},
	})
}

func newTestQueue(t *testing.T, maxConcurrent int) *Service {
	t.Helper()
	return NewService(maxConcurrent, fastPolicies(), nil, common.GetLogger())
}

func healthSpec(priority int) interfaces.JobSpec {
	return interfaces.JobSpec{
		Kind:     models.JobKindHealthCheck,
		Priority: priority,
		Data:     models.HealthCheckPayload{},
	}
}

func TestAddJobBeforeStart(t *testing.T) {
	q := newTestQueue(t, 3)

	id, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stats := q.GetStatistics()
	assert.Equal(t, 1, stats.PendingJobs)
	assert.Equal(t, 0, stats.RunningJobs)
	assert.Equal(t, 1, stats.TotalJobs)

	job, found := q.GetJob(id)
	require.True(t, found)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
}

func TestAddJobValidation(t *testing.T) {
	q := newTestQueue(t, 1)

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := q.AddJob(context.Background(), interfaces.JobSpec{Kind: "reindex"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown job kind")
	})

	t.Run("wrong payload type rejected", func(t *testing.T) {
		_, err := q.AddJob(context.Background(), interfaces.JobSpec{
			Kind: models.JobKindCleanup,
			Data: "not a payload",
		})
		require.Error(t, err)
	})

	t.Run("batch without article ids rejected", func(t *testing.T) {
		_, err := q.AddJob(context.Background(), interfaces.JobSpec{
			Kind: models.JobKindBatchProcessing,
			Data: models.BatchPayload{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one article ID")
	})

	assert.Equal(t, 0, q.GetStatistics().TotalJobs)
}

func TestDefaultMaxRetriesFromPolicy(t *testing.T) {
	q := newTestQueue(t, 1)

	spec := healthSpec(models.PriorityNormal)
	spec.MaxRetries = -1
	id, err := q.AddJob(context.Background(), spec)
	require.NoError(t, err)

	job, found := q.GetJob(id)
	require.True(t, found)
	assert.Equal(t, 3, job.MaxRetries)
}

func TestPriorityOrderingWithFIFOTieBreak(t *testing.T) {
	q := newTestQueue(t, 1)

	var mu sync.Mutex
	var order []string
	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	a, _ := q.AddJob(ctx, healthSpec(models.PriorityNormal))
	b, _ := q.AddJob(ctx, healthSpec(models.PriorityHigh))
	c, _ := q.AddJob(ctx, healthSpec(models.PriorityNormal))
	d, _ := q.AddJob(ctx, healthSpec(models.PriorityLow))
	e, _ := q.AddJob(ctx, healthSpec(models.PriorityHigh))

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().CompletedJobs == 5
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{b, e, a, c, d}, order)
}

func TestConcurrencyCap(t *testing.T) {
	q := newTestQueue(t, 2)

	release := make(chan struct{})
	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		<-release
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := q.AddJob(ctx, healthSpec(models.PriorityNormal))
		require.NoError(t, err)
	}

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().RunningJobs == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The cap holds while handlers are blocked
	time.Sleep(50 * time.Millisecond)
	stats := q.GetStatistics()
	assert.Equal(t, 2, stats.RunningJobs)
	assert.Equal(t, 3, stats.PendingJobs)

	close(release)

	require.Eventually(t, func() bool {
		return q.GetStatistics().CompletedJobs == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, q.GetStatistics().RunningJobs)
}

func TestRaisingCapDispatchesWaitingJobs(t *testing.T) {
	q := newTestQueue(t, 1)

	release := make(chan struct{})
	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		<-release
		return nil
	})
	defer close(release)

	ctx := context.Background()
	_, err := q.AddJob(ctx, healthSpec(models.PriorityNormal))
	require.NoError(t, err)
	_, err = q.AddJob(ctx, healthSpec(models.PriorityNormal))
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().RunningJobs == 1
	}, 2*time.Second, 10*time.Millisecond)

	q.SetMaxConcurrentJobs(2)

	require.Eventually(t, func() bool {
		return q.GetStatistics().RunningJobs == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetryUntilBudgetExhausted(t *testing.T) {
	q := newTestQueue(t, 1)

	var mu sync.Mutex
	attempts := 0
	q.RegisterHandler(models.JobKindAIProcessing, func(ctx context.Context, job *models.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("provider unavailable")
	})

	spec := interfaces.JobSpec{
		Kind:       models.JobKindAIProcessing,
		Priority:   models.PriorityNormal,
		MaxRetries: 2,
		Data:       models.BatchPayload{ArticleIDs: []string{"article_1"}},
	}
	_, err := q.AddJob(context.Background(), spec)
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	// Initial attempt plus two retries, then the job fails for good. A
	// single terminal failure is counted regardless of attempt count.
	require.Eventually(t, func() bool {
		stats := q.GetStatistics()
		return stats.FailedJobs == 1 && stats.RetryingJobs == 0 && stats.PendingJobs == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 0, q.GetStatistics().CompletedJobs)
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	q := newTestQueue(t, 1)

	var mu sync.Mutex
	attempts := 0
	q.RegisterHandler(models.JobKindAIProcessing, func(ctx context.Context, job *models.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient error")
		}
		return nil
	})

	spec := interfaces.JobSpec{
		Kind:       models.JobKindAIProcessing,
		Priority:   models.PriorityNormal,
		MaxRetries: 3,
		Data:       models.BatchPayload{ArticleIDs: []string{"article_1"}},
	}
	_, err := q.AddJob(context.Background(), spec)
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().CompletedJobs == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := q.GetStatistics()
	assert.Equal(t, 0, stats.FailedJobs)
	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestTerminalStatesAreExclusive(t *testing.T) {
	logger := common.GetLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	q := NewService(1, fastPolicies(), eventService, logger)

	completed := make(chan *models.Job, 1)
	failed := make(chan *models.Job, 1)
	eventService.Subscribe(interfaces.EventJobCompleted, func(ctx context.Context, event interfaces.Event) error {
		if job, ok := event.Payload.(*models.Job); ok {
			completed <- job
		}
		return nil
	})
	eventService.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		if job, ok := event.Payload.(*models.Job); ok {
			failed <- job
		}
		return nil
	})

	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		return nil
	})
	q.RegisterHandler(models.JobKindCleanup, func(ctx context.Context, job *models.Job) error {
		return errors.New("disk error")
	})

	ctx := context.Background()
	_, err := q.AddJob(ctx, healthSpec(models.PriorityNormal))
	require.NoError(t, err)
	_, err = q.AddJob(ctx, interfaces.JobSpec{
		Kind:     models.JobKindCleanup,
		Priority: models.PriorityNormal,
		Data:     models.CleanupPayload{OlderThanDays: 30},
	})
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	select {
	case job := <-completed:
		assert.Equal(t, models.JobStatusCompleted, job.Status)
		assert.NotNil(t, job.CompletedAt)
		assert.Nil(t, job.FailedAt)
		assert.Empty(t, job.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completed job event")
	}

	select {
	case job := <-failed:
		assert.Equal(t, models.JobStatusFailed, job.Status)
		assert.NotNil(t, job.FailedAt)
		assert.Nil(t, job.CompletedAt)
		assert.Equal(t, "disk error", job.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failed job event")
	}
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	q := newTestQueue(t, 1)

	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		panic("boom")
	})

	_, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		stats := q.GetStatistics()
		return stats.FailedJobs == 1 && stats.RunningJobs == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMissingHandlerFailsJob(t *testing.T) {
	q := newTestQueue(t, 1)

	_, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().FailedJobs == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelJob(t *testing.T) {
	q := newTestQueue(t, 1)

	t.Run("pending job can be cancelled", func(t *testing.T) {
		id, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
		require.NoError(t, err)

		require.NoError(t, q.CancelJob(id))

		stats := q.GetStatistics()
		assert.Equal(t, 0, stats.PendingJobs)
		assert.Equal(t, 1, stats.CancelledJobs)

		_, found := q.GetJob(id)
		assert.False(t, found)
	})

	t.Run("unknown job returns error", func(t *testing.T) {
		err := q.CancelJob("health_check_0_deadbeef")
		require.Error(t, err)
	})

	t.Run("running job cannot be cancelled", func(t *testing.T) {
		release := make(chan struct{})
		q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
			<-release
			return nil
		})
		defer close(release)

		id, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
		require.NoError(t, err)

		require.NoError(t, q.Start())
		defer q.Stop()

		require.Eventually(t, func() bool {
			return q.GetStatistics().RunningJobs == 1
		}, 2*time.Second, 10*time.Millisecond)

		err = q.CancelJob(id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "running")
	})
}

func TestWaitForActiveJobs(t *testing.T) {
	q := newTestQueue(t, 1)

	release := make(chan struct{})
	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		<-release
		return nil
	})

	_, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
	require.NoError(t, err)

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().RunningJobs == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, q.WaitForActiveJobs(100*time.Millisecond))

	close(release)
	assert.True(t, q.WaitForActiveJobs(2*time.Second))
}

func TestStopKeepsPendingJobs(t *testing.T) {
	q := newTestQueue(t, 1)

	var mu sync.Mutex
	ran := 0
	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		mu.Lock()
		ran++
		mu.Unlock()
		return nil
	})

	require.NoError(t, q.Start())
	q.Stop()

	// Jobs added while stopped stay queued
	for i := 0; i < 3; i++ {
		_, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, q.GetStatistics().PendingJobs)

	require.NoError(t, q.Start())
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.GetStatistics().CompletedJobs == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetJobReturnsSnapshot(t *testing.T) {
	q := newTestQueue(t, 1)

	id, err := q.AddJob(context.Background(), healthSpec(models.PriorityNormal))
	require.NoError(t, err)

	job, found := q.GetJob(id)
	require.True(t, found)

	// Mutating the snapshot must not leak into queue state
	job.Status = models.JobStatusCancelled
	again, found := q.GetJob(id)
	require.True(t, found)
	assert.Equal(t, models.JobStatusPending, again.Status)
}

func TestManyJobsAllComplete(t *testing.T) {
	q := newTestQueue(t, 3)

	q.RegisterHandler(models.JobKindHealthCheck, func(ctx context.Context, job *models.Job) error {
		time.Sleep(time.Millisecond)
		return nil
	})

	require.NoError(t, q.Start())
	defer q.Stop()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		_, err := q.AddJob(ctx, healthSpec(models.PriorityNormal))
		require.NoError(t, err, fmt.Sprintf("job %d", i))
	}

	require.Eventually(t, func() bool {
		return q.GetStatistics().CompletedJobs == 50
	}, 5*time.Second, 10*time.Millisecond)

	stats := q.GetStatistics()
	assert.Equal(t, 0, stats.PendingJobs)
	assert.Equal(t, 0, stats.RunningJobs)
	assert.Equal(t, 50, stats.TotalJobs)
}

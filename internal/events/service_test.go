package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
)

func TestSubscribeRejectsNilHandler(t *testing.T) {
	svc := NewService(common.GetLogger())
	require.Error(t, svc.Subscribe(interfaces.EventJobCompleted, nil))
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	received := 0
	handler := func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		received++
		mu.Unlock()
		wg.Done()
		return nil
	}

	require.NoError(t, svc.Subscribe(interfaces.EventRSSFetchRequested, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventRSSFetchRequested, handler))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{
		Type:      interfaces.EventRSSFetchRequested,
		Timestamp: time.Now(),
	}))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}

	mu.Lock()
	assert.Equal(t, 2, received)
	mu.Unlock()
}

func TestPublishWithNoSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventCleanupRequested}))
}

func TestPublishDoesNotCrossEventTypes(t *testing.T) {
	svc := NewService(common.GetLogger())

	called := make(chan struct{}, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		called <- struct{}{}
		return nil
	}))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobCompleted}))

	select {
	case <-called:
		t.Fatal("handler received an event of the wrong type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSyncWaitsAndCollectsErrors(t *testing.T) {
	svc := NewService(common.GetLogger())

	var mu sync.Mutex
	order := []string{}

	require.NoError(t, svc.Subscribe(interfaces.EventBatchProcessingRequested, func(ctx context.Context, event interfaces.Event) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, "handler")
		mu.Unlock()
		return nil
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventBatchProcessingRequested, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("handler broke")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventBatchProcessingRequested})
	require.Error(t, err)

	// The slow handler finished before PublishSync returned
	mu.Lock()
	assert.Equal(t, []string{"handler"}, order)
	mu.Unlock()
}

func TestPublishSyncPassesPayload(t *testing.T) {
	svc := NewService(common.GetLogger())

	var got any
	require.NoError(t, svc.Subscribe(interfaces.EventHealthCheckRequested, func(ctx context.Context, event interfaces.Event) error {
		got = event.Payload
		return nil
	}))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventHealthCheckRequested,
		Payload: "deep",
	}))
	assert.Equal(t, "deep", got)
}

func TestCloseDropsSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())

	called := make(chan struct{}, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventJobCompleted, func(ctx context.Context, event interfaces.Event) error {
		called <- struct{}{}
		return nil
	}))

	require.NoError(t, svc.Close())
	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobCompleted}))

	select {
	case <-called:
		t.Fatal("handler survived Close")
	case <-time.After(50 * time.Millisecond):
	}
}

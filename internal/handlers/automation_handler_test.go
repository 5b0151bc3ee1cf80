package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/nuntio/internal/automation"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

// fakeAutomation scripts coordinator responses for handler tests
type fakeAutomation struct {
	startErr   error
	stopErr    error
	triggerErr error
	updateErr  error

	startOpts  *interfaces.StartOptions
	stopOpts   *interfaces.StopOptions
	triggerReq *interfaces.TriggerRequest
	update     *interfaces.SchedulerUpdate
	status     interfaces.AutomationStatus
}

func (f *fakeAutomation) Start(opts interfaces.StartOptions) error {
	f.startOpts = &opts
	return f.startErr
}

func (f *fakeAutomation) Stop(opts interfaces.StopOptions) error {
	f.stopOpts = &opts
	return f.stopErr
}

func (f *fakeAutomation) EmergencyStop() error { return f.stopErr }

func (f *fakeAutomation) TriggerManualJob(req interfaces.TriggerRequest) (string, error) {
	f.triggerReq = &req
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	return "job_test_1", nil
}

func (f *fakeAutomation) Status() interfaces.AutomationStatus { return f.status }

func (f *fakeAutomation) UpdateSchedulerConfig(update interfaces.SchedulerUpdate) error {
	f.update = &update
	return f.updateErr
}

// statsQueue provides only statistics
type statsQueue struct {
	stats models.QueueStatistics
}

func (s *statsQueue) Start() error                                                      { return nil }
func (s *statsQueue) Stop()                                                             {}
func (s *statsQueue) RegisterHandler(kind models.JobKind, handler interfaces.JobHandler) {}
func (s *statsQueue) AddJob(ctx context.Context, spec interfaces.JobSpec) (string, error) {
	return "", nil
}
func (s *statsQueue) CancelJob(id string) error                    { return nil }
func (s *statsQueue) GetJob(id string) (*models.Job, bool)         { return nil, false }
func (s *statsQueue) ScheduleRetry(job *models.Job)                {}
func (s *statsQueue) SetMaxConcurrentJobs(n int)                   {}
func (s *statsQueue) GetStatistics() models.QueueStatistics        { return s.stats }
func (s *statsQueue) WaitForActiveJobs(timeout time.Duration) bool { return true }

func newHandler(service *fakeAutomation) *AutomationHandler {
	return NewAutomationHandler(service, &statsQueue{stats: models.QueueStatistics{PendingJobs: 2}}, common.GetLogger())
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var envelope Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestStartEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		service := &fakeAutomation{}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/start", strings.NewReader(`{"force":true,"config":{"max_concurrent_jobs":5}}`))
		rec := httptest.NewRecorder()
		handler.Start(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		envelope := decodeEnvelope(t, rec)
		assert.True(t, envelope.Success)
		assert.Equal(t, "Automation started", envelope.Message)

		require.NotNil(t, service.startOpts)
		assert.True(t, service.startOpts.Force)
		require.NotNil(t, service.startOpts.MaxConcurrentJobs)
		assert.Equal(t, 5, *service.startOpts.MaxConcurrentJobs)
	})

	t.Run("empty body uses defaults", func(t *testing.T) {
		service := &fakeAutomation{}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/start", nil)
		rec := httptest.NewRecorder()
		handler.Start(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, service.startOpts)
		assert.False(t, service.startOpts.Force)
		assert.Nil(t, service.startOpts.MaxConcurrentJobs)
	})

	t.Run("already running maps to conflict", func(t *testing.T) {
		service := &fakeAutomation{startErr: automation.ErrAlreadyRunning}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/start", nil)
		rec := httptest.NewRecorder()
		handler.Start(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		envelope := decodeEnvelope(t, rec)
		assert.False(t, envelope.Success)
		assert.NotEmpty(t, envelope.Error)
	})

	t.Run("health check failure maps to service unavailable", func(t *testing.T) {
		service := &fakeAutomation{startErr: automation.ErrHealthCheckFailed}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/start", nil)
		rec := httptest.NewRecorder()
		handler.Start(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("wrong method rejected", func(t *testing.T) {
		handler := newHandler(&fakeAutomation{})

		req := httptest.NewRequest(http.MethodGet, "/api/automation/start", nil)
		rec := httptest.NewRecorder()
		handler.Start(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestStopEndpoint(t *testing.T) {
	t.Run("defaults to graceful", func(t *testing.T) {
		service := &fakeAutomation{}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/stop", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.Stop(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, service.stopOpts)
		assert.True(t, service.stopOpts.Graceful)
	})

	t.Run("timeout seconds become a duration", func(t *testing.T) {
		service := &fakeAutomation{}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/stop", strings.NewReader(`{"graceful_shutdown":false,"timeout":2.5}`))
		rec := httptest.NewRecorder()
		handler.Stop(rec, req)

		require.NotNil(t, service.stopOpts)
		assert.False(t, service.stopOpts.Graceful)
		assert.Equal(t, 2500*time.Millisecond, service.stopOpts.Timeout)
	})

	t.Run("not running maps to conflict", func(t *testing.T) {
		service := &fakeAutomation{stopErr: automation.ErrNotRunning}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/stop", nil)
		rec := httptest.NewRecorder()
		handler.Stop(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestTriggerEndpoint(t *testing.T) {
	t.Run("decodes typed payload", func(t *testing.T) {
		service := &fakeAutomation{}
		handler := newHandler(service)

		body := `{"job_type":"rss_fetch","job_data":{"source_urls":["https://example.com/feed"],"limit":3}}`
		req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.Trigger(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		envelope := decodeEnvelope(t, rec)
		data, ok := envelope.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "job_test_1", data["job_id"])

		require.NotNil(t, service.triggerReq)
		assert.Equal(t, models.JobKindRSSFetch, service.triggerReq.Kind)
		payload, ok := service.triggerReq.Data.(models.RSSFetchPayload)
		require.True(t, ok)
		assert.Equal(t, 3, payload.Limit)
	})

	t.Run("missing job type rejected", func(t *testing.T) {
		handler := newHandler(&fakeAutomation{})

		req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader(`{"job_data":{}}`))
		rec := httptest.NewRecorder()
		handler.Trigger(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown job type rejected", func(t *testing.T) {
		handler := newHandler(&fakeAutomation{})

		req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader(`{"job_type":"reindex"}`))
		rec := httptest.NewRecorder()
		handler.Trigger(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not running maps to conflict", func(t *testing.T) {
		service := &fakeAutomation{triggerErr: automation.ErrNotRunning}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader(`{"job_type":"health_check"}`))
		rec := httptest.NewRecorder()
		handler.Trigger(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestStatusEndpoint(t *testing.T) {
	now := time.Now()
	service := &fakeAutomation{status: interfaces.AutomationStatus{
		Running:   true,
		StartedAt: &now,
		Queue:     models.QueueStatistics{PendingJobs: 4},
	}}
	handler := newHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/automation/status", nil)
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["running"])
}

func TestQueueStatsEndpoint(t *testing.T) {
	handler := newHandler(&fakeAutomation{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil)
	rec := httptest.NewRecorder()
	handler.QueueStats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["pending_jobs"])
}

func TestUpdateSchedulerConfigEndpoint(t *testing.T) {
	t.Run("partial update passes through", func(t *testing.T) {
		service := &fakeAutomation{}
		handler := newHandler(service)

		req := httptest.NewRequest(http.MethodPut, "/api/scheduler/config", strings.NewReader(`{"sweep_limit":25}`))
		rec := httptest.NewRecorder()
		handler.UpdateSchedulerConfig(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, service.update)
		require.NotNil(t, service.update.SweepLimit)
		assert.Equal(t, 25, *service.update.SweepLimit)
		assert.Nil(t, service.update.BatchSize)
	})

	t.Run("wrong method rejected", func(t *testing.T) {
		handler := newHandler(&fakeAutomation{})

		req := httptest.NewRequest(http.MethodPost, "/api/scheduler/config", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.UpdateSchedulerConfig(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

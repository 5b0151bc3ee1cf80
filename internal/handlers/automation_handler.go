package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/automation"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

// AutomationHandler exposes the coordinator operations over HTTP. Each
// endpoint maps 1:1 to a coordinator operation.
type AutomationHandler struct {
	service  interfaces.AutomationService
	queue    interfaces.QueueService
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewAutomationHandler creates the automation control handler
func NewAutomationHandler(service interfaces.AutomationService, queue interfaces.QueueService, logger arbor.ILogger) *AutomationHandler {
	return &AutomationHandler{
		service:  service,
		queue:    queue,
		validate: validator.New(),
		logger:   logger,
	}
}

type startRequest struct {
	Force  bool `json:"force"`
	Config struct {
		MaxConcurrentJobs *int `json:"max_concurrent_jobs,omitempty"`
	} `json:"config"`
}

// Start handles POST /api/automation/start
func (h *AutomationHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req startRequest
	if r.Body != nil {
		// An empty body means default options
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := h.service.Start(interfaces.StartOptions{
		Force:             req.Force,
		MaxConcurrentJobs: req.Config.MaxConcurrentJobs,
	})
	if err != nil {
		h.writeControlError(w, err)
		return
	}

	WriteSuccess(w, "Automation started", nil)
}

type stopRequest struct {
	Graceful *bool   `json:"graceful_shutdown,omitempty"`
	Timeout  float64 `json:"timeout,omitempty"` // Seconds
}

// Stop handles POST /api/automation/stop
func (h *AutomationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req stopRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	graceful := true
	if req.Graceful != nil {
		graceful = *req.Graceful
	}

	err := h.service.Stop(interfaces.StopOptions{
		Graceful: graceful,
		Timeout:  time.Duration(req.Timeout * float64(time.Second)),
	})
	if err != nil {
		h.writeControlError(w, err)
		return
	}

	WriteSuccess(w, "Automation stopped", nil)
}

// EmergencyStop handles POST /api/automation/emergency-stop
func (h *AutomationHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.service.EmergencyStop(); err != nil {
		h.writeControlError(w, err)
		return
	}

	WriteSuccess(w, "Automation emergency stopped", nil)
}

type triggerRequest struct {
	Kind     string          `json:"job_type" validate:"required"`
	Data     json.RawMessage `json:"job_data,omitempty"`
	Priority *int            `json:"priority,omitempty"`
}

// Trigger handles POST /api/automation/trigger
func (h *AutomationHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	kind := models.JobKind(req.Kind)
	data, err := models.DecodePayload(kind, req.Data)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.service.TriggerManualJob(interfaces.TriggerRequest{
		Kind:     kind,
		Data:     data,
		Priority: req.Priority,
	})
	if err != nil {
		h.writeControlError(w, err)
		return
	}

	WriteSuccess(w, "Job triggered", map[string]string{"job_id": id})
}

// Status handles GET /api/automation/status
func (h *AutomationHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteSuccess(w, "", h.service.Status())
}

// QueueStats handles GET /api/queue/stats
func (h *AutomationHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteSuccess(w, "", h.queue.GetStatistics())
}

// UpdateSchedulerConfig handles PUT /api/scheduler/config
func (h *AutomationHandler) UpdateSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var update interfaces.SchedulerUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.service.UpdateSchedulerConfig(update); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteSuccess(w, "Scheduler configuration updated", nil)
}

// writeControlError maps control-plane sentinel errors to HTTP statuses
func (h *AutomationHandler) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrAlreadyRunning), errors.Is(err, automation.ErrNotRunning):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, automation.ErrHealthCheckFailed):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		WriteError(w, http.StatusBadRequest, err.Error())
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
)

// APIHandler serves the health and version endpoints
type APIHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewAPIHandler creates the API handler
func NewAPIHandler(storage interfaces.StorageManager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		storage: storage,
		logger:  logger,
	}
}

// Health handles GET /api/health
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "storage unreachable: "+err.Error())
		return
	}

	WriteSuccess(w, "", map[string]string{"status": "healthy"})
}

// Version handles GET /api/version
func (h *APIHandler) Version(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteSuccess(w, "", map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
	})
}

package server

import (
	"net/http"
)

// registerRoutes binds the control endpoints. Each automation route maps
// 1:1 to a coordinator operation.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/automation/start", s.automationHandler.Start)
	mux.HandleFunc("/api/automation/stop", s.automationHandler.Stop)
	mux.HandleFunc("/api/automation/emergency-stop", s.automationHandler.EmergencyStop)
	mux.HandleFunc("/api/automation/trigger", s.automationHandler.Trigger)
	mux.HandleFunc("/api/automation/status", s.automationHandler.Status)

	mux.HandleFunc("/api/queue/stats", s.automationHandler.QueueStats)
	mux.HandleFunc("/api/scheduler/config", s.automationHandler.UpdateSchedulerConfig)

	mux.HandleFunc("/api/health", s.apiHandler.Health)
	mux.HandleFunc("/api/version", s.apiHandler.Version)

	if s.wsHandler != nil {
		mux.HandleFunc("/ws", s.wsHandler.Serve)
	}
}

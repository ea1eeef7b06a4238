package server

import (
	"net/http"

	"github.com/teranos/DMS/version"
)

// HandleRoot serves the API greeting
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, "Welcome to Document Management System API")
}

// HandleHealth serves liveness and build information
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    info.Version,
		"commit":     info.CommitHash,
		"build_time": info.BuildTime,
		"ingestion":  s.runner.Status().Status,
		"state":      s.State().String(),
	})
}

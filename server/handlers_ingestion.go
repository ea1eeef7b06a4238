package server

import (
	"net/http"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/logger"
)

// HandleTriggerIngestion starts a sweep in the background. A trigger while a
// sweep runs is accepted with the same response and does nothing.
func (s *Server) HandleTriggerIngestion(w http.ResponseWriter, r *http.Request) {
	started := s.runner.Trigger(logger.WithComponent(r.Context(), "ingestion"))
	logger.FromContext(r.Context(), s.logger).Infow("Ingestion triggered",
		logger.FieldUserID, auth.UserFromContext(r.Context()).ID,
		"started", started)
	writeMessage(w, "Ingestion process started")
}

// HandleIngestionStatus reports whether a sweep is running
func (s *Server) HandleIngestionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

// HandleIngestionLogs lists ingestion logs, newest first
func (s *Server) HandleIngestionLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.runner.ListLogs(r.Context())
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to list ingestion logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

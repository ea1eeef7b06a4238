package server

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

var (
	editors = []auth.Role{auth.RoleAdmin, auth.RoleEditor}
	admins  = []auth.Role{auth.RoleAdmin}
)

// routes builds the API mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	role := s.authMW.RequireRole
	authed := s.authMW.RequireAuth

	mux.HandleFunc("GET /{$}", s.HandleRoot)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Authentication
	mux.HandleFunc("POST /api/auth/register", s.HandleRegister)
	mux.HandleFunc("POST /api/auth/token", s.limiter.Wrap(s.HandleToken))
	mux.HandleFunc("GET /api/auth/me", authed(s.HandleMe))

	// User administration
	mux.HandleFunc("GET /api/users", role("view users", admins, s.HandleListUsers))
	mux.HandleFunc("GET /api/users/{id}", role("view users", admins, s.HandleGetUser))
	mux.HandleFunc("PUT /api/users/{id}", role("update users", admins, s.HandleUpdateUser))
	mux.HandleFunc("DELETE /api/users/{id}", role("delete users", admins, s.HandleDeleteUser))

	// Documents
	mux.HandleFunc("POST /api/documents", role("create documents", editors, s.HandleCreateDocument))
	mux.HandleFunc("GET /api/documents", authed(s.HandleListDocuments))
	mux.HandleFunc("GET /api/documents/{id}", authed(s.HandleGetDocument))
	mux.HandleFunc("PUT /api/documents/{id}", role("update documents", editors, s.HandleUpdateDocument))
	mux.HandleFunc("DELETE /api/documents/{id}", role("delete documents", admins, s.HandleDeleteDocument))

	// Ingestion
	mux.HandleFunc("POST /api/ingestion/trigger", role("trigger ingestion", editors, s.HandleTriggerIngestion))
	mux.HandleFunc("GET /api/ingestion/status", role("view ingestion status", editors, s.HandleIngestionStatus))
	mux.HandleFunc("GET /api/ingestion/logs", role("view ingestion logs", editors, s.HandleIngestionLogs))
	mux.HandleFunc("GET /api/ingestion/events", role("view ingestion status", editors, s.HandleIngestionEvents))

	return s.requestLogger(s.corsMiddleware(mux))
}

// corsMiddleware adds CORS headers for allowed origins and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, s.AllowedOrigins()) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the event stream take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestLogger tags each request with an ID and logs its outcome
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(rec, r.WithContext(ctx))

		log := logger.FromContext(ctx, s.logger)
		fields := []interface{}{
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldRemote, auth.ClientIP(r),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		}
		if rec.status >= http.StatusInternalServerError {
			log.Warnw("Request failed", fields...)
		} else {
			log.Debugw("Request served", fields...)
		}
	})
}

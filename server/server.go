// Package server exposes the DMS HTTP API: authentication, user
// administration, documents and ingestion control.
package server

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/document"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/ingestion"
)

// Deps are the services the HTTP layer is built on
type Deps struct {
	Users     *auth.Service
	Documents *document.Service
	Runner    *ingestion.Runner
	Gatherer  prometheus.Gatherer // nil serves the default registry
	Config    *am.Config
	Logger    *zap.SugaredLogger
}

// Server serves the DMS API
type Server struct {
	users     *auth.Service
	authMW    *auth.Middleware
	limiter   *auth.LoginLimiter
	documents *document.Service
	runner    *ingestion.Runner
	gatherer  prometheus.Gatherer
	maxUpload int64
	logger    *zap.SugaredLogger

	origins atomic.Pointer[[]string] // replaced on config reload

	handler http.Handler

	mu           sync.Mutex
	httpServer   *http.Server
	readTimeout  time.Duration
	writeTimeout time.Duration
	state        atomic.Int32

	// WebSocket streams are hijacked, so Shutdown does not wait for them.
	// streamMu orders streams.Add against closing being closed.
	streamMu sync.Mutex
	streams  sync.WaitGroup
	closing  chan struct{}
	closed   bool
}

// New wires the routes over deps
func New(deps Deps) (*Server, error) {
	if deps.Users == nil || deps.Documents == nil || deps.Runner == nil {
		return nil, errors.New("server requires user, document and ingestion services")
	}
	if deps.Config == nil {
		return nil, errors.New("server requires a config")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		users:        deps.Users,
		authMW:       auth.NewMiddleware(deps.Users, log.Named("auth")),
		limiter:      auth.NewLoginLimiter(deps.Config.Auth.LoginRatePerMinute),
		documents:    deps.Documents,
		runner:       deps.Runner,
		gatherer:     gatherer,
		maxUpload:    deps.Config.MaxUploadBytes(),
		logger:       log,
		readTimeout:  time.Duration(deps.Config.Server.ReadTimeoutSeconds) * time.Second,
		writeTimeout: time.Duration(deps.Config.Server.WriteTimeoutSeconds) * time.Second,
		closing:      make(chan struct{}),
	}
	s.SetAllowedOrigins(deps.Config.Server.AllowedOrigins)
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetAllowedOrigins replaces the CORS origin list
func (s *Server) SetAllowedOrigins(origins []string) {
	cp := append([]string(nil), origins...)
	s.origins.Store(&cp)
}

// AllowedOrigins returns the current CORS origin list
func (s *Server) AllowedOrigins() []string {
	if p := s.origins.Load(); p != nil {
		return *p
	}
	return nil
}

// Addr returns the bound listen address, or "" before Serve
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer == nil || s.httpServer.Addr == "" {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) newHTTPServer(ln net.Listener) *http.Server {
	return &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.handler,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

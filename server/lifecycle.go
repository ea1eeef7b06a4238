package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// ServerState is the lifecycle state of a Server
type ServerState int32

const (
	ServerStateIdle ServerState = iota
	ServerStateRunning
	ServerStateDraining
	ServerStateStopped
)

func (st ServerState) String() string {
	switch st {
	case ServerStateIdle:
		return "idle"
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle state
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(st ServerState) {
	s.state.Store(int32(st))
	s.logger.Infow("Server state changed", "new_state", st.String())
}

// Start listens on addr and serves until Stop. It returns nil after a
// graceful shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server already started")
	}
	srv := s.newHTTPServer(ln)
	s.httpServer = srv
	s.mu.Unlock()

	s.setState(ServerStateRunning)
	s.logger.Infow(fmt.Sprintf("HTTP server listening on %s", srv.Addr), logger.FieldAddress, srv.Addr)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop stops accepting requests, drains in-flight ones, closes event streams
// and then waits for a running ingestion sweep to finish, all bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http shutdown")
		}
	}

	s.closeStreams()

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		s.runner.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnw("Shutdown timed out waiting for ingestion sweep or event streams")
		if shutdownErr == nil {
			shutdownErr = errors.Wrap(ctx.Err(), "waiting for ingestion sweep")
		}
	}

	s.setState(ServerStateStopped)
	return shutdownErr
}

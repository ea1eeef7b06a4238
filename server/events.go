package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/logger"
)

// Timeouts for the status stream, after the gorilla chat example
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origin, s.AllowedOrigins())
		},
	}
}

// trackStream registers a stream with Stop, or reports false once Stop has begun
func (s *Server) trackStream() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.closed {
		return false
	}
	s.streams.Add(1)
	return true
}

// closeStreams tells open streams to end and refuses new ones
func (s *Server) closeStreams() {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
}

// HandleIngestionEvents upgrades to a WebSocket and pushes the ingestion
// status as JSON each time a sweep starts or finishes. Client messages are
// ignored. The stream ends when the client goes away or the server stops.
func (s *Server) HandleIngestionEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.logger).With(logger.FieldUserID, auth.UserFromContext(r.Context()).ID)

	if !s.trackStream() {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	defer s.streams.Done()

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		log.Debugw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}
	defer conn.Close()

	updates, cancel := s.runner.Subscribe()
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	log.Debugw("Ingestion event stream opened")
	for {
		select {
		case status := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(status); err != nil {
				log.Debugw("Ingestion event stream write failed", logger.FieldError, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			log.Debugw("Ingestion event stream closed by client")
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

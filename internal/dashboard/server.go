// Package dashboard serves the HTTP API and the live sync-status stream.
//
// The server exposes the recording, roster and sync operations as JSON
// routes and pushes driver status changes and recorded evidence to
// connected WebSocket clients, which is what a UI uses for its sync
// indicator.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// shutdownGrace bounds how long Stop waits for in-flight API requests.
const shutdownGrace = 5 * time.Second

// Config holds server configuration.
type Config struct {
	// Host to bind. Empty binds every interface.
	Host string

	// Port to listen on. 0 picks a free port.
	Port int

	Logger *log.Logger
}

// DefaultConfig listens on :8080 and logs to stderr.
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server owns the listener, the router and the WebSocket hub.
type Server struct {
	addr   string
	api    *API
	hub    *hub
	logger *log.Logger

	mu     sync.Mutex
	http   *http.Server
	ln     net.Listener
	served chan struct{} // closed when Serve returns
}

// NewServer creates a server for api. A nil api serves only /ws and /health.
func NewServer(api *API, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}

	s := &Server{
		addr:   net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		api:    api,
		hub:    newHub(logger),
		logger: logger,
	}
	if api != nil {
		api.notify = s.Broadcast
	}
	return s
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	if s.api != nil {
		r.Route("/api", s.api.Routes)
	}
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	served := make(chan struct{})

	s.mu.Lock()
	s.http, s.ln, s.served = srv, ln, served
	s.mu.Unlock()

	s.logger.Printf("Listening on %s", ln.Addr())
	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Serve: %v", err)
		}
	}()
	return nil
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop disconnects WebSocket clients and drains API requests. Calling it
// again is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, served := s.http, s.served
	s.http = nil
	s.mu.Unlock()

	s.hub.close()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-served
	if err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	s.logger.Println("Stopped")
	return nil
}

// Broadcast sends msg to every connected client. It never blocks.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Dropping %s message: %v", msg.Type, err)
		return
	}
	s.hub.publish(data)
}

// handleWebSocket registers a listen-only client. Its first frame is the
// current sync status.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newClient(conn)
	if s.api != nil && s.api.Sync != nil {
		if msg, err := NewMessage(MessageTypeStatus, s.api.Sync.Status()); err == nil {
			if data, err := json.Marshal(msg); err == nil {
				c.send <- data
			}
		}
	}
	if !s.hub.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server stopping")
		return
	}
	defer s.hub.remove(c)
	go c.writeLoop()

	// CloseRead answers pings and ends the context once the peer goes away
	// or writeLoop closes the connection.
	<-conn.CloseRead(context.Background()).Done()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// GetAddr returns the bound address once started, else the configured one.
func (s *Server) GetAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}

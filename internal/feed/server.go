// Package feed serves the live record feed over WebSocket and a small
// admin HTTP surface for on-demand dumps and daemon introspection.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/baro-monitor/internal/config"
)

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Commander is the slice of the supervisor the dump endpoint needs.
type Commander interface {
	WorkerIDs() []int
	SendCommand(workerID int, cmd string) error
	DrainData(workerID int) []string
}

// Event is one message pushed to feed subscribers.
type Event struct {
	Type   string   `json:"type"` // "record" or "dump"
	Sensor int      `json:"sensor"`
	Line   string   `json:"line,omitempty"`
	Lines  []string `json:"lines,omitempty"`
	At     int64    `json:"at"`
}

// Server manages feed subscribers and the admin endpoints. It
// implements the worker publisher contract, so every sampled record is
// pushed to connected clients as it happens.
type Server struct {
	addr           string
	authToken      string
	allowedOrigins []string
	dumpWait       time.Duration
	commander      Commander
	stats          func() map[string]any
	logger         zerolog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mutex   sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewServer creates a feed server from cfg. commander may be nil, which
// disables the dump endpoint. stats may be nil.
func NewServer(cfg config.FeedConfig, commander Commander, stats func() map[string]any, logger zerolog.Logger) *Server {
	s := &Server{
		addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		authToken:      cfg.AuthToken,
		allowedOrigins: cfg.AllowedOrigins,
		dumpWait:       500 * time.Millisecond,
		commander:      commander,
		stats:          stats,
		logger:         logger,
		clients:        make(map[*websocket.Conn]bool),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	return s
}

// SetCommander wires the dump endpoint's backend. Call before Start;
// the feed and the supervisor are built in that order because the
// workers publish through the feed.
func (s *Server) SetCommander(c Commander) {
	s.commander = c
}

// checkOrigin validates the request's Origin against the allowlist. An
// absent Origin header means same-origin and is always accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	s.logger.Warn().Str("origin", origin).Msg("rejected connection: origin not in allowlist")
	return false
}

// Routes registers the handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/feed", s.handleFeed)
	mux.HandleFunc("/dump", s.handleDump)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.Routes(mux)
	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}
	s.logger.Info().Str("addr", s.addr).Msg("feed server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("feed server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and closes every subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mutex.Unlock()

	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// validateToken checks an "Authorization: Bearer <token>" header.
func (s *Server) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == s.authToken
}

// handleFeed upgrades the connection and subscribes it to the live
// record stream. The client is not expected to send anything; the read
// loop only notices disconnects and keeps the pong deadline fresh.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !s.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	s.mutex.Lock()
	s.clients[conn] = true
	s.mutex.Unlock()
	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("feed subscriber connected")

	defer func() {
		s.mutex.Lock()
		delete(s.clients, conn)
		s.mutex.Unlock()
		conn.Close()
		s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("feed subscriber disconnected")
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("feed read error")
			}
			return
		}
	}
}

// Publish broadcasts one sampled record to every subscriber. It
// satisfies the worker publisher contract.
func (s *Server) Publish(sensorID int, line string) {
	s.broadcast(Event{Type: "record", Sensor: sensorID, Line: line, At: time.Now().Unix()})
}

// PublishDump broadcasts a relayed history dump.
func (s *Server) PublishDump(sensorID int, lines []string) {
	s.broadcast(Event{Type: "dump", Sensor: sensorID, Lines: lines, At: time.Now().Unix()})
}

// broadcast takes the write lock: gorilla connections allow a single
// concurrent writer, and every worker publishes through here.
func (s *Server) broadcast(ev Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Warn().Err(err).Msg("failed to push event, dropping subscriber")
			// The read loop notices the closed conn and unregisters it.
			conn.Close()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

// handleDump commands one worker to dump its history and returns the
// drained lines. POST /dump?sensor=N
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if s.commander == nil {
		http.Error(w, "dumps unavailable", http.StatusServiceUnavailable)
		return
	}

	sensorID, err := strconv.Atoi(r.URL.Query().Get("sensor"))
	if err != nil {
		http.Error(w, "invalid sensor id", http.StatusBadRequest)
		return
	}

	if err := s.commander.SendCommand(sensorID, "dump"); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Give the worker loop a tick to pick the command up.
	time.Sleep(s.dumpWait)
	lines := s.commander.DrainData(sensorID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sensor": sensorID,
		"lines":  lines,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":      "ok",
		"subscribers": s.ClientCount(),
	}
	if s.commander != nil {
		resp["sensors"] = s.commander.WorkerIDs()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	stats := map[string]any{"subscribers": s.ClientCount()}
	if s.stats != nil {
		for k, v := range s.stats() {
			stats[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

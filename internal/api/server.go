package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"roomchat/internal/membership"
	"roomchat/pkg/types"
)

// RoomSource is the read side of the room registry
type RoomSource interface {
	Rooms() []membership.RoomStats
	Room(room string) (membership.RoomStats, bool)
	Counts() (rooms, connections int)
}

// HealthChecker reports storage health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization.
// Everything here is read-only; rooms are only created and deleted over the WebSocket
type Server struct {
	rooms   RoomSource
	health  HealthChecker
	started time.Time
	router  *http.ServeMux
	log     *slog.Logger
}

// NewServer wires the handlers; health may be nil when no store is configured
func NewServer(rooms RoomSource, health HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		rooms:   rooms,
		health:  health,
		started: time.Now(),
		router:  http.NewServeMux(),
		log:     logger.With("component", "api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/rooms", s.jsonMiddleware(http.HandlerFunc(s.handleRooms)))
	s.router.Handle("/api/rooms/", s.jsonMiddleware(http.HandlerFunc(s.handleRoomByName)))
	s.router.Handle("/health", s.jsonMiddleware(http.HandlerFunc(s.healthCheck)))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListRoomsResponse is the body of GET /api/rooms
type ListRoomsResponse struct {
	Rooms       []membership.RoomStats `json:"rooms"`
	Connections int                    `json:"connections"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Rooms     int            `json:"rooms"`
	Members   int            `json:"members"`
	System    map[string]any `json:"system"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/rooms
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.rooms.Rooms()
	connections := 0
	for _, room := range stats {
		connections += room.Members
	}
	s.writeJSON(w, http.StatusOK, ListRoomsResponse{Rooms: stats, Connections: connections})
}

// GET /api/rooms/{name}; the name is normalized the same way joins normalize it
func (s *Server) handleRoomByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := types.NormalizeRoomName(strings.TrimPrefix(r.URL.Path, "/api/rooms/"))
	if name == "" || strings.Contains(name, "/") {
		s.sendError(w, "Room name required", http.StatusBadRequest)
		return
	}

	room, ok := s.rooms.Room(name)
	if !ok {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			s.log.Warn("health check failed", "error", err)
			status = "unhealthy"
			dbStatus = "error: " + err.Error()
		}
	}

	rooms, members := s.rooms.Counts()
	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Rooms:     rooms,
		Members:   members,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "error", err)
	}
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

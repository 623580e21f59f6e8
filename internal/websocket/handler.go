package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dispatcher consumes inbound frames and disconnects
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, data []byte) error
	Disconnect(connID string)
}

// HandlerConfig holds the transport settings
type HandlerConfig struct {
	ReadLimit        int64
	PongWait         time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
	AllowedOrigins   []string // empty or "*" allows every origin
}

// DefaultHandlerConfig returns production defaults
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadLimit:        16 * 1024,
		PongWait:         60 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     DefaultWriteTimeout,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       DefaultBufferSize,
	}
}

// Handler upgrades HTTP requests and runs one read pump per connection
// ARCHITECTURAL DISCOVERY: Frames from one connection are dispatched in order
// on its read pump goroutine, which serializes that connection's Join, Send
// and Delete against its own disconnect cleanup
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	cfg        HandlerConfig
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher Dispatcher, cfg HandlerConfig, logger *slog.Logger) *Handler {
	defaults := DefaultHandlerConfig()
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        logger.With("component", "websocket"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and starts the connection lifecycle
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	// ARCHITECTURAL DISCOVERY: Server controls connection IDs to prevent client manipulation
	wsConn := NewConnection(uuid.New().String(), conn, ConnectionOptions{
		BufferSize:   h.cfg.BufferSize,
		WriteTimeout: h.cfg.WriteTimeout,
		Logger:       h.log,
	})

	if err := h.registry.Register(wsConn); err != nil {
		h.log.Error("failed to register connection", "conn_id", wsConn.ID(), "error", err)
		_ = wsConn.Close()
		return
	}

	h.log.Info("connection opened", "conn_id", wsConn.ID(), "remote", r.RemoteAddr)
	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup runs whatever ended the read
		// pump, so disconnect cleanup is always attempted
		h.dispatcher.Disconnect(conn.ID())
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.log.Info("connection closed", "conn_id", conn.ID())
	}()

	conn.conn.SetReadLimit(h.cfg.ReadLimit)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		h.log.Warn("failed to set read deadline", "conn_id", conn.ID(), "error", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "conn_id", conn.ID(), "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		// Errors are reported to the caller by the dispatcher
		_ = h.dispatcher.Dispatch(conn.Context(), conn.ID(), data)
	}
}

// pingLoop sends heartbeat pings until the connection closes
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.writePing(); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Context().Done():
			return
		}
	}
}

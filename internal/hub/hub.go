package hub

import (
	"context"
	"log/slog"
	"sync"

	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

// MemberSource lists the connections currently in a room
type MemberSource interface {
	Members(room string) []string
}

// ConnectionSource resolves a connection id to its live connection
type ConnectionSource interface {
	Lookup(connID string) (interfaces.Connection, bool)
}

// roomEvent is one room-wide event waiting for the mirror
type roomEvent struct {
	room  string
	event types.Event
}

// Hub delivers events to room members and single connections
// ARCHITECTURAL DISCOVERY: Delivery itself is synchronous: each recipient's
// connection owns a buffered write channel, so fan-out only enqueues. The hub
// goroutine exists for the optional mirror, keeping external publishing off
// the caller's path.
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channel absorbs bursts; a full queue drops
	// the mirror copy, never the delivery
	mirrorChannel   chan roomEvent
	shutdownChannel chan struct{}
	done            chan struct{}

	members     MemberSource
	connections ConnectionSource
	mirror      Mirror
	log         *slog.Logger

	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub
// mirror may be nil, in which case room events are not published anywhere else
func NewHub(members MemberSource, connections ConnectionSource, mirror Mirror, logger *slog.Logger) *Hub {
	if mirror == nil {
		mirror = NopMirror{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		mirrorChannel:   make(chan roomEvent, 1000),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		members:         members,
		connections:     connections,
		mirror:          mirror,
		log:             logger.With("component", "hub"),
	}
}

// Start begins mirror processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.shutdownChannel:
		// TECHNICAL DISCOVERY: Channels are single-use; a stopped hub stays stopped
		return ErrHubStopped
	default:
	}
	h.running = true

	h.log.Info("starting hub")
	go h.run(ctx)
	return nil
}

// Stop shuts the mirror loop down and waits for it to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	h.log.Info("stopping hub")
	<-h.done
	return nil
}

// ToRoom delivers event to every connection in room
// FUNCTIONAL DISCOVERY: Members are snapshotted at call time; a failed
// recipient is logged and skipped so the rest still receive the event
func (h *Hub) ToRoom(room string, event types.Event) {
	for _, connID := range h.members.Members(room) {
		if err := h.deliver(connID, event); err != nil {
			h.log.Warn("room delivery failed", "room", room, "conn_id", connID, "event", event.Type, "error", err)
		}
	}
	h.enqueueMirror(room, event)
}

// ToConnection delivers event to one connection
func (h *Hub) ToConnection(connID string, event types.Event) error {
	return h.deliver(connID, event)
}

func (h *Hub) deliver(connID string, event types.Event) error {
	conn, ok := h.connections.Lookup(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	return conn.WriteJSON(event)
}

func (h *Hub) enqueueMirror(room string, event types.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return
	}
	select {
	case h.mirrorChannel <- roomEvent{room: room, event: event}:
	default:
		h.log.Warn("mirror queue full, dropping event", "room", room, "event", event.Type)
	}
}

// run is the mirror loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.log.Info("hub processing stopped")

	for {
		select {
		case re := <-h.mirrorChannel:
			if err := h.mirror.Publish(ctx, re.room, re.event); err != nil {
				h.log.Warn("mirror publish failed", "room", re.room, "event", re.event.Type, "error", err)
			}

		case <-h.shutdownChannel:
			return

		case <-ctx.Done():
			h.log.Info("hub context cancelled")
			return
		}
	}
}

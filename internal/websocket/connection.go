package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultBufferSize   = 100
	DefaultWriteTimeout = 5 * time.Second
)

// ConnectionOptions tunes a Connection
type ConnectionOptions struct {
	BufferSize   int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no room logic in connection wrapper
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte // FUNCTIONAL DISCOVERY: buffer absorbs broadcast bursts
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	log          *slog.Logger
}

// NewConnection creates a new WebSocket connection wrapper
func NewConnection(id string, conn *websocket.Conn, opts ConnectionOptions) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		conn:         conn,
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
		log:          opts.Logger.With("conn_id", id),
	}

	// Start the single writer goroutine
	go c.writeLoop()

	return c
}

// ID returns the server-assigned connection id
func (c *Connection) ID() string {
	return c.id
}

// Context is cancelled when the connection closes
func (c *Connection) Context() context.Context {
	return c.ctx
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// TECHNICAL DISCOVERY: writeCh is never closed; WriteJSON selects on ctx so a
// late writer after Close cannot panic on a closed channel
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("set write deadline failed", "error", err)
				_ = c.Close()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed, closing connection", "error", err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON implementation with timeout and error handling
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// writePing sends a heartbeat ping; WriteControl may run concurrently with writeLoop
func (c *Connection) writePing() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close stops the writer and closes the socket; safe to call more than once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

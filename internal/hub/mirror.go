package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"roomchat/pkg/types"
)

// Mirror receives a copy of every room-wide event
// ARCHITECTURAL DISCOVERY: Observation only; nothing reads membership back
// from a mirror, so the hub stays single-process as far as rooms go
type Mirror interface {
	Publish(ctx context.Context, room string, event types.Event) error
	Close() error
}

// NopMirror discards events
type NopMirror struct{}

func (NopMirror) Publish(context.Context, string, types.Event) error { return nil }
func (NopMirror) Close() error                                       { return nil }

// MirrorMessage is the payload published for each room event
type MirrorMessage struct {
	Room  string      `json:"room"`
	Event types.Event `json:"event"`
	At    time.Time   `json:"at"`
}

// RedisMirror publishes room events on Redis pub/sub
type RedisMirror struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

// NewRedisMirror connects to redis and verifies connectivity
func NewRedisMirror(ctx context.Context, addr, password string, db int, prefix string, logger *slog.Logger) (*RedisMirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisMirror{rdb: rdb, prefix: prefix, timeout: 2 * time.Second, log: logger}, nil
}

// Channel returns the pub/sub channel name for room
func (m *RedisMirror) Channel(room string) string {
	return m.prefix + room
}

// Publish sends event to the room's channel
func (m *RedisMirror) Publish(ctx context.Context, room string, event types.Event) error {
	raw, err := json.Marshal(MirrorMessage{Room: room, Event: event, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal mirror message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.rdb.Publish(ctx, m.Channel(room), raw).Err()
}

// Subscribe listens to every room channel and invokes fn for each message
// until ctx is done; used by observers and tests
func (m *RedisMirror) Subscribe(ctx context.Context, fn func(MirrorMessage)) error {
	pubsub := m.rdb.PSubscribe(ctx, m.Channel("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var mm MirrorMessage
			if err := json.Unmarshal([]byte(msg.Payload), &mm); err != nil {
				m.log.Warn("invalid mirror payload", "channel", msg.Channel, "error", err)
				continue
			}
			fn(mm)
		}
	}
}

// Close shuts down the redis connection
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

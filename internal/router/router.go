package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"roomchat/internal/session"
	"roomchat/pkg/types"
)

// Controller is the session behaviour the router drives
type Controller interface {
	Join(ctx context.Context, connID, displayName, roomName string) error
	Send(ctx context.Context, connID, text string) error
	Delete(ctx context.Context, connID, roomName string) error
	Leave(connID string)
}

// Replier delivers caller-only events
type Replier interface {
	ToConnection(connID string, event types.Event) error
}

const (
	msgInvalidFrame = "Некорректный запрос"
	msgRateLimited  = "Слишком много сообщений, попробуйте позже"
)

// Router decodes client frames and dispatches them to the controller
// ARCHITECTURAL DISCOVERY: The single boundary where operation failures
// become caller-only ShowError events; nothing behind it writes errors to
// clients
type Router struct {
	controller  Controller
	replies     Replier
	rateLimiter *RateLimiter
	log         *slog.Logger
}

// NewRouter creates a new router
func NewRouter(controller Controller, replies Replier, rateLimiter *RateLimiter, logger *slog.Logger) *Router {
	if rateLimiter == nil {
		rateLimiter = NewRateLimiter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		controller:  controller,
		replies:     replies,
		rateLimiter: rateLimiter,
		log:         logger.With("component", "router"),
	}
}

// Dispatch handles one inbound frame from connID
// The returned error has already been reported to the caller
func (r *Router) Dispatch(ctx context.Context, connID string, data []byte) error {
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		r.reply(connID, msgInvalidFrame, err)
		return err
	}

	var err error
	switch frame.Type {
	case types.FrameJoin:
		err = r.controller.Join(ctx, connID, frame.DisplayName, frame.RoomName)

	case types.FrameSend:
		// TECHNICAL DISCOVERY: Rate limiting applied per connection before
		// persistence to prevent spam
		if !r.rateLimiter.Allow(connID) {
			r.reply(connID, msgRateLimited, ErrRateLimitExceeded)
			return ErrRateLimitExceeded
		}
		err = r.controller.Send(ctx, connID, frame.Text)

	case types.FrameDelete:
		err = r.controller.Delete(ctx, connID, frame.RoomName)

	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFrameType, frame.Type)
		r.reply(connID, msgInvalidFrame, err)
		return err
	}

	if err != nil {
		r.reply(connID, session.UserMessage(err), err)
	}
	return err
}

// Disconnect runs the leave cleanup for connID
// FUNCTIONAL DISCOVERY: Always called by the transport when a read pump ends,
// whatever the reason; it cannot fail
func (r *Router) Disconnect(connID string) {
	r.controller.Leave(connID)
	r.rateLimiter.Forget(connID)
}

func (r *Router) reply(connID, text string, cause error) {
	level := slog.LevelInfo
	if k := session.KindOf(cause); k == session.KindPersistence || k == session.KindCrypto || k == session.KindInternal {
		level = slog.LevelWarn
	}
	r.log.Log(context.Background(), level, "operation failed", "conn_id", connID, "kind", session.KindOf(cause).String(), "error", cause)

	if err := r.replies.ToConnection(connID, types.NewShowError(text)); err != nil {
		r.log.Warn("failed to deliver error to caller", "conn_id", connID, "error", err)
	}
}

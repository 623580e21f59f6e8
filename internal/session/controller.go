package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"roomchat/internal/membership"
	"roomchat/internal/metrics"
	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

const (
	DefaultHistoryLimit     = 100
	DefaultMaxMessageLength = 1000
)

// Options tunes a Controller
type Options struct {
	HistoryLimit     int
	MaxMessageLength int
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	Now              func() time.Time
}

// Controller runs the Join, Send, Leave and Delete operations
// ARCHITECTURAL DISCOVERY: The controller owns no state of its own beyond
// injected collaborators; membership lives in Registry and Directory,
// durable records in the Store, delivery in the Gateway
type Controller struct {
	registry  *membership.Registry
	directory *membership.Directory
	view      *membership.View
	store     interfaces.Store
	cipher    interfaces.Cipher
	gateway   interfaces.Gateway

	historyLimit int
	maxMessage   int
	log          *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	sendLocks roomLocks
	creates   singleflight.Group
}

// NewController creates a session controller
func NewController(
	registry *membership.Registry,
	directory *membership.Directory,
	store interfaces.Store,
	cipher interfaces.Cipher,
	gateway interfaces.Gateway,
	opts Options,
) *Controller {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Controller{
		registry:     registry,
		directory:    directory,
		view:         membership.NewView(registry, directory),
		store:        store,
		cipher:       cipher,
		gateway:      gateway,
		historyLimit: opts.HistoryLimit,
		maxMessage:   opts.MaxMessageLength,
		log:          opts.Logger.With("component", "session"),
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
}

// Join puts connID into roomName under displayName
// FUNCTIONAL DISCOVERY: The caller receives key material and history before
// the binding is recorded; any failure before the bind removes the registry
// entry again so the connection stays unjoined
func (c *Controller) Join(ctx context.Context, connID, displayName, roomName string) error {
	name := types.NormalizeDisplayName(displayName)
	room := types.NormalizeRoomName(roomName)

	if err := types.ValidateDisplayName(name); err != nil {
		c.metrics.Join(metrics.ResultRejected)
		return newError(KindValidation, "join", displayNameMessage(err), err)
	}
	if err := types.ValidateRoomName(room); err != nil {
		c.metrics.Join(metrics.ResultRejected)
		return newError(KindValidation, "join", roomNameMessage(err), err)
	}
	if _, bound := c.directory.Lookup(connID); bound {
		c.metrics.Join(metrics.ResultRejected)
		return newError(KindValidation, "join", msgAlreadyJoined, ErrAlreadyJoined)
	}

	if err := c.registry.Join(room, connID, name); err != nil {
		c.metrics.Join(metrics.ResultRejected)
		return newError(KindNameConflict, "join", fmt.Sprintf(msgNameTaken, name), err)
	}

	record, err := c.ensureRoom(ctx, room)
	if err != nil {
		c.rollbackJoin(room, connID)
		c.log.Error("failed to fetch or create room", "room", room, "conn_id", connID, "error", err)
		if errors.Is(err, errKeyMaterial) {
			return newError(KindCrypto, "join", msgKeyMaterialFail, err)
		}
		return newError(KindPersistence, "join", msgJoinFailed, err)
	}

	if err := c.gateway.ToConnection(connID, types.NewEncryptionKeys(record.Key, record.IV)); err != nil {
		c.log.Warn("failed to deliver key material", "room", room, "conn_id", connID, "error", err)
	}

	// FUNCTIONAL DISCOVERY: Sends to this room wait from the history snapshot
	// until the bind, so each message reaches the joiner exactly once: in the
	// replay if it was persisted first, live otherwise
	unlock := c.sendLocks.lock(room)
	msgs, err := c.store.ListRecentMessages(ctx, record.ID, c.historyLimit)
	if err != nil {
		unlock()
		c.rollbackJoin(room, connID)
		c.log.Error("failed to load history", "room", room, "conn_id", connID, "error", err)
		return newError(KindPersistence, "join", msgHistoryFailed, err)
	}
	c.replayHistory(connID, msgs, record)

	// ARCHITECTURAL DISCOVERY: Bind under the registry lock; if a Delete
	// dropped the room meanwhile the connection is no longer a member and
	// must stay unbound
	bound := c.registry.WithMember(room, connID, func() {
		c.directory.Bind(connID, name, room)
	})
	unlock()
	if !bound {
		c.metrics.Join(metrics.ResultFailed)
		return newError(KindNotFound, "join", msgRoomGone, ErrRoomDeleted)
	}

	c.metrics.Join(metrics.ResultOK)
	c.metrics.SetActive(c.registry.Counts())
	c.log.Info("joined room", "room", room, "conn_id", connID, "name", name)

	c.gateway.ToRoom(room, types.NewSystemNotification(fmt.Sprintf(noticeJoined, name)))
	c.gateway.ToRoom(room, types.NewUserList(c.view.Names(room)))
	return nil
}

func (c *Controller) rollbackJoin(room, connID string) {
	c.registry.Leave(room, connID)
	c.metrics.Join(metrics.ResultFailed)
}

func (c *Controller) replayHistory(connID string, msgs []*types.Message, record *types.Room) {
	for entry := range History(msgs, c.cipher, record.Key, record.IV) {
		if entry.Failed {
			c.metrics.HistoryDecryptFailure()
			c.log.Warn("history entry could not be decrypted", "room", record.Name, "sender", entry.Sender)
		}
		if err := c.gateway.ToConnection(connID, types.NewReceiveMessage(entry.Sender, entry.Text, entry.Timestamp)); err != nil {
			c.log.Warn("failed to deliver history", "room", record.Name, "conn_id", connID, "error", err)
			return
		}
	}
}

var errKeyMaterial = errors.New("generate key material")

// roomFetchTimeout bounds a shared fetch-or-create once it no longer follows
// any single caller's context
const roomFetchTimeout = 30 * time.Second

// ensureRoom fetches the room record or creates it with fresh key material
// TECHNICAL DISCOVERY: Concurrent first joins in this process share one
// fetch-or-create through singleflight; a creation conflict from another
// writer of the same store is resolved by fetching the winner's record.
// The shared call runs detached from the caller that started it, so one
// client going away cannot fail the other joiners; each caller still stops
// waiting when its own ctx ends
func (c *Controller) ensureRoom(ctx context.Context, room string) (*types.Room, error) {
	ch := c.creates.DoChan(room, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), roomFetchTimeout)
		defer cancel()
		return c.fetchOrCreateRoom(shared, room)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.Room), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("find room: %w", ctx.Err())
	}
}

func (c *Controller) fetchOrCreateRoom(ctx context.Context, room string) (*types.Room, error) {
	record, err := c.store.FindRoomByName(ctx, room)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, interfaces.ErrRoomNotFound) {
		return nil, fmt.Errorf("find room: %w", err)
	}

	key, iv, err := c.cipher.GenerateKeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errKeyMaterial, err)
	}

	record, err = c.store.CreateRoom(ctx, room, key, iv)
	if errors.Is(err, interfaces.ErrRoomExists) {
		c.log.Debug("room created concurrently, re-fetching", "room", room)
		record, err = c.store.FindRoomByName(ctx, room)
	}
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return record, nil
}

// Send persists text for the room of connID and broadcasts it
// FUNCTIONAL DISCOVERY: Durability precedes broadcast; a message that was not
// appended is never delivered to anyone
func (c *Controller) Send(ctx context.Context, connID, text string) error {
	if err := types.ValidateMessageText(text, c.maxMessage); err != nil {
		c.metrics.Message(metrics.ResultRejected)
		return newError(KindValidation, "send", c.messageTextMessage(err), err)
	}

	binding, ok := c.directory.Lookup(connID)
	if !ok {
		c.metrics.Message(metrics.ResultRejected)
		return newError(KindNotFound, "send", msgNotJoined, ErrNotJoined)
	}

	record, err := c.store.FindRoomByName(ctx, binding.Room)
	if errors.Is(err, interfaces.ErrRoomNotFound) {
		c.metrics.Message(metrics.ResultRejected)
		return newError(KindNotFound, "send", msgRoomGone, err)
	}
	if err != nil {
		c.metrics.Message(metrics.ResultFailed)
		c.log.Error("failed to load room for send", "room", binding.Room, "error", err)
		return newError(KindPersistence, "send", msgSendFailed, err)
	}

	sealed, err := c.cipher.Seal(text, record.Key, record.IV)
	if err != nil {
		c.metrics.Message(metrics.ResultFailed)
		c.log.Error("failed to encrypt message", "room", binding.Room, "error", err)
		return newError(KindCrypto, "send", msgEncryptFailed, err)
	}

	unlock := c.sendLocks.lock(binding.Room)
	defer unlock()

	msg := &types.Message{
		ID:         uuid.New().String(),
		RoomID:     record.ID,
		Sender:     binding.DisplayName,
		Ciphertext: sealed,
		Timestamp:  c.now(),
	}
	if err := c.store.AppendMessage(ctx, msg); err != nil {
		c.metrics.Message(metrics.ResultFailed)
		c.log.Error("failed to persist message", "room", binding.Room, "error", err)
		return newError(KindPersistence, "send", msgSendFailed, err)
	}

	c.metrics.Message(metrics.ResultOK)
	c.gateway.ToRoom(binding.Room, types.NewReceiveMessage(msg.Sender, text, msg.Timestamp))
	return nil
}

// Leave retracts the binding and membership of connID
// Runs on disconnect; it never fails and calling it twice is a no-op
func (c *Controller) Leave(connID string) {
	binding, ok := c.directory.Lookup(connID)
	if !ok {
		return
	}

	var removed bool
	empty := c.registry.Detach(binding.Room, connID, func() {
		_, removed = c.directory.UnbindFrom(connID, binding.Room)
	})
	if !removed {
		// A concurrent Leave or Delete already retracted it
		return
	}

	c.metrics.SetActive(c.registry.Counts())
	c.log.Info("left room", "room", binding.Room, "conn_id", connID, "name", binding.DisplayName)

	if empty {
		return
	}
	c.gateway.ToRoom(binding.Room, types.NewSystemNotification(fmt.Sprintf(noticeLeft, binding.DisplayName)))
	c.gateway.ToRoom(binding.Room, types.NewUserList(c.view.Names(binding.Room)))
}

// Delete removes roomName durably and evicts its members
// ARCHITECTURAL DISCOVERY: The store delete defines success; once it returns
// the room is gone and the in-memory eviction only follows it
func (c *Controller) Delete(ctx context.Context, connID, roomName string) error {
	room := types.NormalizeRoomName(roomName)
	if err := types.ValidateRoomName(room); err != nil {
		return newError(KindValidation, "delete", roomNameMessage(err), err)
	}

	record, err := c.store.FindRoomByName(ctx, room)
	if errors.Is(err, interfaces.ErrRoomNotFound) {
		return newError(KindNotFound, "delete", fmt.Sprintf(msgRoomNotFound, room), err)
	}
	if err != nil {
		c.log.Error("failed to load room for delete", "room", room, "error", err)
		return newError(KindPersistence, "delete", msgDeleteFailed, err)
	}

	if err := c.store.DeleteRoom(ctx, record.ID); err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			return newError(KindNotFound, "delete", fmt.Sprintf(msgRoomNotFound, room), err)
		}
		c.log.Error("failed to delete room", "room", room, "error", err)
		return newError(KindPersistence, "delete", msgDeleteFailed, err)
	}

	members := c.registry.DropRoom(room, func(memberID string) {
		c.directory.UnbindFrom(memberID, room)
	})

	c.metrics.RoomDeleted()
	c.metrics.SetActive(c.registry.Counts())
	c.log.Info("deleted room", "room", room, "requested_by", connID, "members", len(members))

	notice := types.NewSystemNotification(fmt.Sprintf(noticeDeleted, room))
	requesterNotified := false
	for _, memberID := range members {
		if memberID == connID {
			requesterNotified = true
		}
		if err := c.gateway.ToConnection(memberID, notice); err != nil {
			c.log.Warn("failed to notify member of deletion", "room", room, "conn_id", memberID, "error", err)
		}
	}
	if !requesterNotified {
		if err := c.gateway.ToConnection(connID, notice); err != nil {
			c.log.Warn("failed to notify requester of deletion", "room", room, "conn_id", connID, "error", err)
		}
	}
	return nil
}

func displayNameMessage(err error) string {
	if errors.Is(err, types.ErrEmptyDisplayName) {
		return msgEmptyName
	}
	return msgInvalidName
}

func roomNameMessage(err error) string {
	if errors.Is(err, types.ErrEmptyRoomName) {
		return msgEmptyRoom
	}
	return msgInvalidRoom
}

func (c *Controller) messageTextMessage(err error) string {
	if errors.Is(err, types.ErrMessageTooLong) {
		return fmt.Sprintf(msgMessageTooLong, c.maxMessage)
	}
	return msgEmptyMessage
}

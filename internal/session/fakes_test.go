package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/membership"
	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

var errStoreDown = errors.New("store unavailable")

// memoryStore is an in-memory interfaces.Store for controller tests
type memoryStore struct {
	mu       sync.Mutex
	rooms    map[string]*types.Room
	messages map[string][]*types.Message

	creates       int
	failFind      error
	failAppend    error
	failList      error
	conflictFirst bool // first CreateRoom behaves as if another writer won

	// beforeFind runs ahead of every FindRoomByName, outside the store lock
	beforeFind func(ctx context.Context) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		rooms:    make(map[string]*types.Room),
		messages: make(map[string][]*types.Message),
	}
}

func (s *memoryStore) FindRoomByName(ctx context.Context, name string) (*types.Room, error) {
	if s.beforeFind != nil {
		if err := s.beforeFind(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFind != nil {
		return nil, s.failFind
	}
	room, ok := s.rooms[name]
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (s *memoryStore) CreateRoom(ctx context.Context, name string, key, iv []byte) (*types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates++
	if s.conflictFirst {
		s.conflictFirst = false
		s.rooms[name] = &types.Room{ID: uuid.New().String(), Name: name, CreatedAt: time.Now(), Key: key, IV: iv}
		return nil, interfaces.ErrRoomExists
	}
	if _, exists := s.rooms[name]; exists {
		return nil, interfaces.ErrRoomExists
	}

	room := &types.Room{ID: uuid.New().String(), Name: name, CreatedAt: time.Now(), Key: key, IV: iv}
	s.rooms[name] = room
	copied := *room
	return &copied, nil
}

func (s *memoryStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, room := range s.rooms {
		if room.ID == roomID {
			delete(s.rooms, name)
			delete(s.messages, roomID)
			return nil
		}
	}
	return interfaces.ErrRoomNotFound
}

func (s *memoryStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppend != nil {
		return s.failAppend
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return nil
}

func (s *memoryStore) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failList != nil {
		return nil, s.failList
	}
	msgs := s.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memoryStore) HealthCheck(ctx context.Context) error { return nil }
func (s *memoryStore) Close() error                          { return nil }

func (s *memoryStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, msgs := range s.messages {
		n += len(msgs)
	}
	return n
}

func (s *memoryStore) room(name string) (*types.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[name]
	return room, ok
}

// inboxGateway fans room events out to per-connection inboxes
type inboxGateway struct {
	view *membership.View

	// onDirect runs after every ToConnection delivery, outside the inbox lock
	onDirect func(connID string, event types.Event)

	mu      sync.Mutex
	inboxes map[string][]types.Event
}

func newInboxGateway(view *membership.View) *inboxGateway {
	return &inboxGateway{view: view, inboxes: make(map[string][]types.Event)}
}

func (g *inboxGateway) ToRoom(room string, event types.Event) {
	members := g.view.Members(room)
	sort.Strings(members)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range members {
		g.inboxes[id] = append(g.inboxes[id], event)
	}
}

func (g *inboxGateway) ToConnection(connID string, event types.Event) error {
	g.mu.Lock()
	g.inboxes[connID] = append(g.inboxes[connID], event)
	hook := g.onDirect
	g.mu.Unlock()

	if hook != nil {
		hook(connID, event)
	}
	return nil
}

// drain returns and clears the inbox of connID
func (g *inboxGateway) drain(connID string) []types.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	events := g.inboxes[connID]
	delete(g.inboxes, connID)
	return events
}

func (g *inboxGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, events := range g.inboxes {
		n += len(events)
	}
	return n
}

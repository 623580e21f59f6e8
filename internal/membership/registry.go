package membership

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry maps rooms to their members (connection id -> display name)
// ARCHITECTURAL DISCOVERY: Pure membership tracking without transport or
// persistence; one mutex covers every room so that the name check and the
// insert of Join are a single critical section
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string // room -> connID -> display name
	log   *slog.Logger
}

// RoomStats describes one active room
type RoomStats struct {
	Room    string   `json:"room"`
	Members int      `json:"members"`
	Names   []string `json:"names"`
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms: make(map[string]map[string]string),
		log:   logger,
	}
}

// Join adds connID to room under name if no other member holds the same name
// FUNCTIONAL DISCOVERY: Names compare case-insensitively; two different
// connections racing for "alice" and "Alice" serialize on r.mu and exactly
// one of them gets ErrNameTaken
func (r *Registry) Join(room, connID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	for id, existing := range members {
		if !strings.EqualFold(existing, name) {
			continue
		}
		if id == connID {
			return nil
		}
		return ErrNameTaken
	}

	if members == nil {
		members = make(map[string]string)
		r.rooms[room] = members
	}
	members[connID] = name
	return nil
}

// Leave removes connID from room and reports whether the room is now empty
// Idempotent: leaving a room the connection is not in is a no-op
func (r *Registry) Leave(room, connID string) bool {
	return r.Detach(room, connID, nil)
}

// Detach removes connID from room, running fn under the same lock
// ARCHITECTURAL DISCOVERY: fn lets the caller retract the directory binding in
// the same critical section as the membership entry, so no observer ever sees
// one without the other. Lock order is always registry then directory.
func (r *Registry) Detach(room, connID string, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fn != nil {
		fn()
	}

	members, exists := r.rooms[room]
	if !exists {
		return true
	}

	delete(members, connID)
	if len(members) == 0 {
		// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
		delete(r.rooms, room)
		return true
	}
	return false
}

// WithMember runs fn while connID is guaranteed to still be a member of room
// ARCHITECTURAL DISCOVERY: fn runs under the registry lock, so a concurrent
// DropRoom either happens before (fn is skipped, false is returned) or after
// (and then sees whatever fn recorded). fn must not call back into the registry.
func (r *Registry) WithMember(room, connID string, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room][connID]; !ok {
		return false
	}
	fn()
	return true
}

// Names returns the distinct display names in room, sorted case-insensitively
// Names held by connections still in the middle of a Join are included
func (r *Registry) Names(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.namesLocked(room, nil)
}

// NamesWhere is Names restricted to the members keep accepts
// keep runs under the registry lock and must not call back into it
func (r *Registry) NamesWhere(room string, keep func(connID string) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.namesLocked(room, keep)
}

func (r *Registry) namesLocked(room string, keep func(connID string) bool) []string {
	members := r.rooms[room]
	seen := make(map[string]struct{}, len(members))
	names := make([]string, 0, len(members))

	for connID, name := range members {
		if keep != nil && !keep(connID) {
			continue
		}
		folded := strings.ToLower(name)
		if _, dup := seen[folded]; dup {
			r.log.Error("duplicate display name in room", "room", room, "name", name, "conn_id", connID)
			continue
		}
		seen[folded] = struct{}{}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	return names
}

// Members returns the connection ids currently in room
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	ids := make([]string, 0, len(members))
	for connID := range members {
		ids = append(ids, connID)
	}
	return ids
}

// Contains reports whether connID is a member of room
func (r *Registry) Contains(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[room][connID]
	return ok
}

// DropRoom removes the whole membership set and returns who was in it
// FUNCTIONAL DISCOVERY: Snapshot and clear happen in one critical section so
// no member can be missed by the caller's notification pass; fn (optional)
// runs for each member inside that section
func (r *Registry) DropRoom(room string, fn func(connID string)) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	delete(r.rooms, room)

	ids := make([]string, 0, len(members))
	for connID := range members {
		if fn != nil {
			fn(connID)
		}
		ids = append(ids, connID)
	}
	return ids
}

// Counts returns the number of active rooms and joined connections
func (r *Registry) Counts() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.rooms {
		connections += len(members)
	}
	return len(r.rooms), connections
}

// Rooms returns statistics for every active room, sorted by room name
func (r *Registry) Rooms() []RoomStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]RoomStats, 0, len(r.rooms))
	for room, members := range r.rooms {
		stats = append(stats, RoomStats{
			Room:    room,
			Members: len(members),
			Names:   r.namesLocked(room, nil),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Room < stats[j].Room })
	return stats
}

// Room returns statistics for one room and whether it is active
func (r *Registry) Room(room string) (RoomStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return RoomStats{}, false
	}
	return RoomStats{Room: room, Members: len(members), Names: r.namesLocked(room, nil)}, true
}

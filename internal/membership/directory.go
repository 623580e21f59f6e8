package membership

import "sync"

// Binding is the (display name, room) a connection currently occupies
type Binding struct {
	DisplayName string
	Room        string
}

// Directory maps live connection ids to their binding
// ARCHITECTURAL DISCOVERY: Inverse index of Registry so disconnect cleanup
// finds the room of a connection in O(1)
type Directory struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{bindings: make(map[string]Binding)}
}

// Bind records or overwrites the binding of connID
func (d *Directory) Bind(connID, displayName, room string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindings[connID] = Binding{DisplayName: displayName, Room: room}
}

// Unbind removes and returns the binding of connID
// Safe to call twice: the second call reports no binding
func (d *Directory) Unbind(connID string) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[connID]
	if ok {
		delete(d.bindings, connID)
	}
	return b, ok
}

// UnbindFrom removes the binding of connID only if it points at room
// FUNCTIONAL DISCOVERY: Used by room deletion so a connection that has already
// moved on is never unbound from its new room
func (d *Directory) UnbindFrom(connID, room string) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bindings[connID]
	if !ok || b.Room != room {
		return Binding{}, false
	}
	delete(d.bindings, connID)
	return b, true
}

// Lookup returns the binding of connID
func (d *Directory) Lookup(connID string) (Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.bindings[connID]
	return b, ok
}

// Len returns the number of bound connections
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.bindings)
}

package interfaces

import "roomchat/pkg/types"

// Gateway delivers events to clients
// ARCHITECTURAL DISCOVERY: Fan-out is the only way the session controller
// talks to the transport, which keeps the controller testable without sockets
type Gateway interface {
	// ToRoom delivers an event to every connection currently in the room
	// FUNCTIONAL DISCOVERY: Delivery failures for one recipient are logged and
	// never stop delivery to the others
	ToRoom(room string, event types.Event)

	// ToConnection delivers an event to exactly one connection
	ToConnection(connID string, event types.Event) error
}

package membership

// View resolves room members for delivery
// FUNCTIONAL DISCOVERY: A connection holds its name in the Registry from the
// first step of Join but only becomes a delivery target once its binding is
// recorded, so a joiner never sees room traffic ahead of its own key material
// and history
type View struct {
	registry  *Registry
	directory *Directory
}

// NewView creates a delivery view over a registry and directory
func NewView(registry *Registry, directory *Directory) *View {
	return &View{registry: registry, directory: directory}
}

// Names returns the roster of room: display names of bound members only
func (v *View) Names(room string) []string {
	return v.registry.NamesWhere(room, func(connID string) bool {
		return v.boundTo(connID, room)
	})
}

func (v *View) boundTo(connID, room string) bool {
	b, ok := v.directory.Lookup(connID)
	return ok && b.Room == room
}

// Members returns the bound connection ids of room
func (v *View) Members(room string) []string {
	ids := v.registry.Members(room)
	bound := ids[:0]
	for _, id := range ids {
		if v.boundTo(id, room) {
			bound = append(bound, id)
		}
	}
	return bound
}

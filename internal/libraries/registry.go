package libraries

import (
	"sync"
)

// Membership is the registry record of one live connection.
type Membership struct {
	Client *Client
	UserID string
	Rooms  map[RoomID]struct{}
}

// Registry tracks which live connections belong to which room. It is owned
// by the relay and handed to every connection handler. All access goes
// through mu.
type Registry struct {
	mu      sync.RWMutex
	members map[*Client]*Membership
	rooms   map[RoomID]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[*Client]*Membership),
		rooms:   make(map[RoomID]map[*Client]struct{}),
	}
}

// Register records a new connection. Registering the same client twice
// resets its room set.
func (r *Registry) Register(c *Client, userID string) *Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.members[c]; ok {
		r.dropRoomsLocked(old)
	}
	m := &Membership{Client: c, UserID: userID, Rooms: make(map[RoomID]struct{})}
	r.members[c] = m
	return m
}

// Join adds roomID to the connection's rooms. Unknown connections are ignored.
func (r *Registry) Join(c *Client, roomID RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[c]
	if !ok {
		return false
	}
	m.Rooms[roomID] = struct{}{}
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		r.rooms[roomID] = set
	}
	set[c] = struct{}{}
	return true
}

// Leave removes roomID from the connection's rooms. Leaving a room that was
// never joined is a no-op.
func (r *Registry) Leave(c *Client, roomID RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[c]
	if !ok {
		return
	}
	delete(m.Rooms, roomID)
	r.removeFromRoomLocked(c, roomID)
}

// Unregister drops the connection's record. Safe for connections that never
// finished registering.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[c]
	if !ok {
		return
	}
	r.dropRoomsLocked(m)
	delete(r.members, c)
}

// MembersOf returns the connections currently joined to roomID.
func (r *Registry) MembersOf(roomID RoomID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[roomID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Lookup returns a copy of the connection's record.
func (r *Registry) Lookup(c *Client) (Membership, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[c]
	if !ok {
		return Membership{}, false
	}
	rooms := make(map[RoomID]struct{}, len(m.Rooms))
	for id := range m.Rooms {
		rooms[id] = struct{}{}
	}
	return Membership{Client: m.Client, UserID: m.UserID, Rooms: rooms}, true
}

// Broadcast queues frame on every member of roomID and returns how many
// accepted it. Members whose socket is closed or backed up are skipped.
// Resolving members and queueing happen under one lock, so all members see
// a room's frames in the same order.
func (r *Registry) Broadcast(roomID RoomID, frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivered := 0
	for c := range r.rooms[roomID] {
		if c.TrySend(frame) {
			delivered++
		}
	}
	return delivered
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Registry) dropRoomsLocked(m *Membership) {
	for roomID := range m.Rooms {
		r.removeFromRoomLocked(m.Client, roomID)
	}
}

func (r *Registry) removeFromRoomLocked(c *Client, roomID RoomID) {
	set, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, roomID)
	}
}

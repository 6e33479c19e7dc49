package core

import (
	"sort"
	"sync"
)

// Registry maps a user ID to its single canonical connection. All other
// core components resolve targets through it.
//
// A second connection from the same user silently supersedes the mapping;
// the prior connection is not closed here, it simply stops being
// addressable and cleans itself up through its own disconnect path.
type Registry struct {
	mu       sync.RWMutex
	clients  map[int64]*Client
	onChange func()
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[int64]*Client),
	}
}

// OnChange installs a hook fired exactly once after every Register or
// Deregister call, outside the registry lock. Used by the presence
// broadcaster. Must be set before the registry is shared.
func (r *Registry) OnChange(fn func()) {
	r.onChange = fn
}

// Register installs the client as canonical for its user, replacing any
// prior connection for that user.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.UserID] = c
	r.mu.Unlock()

	r.notify()
}

// Lookup returns the canonical connection for the user, or false if the
// user is offline. Never blocks on anything but the map lock.
func (r *Registry) Lookup(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[userID]
	return c, ok
}

// Deregister removes the mapping only if the stored connection is the one
// asking to be removed. A stale disconnect from a superseded connection is
// a no-op. Returns whether the mapping was removed.
func (r *Registry) Deregister(c *Client) bool {
	r.mu.Lock()
	current, ok := r.clients[c.UserID]
	removed := ok && current.ConnID == c.ConnID
	if removed {
		delete(r.clients, c.UserID)
	}
	r.mu.Unlock()

	r.notify()
	return removed
}

// Snapshot returns the sorted online user IDs and the connections to push
// to, taken under one read lock. Callers deliver outside the lock.
func (r *Registry) Snapshot() ([]int64, []*Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]int64, 0, len(r.clients))
	clients := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		online = append(online, id)
		clients = append(clients, c)
	}
	sort.Slice(online, func(i, j int) bool { return online[i] < online[j] })
	return online, clients
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}

// Package server tracks the set of live client connections through the
// ConnectionRegistry type.
package server

import "sync"

// ConnectionRegistry is a concurrency-safe set of active clients. The hub
// mutates membership; snapshot reads may come from any goroutine.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		clients: make(map[*Client]bool),
	}
}

// Register adds the client to the live set. Registering a client that is
// already present has no effect.
func (r *ConnectionRegistry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client] = true
}

// Unregister removes the client if present and reports whether it was a
// member. Removing an absent client is a no-op; disconnect paths may race
// with cleanup and double-removal must be tolerated.
func (r *ConnectionRegistry) Unregister(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client]; !ok {
		return false
	}
	delete(r.clients, client)
	return true
}

// Snapshot returns the members at call time. The returned slice is a copy, so
// broadcast iteration is stable against concurrent mutation. No ordering is
// promised among members.
func (r *ConnectionRegistry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Count returns the number of registered clients. For observability only.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

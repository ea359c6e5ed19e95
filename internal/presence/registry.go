// Package presence tracks which user identities currently hold at least one
// live connection.
package presence

import "sync"

// User is one entry of the public online list.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
}

type entry struct {
	connections int
	displayName string
}

// Registry reference-counts connections per user id. An entry exists only
// while its count is above zero; Snapshot order is the order in which
// entries were first created.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register records one more connection for userID. The first display name
// seen for an identity wins; a later one only fills an empty name.
func (r *Registry) Register(userID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		r.entries[userID] = &entry{connections: 1, displayName: displayName}
		r.order = append(r.order, userID)
		return
	}
	e.connections++
	if e.displayName == "" {
		e.displayName = displayName
	}
}

// Deregister drops one connection for userID and reports whether an entry
// existed.
func (r *Registry) Deregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return false
	}
	if e.connections <= 1 {
		delete(r.entries, userID)
		r.removeFromOrder(userID)
		return true
	}
	e.connections--
	return true
}

func (r *Registry) removeFromOrder(userID string) {
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Registry) Snapshot() []User {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]User, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if e == nil || e.connections <= 0 {
			continue
		}
		users = append(users, User{ID: id, DisplayName: e.displayName})
	}
	return users
}

// Connections returns the live connection count for userID, zero when absent.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		return e.connections
	}
	return 0
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

package relay

import (
	"sync"
)

// ConnRegistry tracks every open connection regardless of session state, so
// the server can report counts and close everything on shutdown. Session
// membership lives in the Registry; this is plain connection bookkeeping.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewConnRegistry creates an empty connection registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns: make(map[string]*Conn),
	}
}

// Add adds a connection to the registry.
func (r *ConnRegistry) Add(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID] = conn
}

// Remove removes a connection from the registry.
func (r *ConnRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)
}

// GetAll returns all open connections.
func (r *ConnRegistry) GetAll() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of open connections.
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// CountByRole returns the number of open connections with the given role.
func (r *ConnRegistry) CountByRole(role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, conn := range r.conns {
		if conn.Role == role {
			count++
		}
	}
	return count
}

package gateway

import "sync"

// Table tracks every live connection by ID so replies and broadcasts can be
// routed without touching room state.
type Table struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[string]*Connection)}
}

// Add registers a connection under its ID.
func (t *Table) Add(c *Connection) {
	t.mu.Lock()
	t.conns[c.ID()] = c
	t.mu.Unlock()
}

// Remove drops a connection. Removing an unknown ID is a no-op.
func (t *Table) Remove(connID string) {
	t.mu.Lock()
	delete(t.conns, connID)
	t.mu.Unlock()
}

// Get returns the connection registered under connID.
func (t *Table) Get(connID string) (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[connID]
	return c, ok
}

// Count returns the number of live connections.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

package ws

import (
	"context"
	"sync"
	"time"
)

// Manager tracks charge point connections.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
	}
}

// Add registers new connection.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ChargePointID()] = conn
}

// Remove removes connection.
func (m *Manager) Remove(chargePointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, chargePointID)
}

// Get returns the live connection for a charge point, if any.
func (m *Manager) Get(chargePointID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[chargePointID]
	return conn, ok
}

// Start begins the ping loop to keep connections active. When the context
// ends it closes every live connection, failing their pending calls, so
// shutdown does not strand charge points.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			m.mu.RLock()
			for _, conn := range m.connections {
				_ = conn.Ping()
			}
			m.mu.RUnlock()
		}
	}
}

// CloseAll tears down every registered connection. Close triggers each
// connection's onClose callback, which re-enters the manager to remove
// itself, so the iteration works on a snapshot.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Package chatws serves the live chat over WebSocket.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/sonnik/internal/metrics"
)

// SessionManager tracks the active chat socket of each user. A user has at
// most one; registering a new socket closes the previous one.
type SessionManager struct {
	mu     sync.RWMutex
	active map[int64]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[int64]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user.
func (m *SessionManager) GetActive(userID int64) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID]
}

// Len returns the number of users with an open socket.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register makes conn the user's active socket.
func (m *SessionManager) Register(userID int64, conn *websocket.Conn) {
	m.mu.Lock()
	existing, ok := m.active[userID]
	m.active[userID] = conn
	metrics.ActiveChatSockets.Set(float64(len(m.active)))
	m.mu.Unlock()

	// The close handshake waits for the peer, so it must not block the new socket.
	if ok && existing != conn {
		go func() { _ = existing.Close(websocket.StatusPolicyViolation, "session replaced") }()
		slog.Info("Chat socket replaced", "user_id", userID)
	}
	slog.Info("Chat socket registered", "user_id", userID)
}

// Unregister removes conn if it is still the user's active socket.
func (m *SessionManager) Unregister(userID int64, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[userID]; ok && current == conn {
		delete(m.active, userID)
		metrics.ActiveChatSockets.Set(float64(len(m.active)))
		slog.Info("Chat socket unregistered", "user_id", userID)
	}
}

// CloseAll closes every active socket. Used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	conns := m.active
	m.active = make(map[int64]*websocket.Conn)
	metrics.ActiveChatSockets.Set(0)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"directory_go/internal/service"
)

// Registry tracks live chat sessions keyed by username so shutdown can tear
// them all down cleanly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*websocket.Conn]*service.ChatSession
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[*websocket.Conn]*service.ChatSession),
	}
}

// Register adds a session for the given user's connection.
func (r *Registry) Register(username string, conn *websocket.Conn, session *service.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[username] == nil {
		r.sessions[username] = make(map[*websocket.Conn]*service.ChatSession)
	}
	r.sessions[username][conn] = session
}

// Unregister removes a connection's session.
func (r *Registry) Unregister(username string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.sessions[username]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.sessions, username)
		}
	}
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conns := range r.sessions {
		n += len(conns)
	}
	return n
}

// CloseAll closes every session and connection. Used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for username, conns := range r.sessions {
		for conn, session := range conns {
			session.Close()
			conn.Close()
		}
		delete(r.sessions, username)
	}
}

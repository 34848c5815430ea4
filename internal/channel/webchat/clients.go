package webchat

import (
	"sync"

	"github.com/hertz-contrib/websocket"
	"golang.org/x/time/rate"
)

// session is one live widget connection. The connection id changes on every
// reconnect; the user id is stable, so the registry keeps a secondary index
// from user id to the current connection.
type session struct {
	connID string
	userID string
	name   string
	avatar string

	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
}

// write serializes frame writes; the websocket connection allows only one
// concurrent writer.
func (s *session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// sessionRegistry tracks connected widget clients. It is the one genuinely
// concurrent structure in the adapter: connections open and close
// independently of any manager-level operation.
type sessionRegistry struct {
	mu      sync.RWMutex
	byConn  map[string]*session
	byUser  map[string]string // userID -> connID
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		byConn: make(map[string]*session, 16),
		byUser: make(map[string]string, 16),
	}
}

// add registers a session and returns any previous session for the same
// user (a reconnect superseding the old connection).
func (r *sessionRegistry) add(s *session) (replaced *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldConn, ok := r.byUser[s.userID]; ok && oldConn != s.connID {
		replaced = r.byConn[oldConn]
		delete(r.byConn, oldConn)
	}
	r.byConn[s.connID] = s
	r.byUser[s.userID] = s.connID
	return replaced
}

// remove drops a session by connection id. The user index is only cleared
// when it still points at this connection, so a reconnect that already
// replaced the mapping is untouched.
func (r *sessionRegistry) remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if r.byUser[s.userID] == connID {
		delete(r.byUser, s.userID)
	}
}

// byUserID resolves the live session for a user, if any.
func (r *sessionRegistry) byUserID(userID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	return r.byConn[connID]
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// drain empties the registry and returns all sessions for closing.
func (r *sessionRegistry) drain() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session, 0, len(r.byConn))
	for _, s := range r.byConn {
		out = append(out, s)
	}
	r.byConn = make(map[string]*session, 16)
	r.byUser = make(map[string]string, 16)
	return out
}

package core

import (
	"fmt"
	"sync"
)

// SessionTable binds connected client identities to authenticated principals.
// Only the dispatcher writes to it.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]int64
}

// NewSessionTable constructs an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[string]int64)}
}

// Authenticate inserts or overwrites the binding for clientID.
func (t *SessionTable) Authenticate(clientID string, principalID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[clientID] = principalID
}

// Resolve returns the principal bound to clientID.
func (t *SessionTable) Resolve(clientID string) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.sessions[clientID]
	if !ok {
		return 0, fmt.Errorf("client %s: %w", clientID, ErrNotAuthenticated)
	}
	return id, nil
}

// Forget drops the binding for clientID. Unknown ids are ignored.
func (t *SessionTable) Forget(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, clientID)
}

// ReverseResolve finds a live client identity for principalID. When the
// principal is logged in from several clients, any one of them is returned.
func (t *SessionTable) ReverseResolve(principalID int64) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for clientID, id := range t.sessions {
		if id == principalID {
			return clientID, nil
		}
	}
	return "", fmt.Errorf("principal %d: %w", principalID, ErrPrincipalOffline)
}

// Len returns the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

package core

import "sync"

// Registry is the shared presence state: the connection of every
// authenticated user plus the login-order sequence behind "who". One
// mutex guards both structures so a username can never appear in one
// and not the other.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
	order []string
}

// NewRegistry constructs an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Add registers username with its connection and appends it to the
// login order. Returns false, without mutating anything, if the
// username is already online.
func (r *Registry) Add(username string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, online := r.conns[username]; online {
		return false
	}
	r.conns[username] = conn
	r.order = append(r.order, username)
	return true
}

// Remove drops username from both the connection map and the login
// order. Returns false if the username was not online. The connection
// itself is owned by its worker and is never closed here.
func (r *Registry) Remove(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, online := r.conns[username]; !online {
		return false
	}
	delete(r.conns, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Lookup returns the registered connection for username.
func (r *Registry) Lookup(username string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[username]
	return conn, ok
}

// Online returns a consistent snapshot of online usernames in login
// order.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]string, len(r.order))
	copy(snapshot, r.order)
	return snapshot
}

// Connections returns a snapshot of every registered connection except
// exclude. Sends happen outside the registry lock.
func (r *Registry) Connections(exclude *Conn) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn != exclude {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Len reports how many users are online.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

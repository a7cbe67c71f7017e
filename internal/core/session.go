package core

import "github.com/google/uuid"

// AuthState is the authentication state of a session.
type AuthState int

const (
	// StateAnonymous is the state of a freshly accepted connection.
	StateAnonymous AuthState = iota
	// StateAuthenticated means the session has a confirmed username.
	StateAuthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is the per-connection state machine. It is owned by the
// worker handling its connection; only the Conn is shared, via the
// presence registry, while the session is authenticated.
type Session struct {
	ID       string
	Conn     *Conn
	State    AuthState
	Username string
}

// NewSession constructs an anonymous session over conn.
func NewSession(conn *Conn) *Session {
	return &Session{
		ID:   uuid.NewString(),
		Conn: conn,
	}
}

// Authenticated reports whether the session has logged in.
func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

package core

import (
	"io"
	"sync"
)

// Conn serializes writes to one client's transport. The owning worker
// and router goroutines share the underlying socket, so every response
// and routed message goes through Send.
type Conn struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConn wraps a transport writer, typically a net.Conn.
func NewConn(w io.Writer) *Conn {
	return &Conn{w: w}
}

// Send writes one newline-terminated line as a single write.
func (c *Conn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, line+"\n")
	return err
}

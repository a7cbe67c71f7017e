package core

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/NolanRink/chatroom/internal/credstore"
)

// fakeConn captures routed lines in memory and can be told to fail
// writes, standing in for a peer socket.
type fakeConn struct {
	mu    sync.Mutex
	lines []string
	fail  bool
}

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("write failed")
	}
	f.lines = append(f.lines, strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func (f *fakeConn) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

func (f *fakeConn) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()

	users, err := credstore.Open(filepath.Join(t.TempDir(), "users.txt"))
	if err != nil {
		t.Fatalf("open credstore: %v", err)
	}
	reg := NewRegistry()
	return NewProcessor(users, reg, NewRouter(reg, nopLogger()), nopLogger())
}

// newSession returns a fresh anonymous session over a fake connection.
func newSession() (*Session, *fakeConn) {
	fc := &fakeConn{}
	return NewSession(NewConn(fc)), fc
}

// mustCreate registers an account through the processor.
func mustCreate(t *testing.T, p *Processor, username, password string) {
	t.Helper()

	sess, _ := newSession()
	res := p.Process(sess, "newuser "+username+" "+password)
	if res.Text() != "New user account created." {
		t.Fatalf("newuser %s: unexpected response %q", username, res.Text())
	}
}

// mustLogin creates the session, authenticates it, and fails the test
// on any response other than confirmation.
func mustLogin(t *testing.T, p *Processor, username, password string) (*Session, *fakeConn) {
	t.Helper()

	sess, fc := newSession()
	res := p.Process(sess, "login "+username+" "+password)
	if res.Text() != "login confirmed" {
		t.Fatalf("login %s: unexpected response %q", username, res.Text())
	}
	return sess, fc
}

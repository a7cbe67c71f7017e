package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/NolanRink/chatroom/internal/config"
	"github.com/NolanRink/chatroom/internal/core"
	"github.com/NolanRink/chatroom/internal/credstore"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// startServer runs a server on a loopback port with the given seeded
// user file content and tears it down with the test.
func startServer(t *testing.T, seed string) *Server {
	t.Helper()

	userFile := filepath.Join(t.TempDir(), "users.txt")
	if seed != "" {
		require.NoError(t, os.WriteFile(userFile, []byte(seed), 0o644))
	}

	users, err := credstore.Open(userFile)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.UserFile = userFile
	cfg.MaxClients = 8

	reg := core.NewRegistry()
	proc := core.NewProcessor(users, reg, core.NewRouter(reg, nopLogger()), nopLogger())
	srv := NewServer(proc, cfg, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	require.Eventually(t, func() bool {
		return srv.Addr() != nil
	}, 2*time.Second, 10*time.Millisecond, "listener never bound")

	return srv
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialClient(t *testing.T, srv *Server) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := fmt.Fprintln(c.conn, line)
	require.NoError(c.t, err)
}

func (c *testClient) readLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\n")
}

func TestLoginWhoLogoutFlow(t *testing.T) {
	srv := startServer(t, "(alice, pass1)\n")
	alice := dialClient(t, srv)

	alice.send("login alice wrong1")
	require.Equal(t, "Denied. User name or password incorrect.", alice.readLine())

	alice.send("login alice pass1")
	require.Equal(t, "login confirmed", alice.readLine())

	alice.send("who")
	require.Equal(t, "alice", alice.readLine())

	alice.send("logout")
	require.Equal(t, "alice left.", alice.readLine())

	// The server closes the connection after the farewell.
	require.NoError(t, alice.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := alice.r.ReadString('\n')
	require.Error(t, err)
}

func TestBroadcastAndUnicastBetweenClients(t *testing.T) {
	srv := startServer(t, "(alice, pass1)\n(bob, pass2)\n(carol, pass3)\n")

	alice := dialClient(t, srv)
	alice.send("login alice pass1")
	require.Equal(t, "login confirmed", alice.readLine())

	bob := dialClient(t, srv)
	bob.send("login bob pass2")
	require.Equal(t, "login confirmed", bob.readLine())
	require.Equal(t, "bob joins.", alice.readLine())

	carol := dialClient(t, srv)
	carol.send("login carol pass3")
	require.Equal(t, "login confirmed", carol.readLine())
	require.Equal(t, "carol joins.", alice.readLine())
	require.Equal(t, "carol joins.", bob.readLine())

	// Broadcast reaches everyone but the sender, who gets no reply.
	alice.send("send all hello room")
	require.Equal(t, "alice: hello room", bob.readLine())
	require.Equal(t, "alice: hello room", carol.readLine())

	// Unicast reaches exactly the target.
	bob.send("send carol psst")
	require.Equal(t, "bob: psst", carol.readLine())

	// Neither send produced a reply, so who answers come straight back.
	alice.send("who")
	require.Equal(t, "alice, bob, carol", alice.readLine())
	bob.send("who")
	require.Equal(t, "alice, bob, carol", bob.readLine())

	bob.send("send ghost hi")
	require.Equal(t, "Error: User ghost is not online.", bob.readLine())
}

func TestAbruptDisconnectClearsPresence(t *testing.T) {
	srv := startServer(t, "(alice, pass1)\n(bob, pass2)\n")

	alice := dialClient(t, srv)
	alice.send("login alice pass1")
	require.Equal(t, "login confirmed", alice.readLine())

	bob := dialClient(t, srv)
	bob.send("login bob pass2")
	require.Equal(t, "login confirmed", bob.readLine())

	// Drop alice without logout; no departure broadcast is expected and
	// her registry entry must disappear.
	require.NoError(t, alice.conn.Close())

	require.Eventually(t, func() bool {
		bob.send("who")
		return bob.readLine() == "bob"
	}, 2*time.Second, 50*time.Millisecond, "stale presence entry after disconnect")

	// alice can log in again on a fresh connection.
	again := dialClient(t, srv)
	again.send("login alice pass1")
	require.Equal(t, "login confirmed", again.readLine())
}

func TestNewUserPersistsAcrossConnections(t *testing.T) {
	srv := startServer(t, "")

	first := dialClient(t, srv)
	first.send("newuser carol pass3")
	require.Equal(t, "New user account created.", first.readLine())
	first.send("newuser carol pass3")
	require.Equal(t, "Denied. User account already exists.", first.readLine())

	second := dialClient(t, srv)
	second.send("login carol pass3")
	require.Equal(t, "login confirmed", second.readLine())
}

func TestUnknownAndUnauthenticatedCommands(t *testing.T) {
	srv := startServer(t, "")
	c := dialClient(t, srv)

	c.send("dance")
	require.Equal(t, "Error: Unknown command", c.readLine())
	c.send("who")
	require.Equal(t, "Denied. Please login first.", c.readLine())
	c.send("logout")
	require.Equal(t, "Error: You are not logged in", c.readLine())
}

func TestBindFailureIsFatal(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	cfg := config.Default()
	cfg.Addr = lis.Addr().String()

	reg := core.NewRegistry()
	users, err := credstore.Open(filepath.Join(t.TempDir(), "users.txt"))
	require.NoError(t, err)
	proc := core.NewProcessor(users, reg, core.NewRouter(reg, nopLogger()), nopLogger())
	srv := NewServer(proc, cfg, nopLogger())

	err = srv.ListenAndServe(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bind")
}

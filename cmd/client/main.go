package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NolanRink/chatroom/internal/core"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 19953
)

func main() {
	root := &cobra.Command{
		Use:           "chatroom [host] [port]",
		Short:         "Interactive chat room client",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args)
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// state tracks what the client believes about its own session. The
// server is authoritative; the reader goroutine updates this from
// server responses.
type state struct {
	mu       sync.Mutex
	loggedIn bool
	user     string
	pending  string // username of an unconfirmed login attempt
}

func (st *state) snapshot() (bool, string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loggedIn, st.user
}

// observe updates client state from one server line.
func (st *state) observe(line string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "login confirmed" {
		st.loggedIn = true
		st.user = st.pending
		st.pending = ""
		return
	}
	if st.user != "" && lower == strings.ToLower(st.user)+" left." {
		st.loggedIn = false
		st.user = ""
	}
}

func run(args []string) error {
	host := defaultHost
	port := defaultPort
	if len(args) >= 1 {
		host = args[0]
	}
	if len(args) >= 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p < 1 || p > 65535 {
			fmt.Printf("Invalid port number. Using default %d.\n", defaultPort)
		} else {
			port = p
		}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not connect to server %s: %w", addr, err)
	}
	defer conn.Close()

	fmt.Printf("Connected to chat room server at %s.\n", addr)

	st := &state{}
	var g errgroup.Group

	g.Go(func() error {
		return readLoop(conn, st)
	})
	g.Go(func() error {
		defer conn.Close()
		return inputLoop(conn, st)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// readLoop prints every server line and keeps session state current.
func readLoop(conn net.Conn, st *state) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Println("> " + line)
		st.observe(line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Println("> Server closed the connection.")
	return nil
}

// inputLoop reads commands from stdin, validates them locally the way
// the server would, and forwards accepted lines.
func inputLoop(conn net.Conn, st *state) error {
	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(">")
		if !stdin.Scan() {
			return stdin.Err()
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}

		verb := strings.ToLower(strings.Fields(line)[0])
		if msg, ok := validate(st, verb, line); !ok {
			fmt.Println(msg)
			continue
		}

		if verb == "login" {
			st.mu.Lock()
			st.pending = strings.Fields(line)[1]
			st.mu.Unlock()
		}

		if _, err := fmt.Fprintln(conn, line); err != nil {
			fmt.Println("> Connection to server lost.")
			return err
		}

		if verb == "logout" {
			return nil
		}
	}
}

// validate applies the same per-state command rules the server
// enforces, so obviously bad input never leaves the terminal.
func validate(st *state, verb, line string) (string, bool) {
	loggedIn, _ := st.snapshot()

	if !loggedIn {
		switch verb {
		case "login", "newuser":
		case "send", "logout", "who":
			return "Denied. Please login first.", false
		default:
			return "Error: Unknown command", false
		}
	} else if verb != "send" && verb != "logout" && verb != "who" {
		return "Error: Unknown command", false
	}

	if verb == "login" || verb == "newuser" {
		tokens := strings.Fields(line)
		if len(tokens) != 3 {
			return fmt.Sprintf("Usage: %s <UserID> <Password>", verb), false
		}
		if n := len(tokens[1]); n < core.MinUsernameLen || n > core.MaxUsernameLen {
			return "UserID must be 3-32 characters long", false
		}
		if n := len(tokens[2]); n < core.MinPasswordLen || n > core.MaxPasswordLen {
			return "Password must be 4-8 characters long", false
		}
	}

	if verb == "send" {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 || parts[1] == "" {
			return "Usage: send <target> <message>", false
		}
		if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
			return "Error: Message is empty", false
		}
		if utf8.RuneCountInString(parts[2]) > core.MaxMessageLen {
			return "Error: Message must be between 1 and 256 characters long", false
		}
	}

	return "", true
}

package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/NolanRink/chatroom/internal/config"
	"github.com/NolanRink/chatroom/internal/core"
)

// maxLineBytes bounds one command line. The protocol assumes one
// command fits in a single read of this size.
const maxLineBytes = 1024

// Server accepts TCP connections and runs one worker per connection.
type Server struct {
	cfg  config.Config
	proc *core.Processor
	log  *zerolog.Logger

	mu    sync.Mutex
	addr  net.Addr
	conns map[net.Conn]struct{}
}

// NewServer constructs the TCP transport over the command processor.
func NewServer(proc *core.Processor, cfg config.Config, logger *zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		proc:  proc,
		log:   logger,
		conns: make(map[net.Conn]struct{}),
	}
}

// Addr returns the bound listener address, or nil before ListenAndServe
// has bound it. Useful when the configured port is 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe binds the listener and accepts until ctx is canceled
// or the listener fails. A bind failure is fatal and returned before
// any connection is accepted; per-connection faults never propagate.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.addr = lis.Addr()
	s.mu.Unlock()

	if s.cfg.MaxClients > 0 {
		lis = netutil.LimitListener(lis, s.cfg.MaxClients)
	}

	go func() {
		<-ctx.Done()
		_ = lis.Close()
		s.closeAll()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wait(&wg)
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(conn)
		}()
	}
}

// handle is the per-connection worker: read a line, process it, write
// the response. Registry cleanup always runs on the way out so a dead
// connection never leaves a phantom user behind.
func (s *Server) handle(nc net.Conn) {
	defer nc.Close()
	s.track(nc)
	defer s.untrack(nc)

	sess := core.NewSession(core.NewConn(nc))
	logger := s.log.With().
		Str("session", sess.ID).
		Str("remote", nc.RemoteAddr().String()).
		Logger()
	logger.Debug().Msg("connection opened")
	defer func() {
		s.proc.Disconnect(sess)
		logger.Debug().Msg("connection closed")
	}()

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)
	for scanner.Scan() {
		res := s.proc.Process(sess, scanner.Text())
		if text := res.Text(); text != "" {
			if err := sess.Conn.Send(text); err != nil {
				logger.Warn().Err(err).Msg("response write failed")
				return
			}
		}
		if res.Close {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug().Err(err).Msg("read ended")
	}
}

func (s *Server) track(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[nc] = struct{}{}
}

func (s *Server) untrack(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, nc)
}

// closeAll unblocks every worker's pending read during shutdown.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for nc := range s.conns {
		_ = nc.Close()
	}
}

// wait blocks for the workers, bounded by the shutdown timeout.
func (s *Server) wait(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn().Msg("shutdown timeout elapsed with workers still running")
	}
}

// Package redistest runs an in-process server speaking enough of the
// protocol for dump and restore: the five value types, expirations,
// KEYS/SCAN, INFO and WATCH/MULTI/EXEC.
package redistest

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/utils"
)

const databases = 16

const DefaultVersion = "7.2.4"

type Option func(*Server)

// WithVersion sets the reported redis_version. Commands newer than it are
// rejected as unknown.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func WithPassword(p string) Option {
	return func(s *Server) { s.password = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Hook observes every command a connection sends, before it runs and
// without the store lock, so it may call Server.Do to simulate another
// client.
type Hook func(db int, c commands.Command)

type Server struct {
	ListAddr  string
	Listener  net.Listener
	Shutdown  chan struct{}
	Datastore *Memory

	version  string
	password string
	log      *zap.Logger
	router   map[string]commandSpec

	wg sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	hookMu sync.RWMutex
	hook   Hook
}

// NewServer listens on network/addr ("tcp" "127.0.0.1:0", or "unix" and
// a socket path). Call Start to begin serving.
func NewServer(network, addr string, opts ...Option) (*Server, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ListAddr:  ln.Addr().String(),
		Listener:  ln,
		Shutdown:  make(chan struct{}),
		Datastore: NewMemory(),
		version:   DefaultVersion,
		log:       zap.NewNop(),
		router:    newRouter(),
		conns:     make(map[net.Conn]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Server) Addr() string {
	return s.ListAddr
}

func (s *Server) Start() {
	s.wg.Add(1)
	go s.acceptConnections()
}

func (s *Server) Stop() {
	close(s.Shutdown)
	s.Listener.Close()

	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.log.Warn("timed out waiting for connections to finish")
	}
}

// OnCommand installs fn as the command hook; nil removes it.
func (s *Server) OnCommand(fn Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = fn
}

// Do runs one command against db as if sent by another client.
func (s *Server) Do(db int, args ...string) resp.Value {
	c := commands.New(args[0], args[1:]...)
	sess := &session{db: db, authed: true}

	s.Datastore.mu.Lock()
	defer s.Datastore.mu.Unlock()

	return s.execute(sess, c)
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			select {
			case <-s.Shutdown:
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	reader := resp.NewReader(conn)
	writer := bufio.NewWriter(conn)
	sess := &session{}

	for {
		value, _, err := reader.ReadValue()
		if err != nil {
			return
		}

		var reply resp.Value

		if c, err := commands.NewCommand(value); err != nil {
			reply = resp.ErrorValue(fmt.Sprintf("ERR Protocol error: %v", err))
		} else {
			reply = s.serve(sess, c)
		}

		b, err := reply.Marshal()
		if err != nil {
			b = []byte("-ERR " + err.Error() + "\r\n")
		}

		if _, err := writer.Write(b); err != nil {
			return
		}

		// Pipelined requests are answered in one write.
		if reader.Buffered() == 0 {
			if err := utils.Flush(writer); err != nil {
				return
			}
		}
	}
}

func (s *Server) serve(sess *session, c commands.Command) resp.Value {
	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()

	if hook != nil {
		hook(sess.db, c)
	}

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("command", zap.Int("db", sess.db), zap.String("name", c.Name()), zap.Int("args", len(c.Args)))
	}

	if s.password != "" && !sess.authed && c.Name() != "AUTH" {
		return resp.ErrorValue("NOAUTH Authentication required.")
	}

	if reply, handled := s.transaction(sess, c); handled {
		return reply
	}

	s.Datastore.mu.Lock()
	defer s.Datastore.mu.Unlock()

	return s.execute(sess, c)
}

// execute dispatches one command; the caller holds the store lock.
func (s *Server) execute(sess *session, c commands.Command) resp.Value {
	spec, ok := s.router[c.Name()]

	if !ok || (spec.since != "" && compareVersions(s.version, spec.since) < 0) {
		return errUnknown(c)
	}

	if !checkArity(spec, c) {
		return errArity(c.Type)
	}

	return spec.handler(s, sess, c)
}

package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
)

var (
	// ErrNil is returned when a string reply was expected but the server
	// answered with a nil bulk string.
	ErrNil = errors.New("nil reply")
	// ErrTxAborted is returned when EXEC replies with a null array because a
	// watched key changed.
	ErrTxAborted = errors.New("transaction aborted: watched key modified")
	ErrClosed    = errors.New("client closed")
)

// RedisError is an error reply sent by the server.
type RedisError struct {
	Command string
	Message string
}

func (e *RedisError) Error() string {
	if e.Command == "" {
		return e.Message
	}
	return e.Command + ": " + e.Message
}

// Kind is the error prefix, e.g. "ERR" or "WRONGTYPE".
func (e *RedisError) Kind() string {
	kind, _, _ := strings.Cut(e.Message, " ")
	return kind
}

type Options struct {
	// Network is "tcp" or "unix".
	Network  string
	Addr     string
	Username string
	Password string
	DB       int
	// TLS enables TLS on tcp connections when non-nil.
	TLS *tls.Config

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *zap.Logger
}

// Client is a single connection to a server. It is not safe for concurrent
// use; calls are serialised by an internal mutex so a misuse blocks rather
// than interleaves replies.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *resp.Reader
	wr   *resp.Writer
	opts Options
	log  *zap.Logger

	// broken holds the transport error that left the stream in an unknown
	// state. Every later call fails with it.
	broken error
}

// Dial connects, authenticates and selects the configured database.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Network == "" {
		opts.Network = "tcp"
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	conn, err := dial(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", opts.Network, opts.Addr, err)
	}

	c := New(conn, opts)

	if opts.Password != "" {
		if _, err := c.Do(ctx, commands.Auth(opts.Username, opts.Password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}

	if opts.DB != 0 {
		if _, err := c.Do(ctx, commands.Select(opts.DB)); err != nil {
			c.Close()
			return nil, fmt.Errorf("select db %d: %w", opts.DB, err)
		}
	}

	c.log.Debug("connected",
		zap.String("network", opts.Network),
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Bool("tls", opts.TLS != nil),
	)

	return c, nil
}

func dial(ctx context.Context, opts Options) (net.Conn, error) {
	d := &net.Dialer{Timeout: opts.DialTimeout}

	if opts.TLS != nil && opts.Network == "tcp" {
		td := &tls.Dialer{NetDialer: d, Config: opts.TLS}
		return td.DialContext(ctx, opts.Network, opts.Addr)
	}

	return d.DialContext(ctx, opts.Network, opts.Addr)
}

// New wraps an established connection without any handshake.
func New(conn net.Conn, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		conn: conn,
		rd:   resp.NewReader(conn),
		wr:   resp.NewWriter(conn),
		opts: opts,
		log:  log,
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken == ErrClosed {
		return nil
	}

	c.broken = ErrClosed
	return c.conn.Close()
}

// Do sends one command and returns its reply. An error reply is returned as
// a *RedisError.
func (c *Client) Do(ctx context.Context, cmd commands.Command) (resp.Value, error) {
	replies, err := c.roundTrip(ctx, []commands.Command{cmd})
	if err != nil {
		return resp.NullValue(), err
	}

	if err := ReplyError(cmd, replies[0]); err != nil {
		return replies[0], err
	}

	return replies[0], nil
}

// Pipeline sends all commands in one write and reads one reply per command.
// Error replies are returned in place so callers can attribute them; the
// returned error covers transport failures only.
func (c *Client) Pipeline(ctx context.Context, cmds []commands.Command) ([]resp.Value, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	return c.roundTrip(ctx, cmds)
}

// Transaction watches keys, then runs cmds inside MULTI/EXEC and returns
// the EXEC results. A watched key modified before EXEC yields ErrTxAborted.
func (c *Client) Transaction(ctx context.Context, watch []string, cmds ...commands.Command) ([]resp.Value, error) {
	if len(watch) > 0 {
		if _, err := c.Do(ctx, commands.Watch(watch...)); err != nil {
			return nil, err
		}
	}

	batch := make([]commands.Command, 0, len(cmds)+2)
	batch = append(batch, commands.Multi())
	batch = append(batch, cmds...)
	batch = append(batch, commands.Exec())

	replies, err := c.roundTrip(ctx, batch)
	if err != nil {
		return nil, err
	}

	// A command rejected while queueing makes EXEC fail as a whole; report
	// the first rejection, which carries the useful message.
	for i, reply := range replies[:len(replies)-1] {
		if err := ReplyError(batch[i], reply); err != nil {
			return nil, err
		}
	}

	exec := replies[len(replies)-1]

	if err := ReplyError(batch[len(batch)-1], exec); err != nil {
		return nil, err
	}

	if exec.Type == resp.Array && exec.IsNil {
		return nil, ErrTxAborted
	}

	results, err := exec.AsArray()
	if err != nil {
		return nil, fmt.Errorf("exec: unexpected reply %s", exec.Type)
	}

	if len(results) != len(cmds) {
		return nil, fmt.Errorf("exec: %d results for %d commands", len(results), len(cmds))
	}

	return results, nil
}

// Info fetches and parses INFO for the given sections.
func (c *Client) Info(ctx context.Context, sections ...string) (*ServerInfo, error) {
	v, err := c.Do(ctx, commands.Info(sections...))
	if err != nil {
		return nil, err
	}

	text, err := v.AsString()
	if err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}

	return ParseInfo(text), nil
}

func (c *Client) roundTrip(ctx context.Context, cmds []commands.Command) ([]resp.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, c.broken
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Unblock pending I/O as soon as the context is done.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	replies, err := c.exchange(ctx, cmds)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		c.broken = fmt.Errorf("connection unusable after: %w", err)
		c.log.Debug("connection broken", zap.Error(err))
		return nil, err
	}

	return replies, nil
}

func (c *Client) exchange(ctx context.Context, cmds []commands.Command) ([]resp.Value, error) {
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.opts.WriteTimeout)); err != nil {
		return nil, err
	}

	for _, cmd := range cmds {
		if err := c.wr.WriteCommand(cmd.Strings()...); err != nil {
			return nil, fmt.Errorf("write %s: %w", cmd.Name(), err)
		}
	}

	if err := c.wr.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	if err := c.conn.SetReadDeadline(deadline(ctx, c.opts.ReadTimeout)); err != nil {
		return nil, err
	}

	replies := make([]resp.Value, 0, len(cmds))

	for range cmds {
		v, _, err := c.rd.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		replies = append(replies, v)
	}

	if ce := c.log.Check(zap.DebugLevel, "round trip"); ce != nil {
		ce.Write(zap.Int("commands", len(cmds)), zap.String("first", cmds[0].Name()))
	}

	return replies, nil
}

// deadline picks the earlier of the context deadline and now+timeout. The
// zero time disables the deadline.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var t time.Time

	if timeout > 0 {
		t = time.Now().Add(timeout)
	}

	if d, ok := ctx.Deadline(); ok && (t.IsZero() || d.Before(t)) {
		t = d
	}

	return t
}

// ReplyError converts an error reply into a *RedisError and returns nil for
// any other reply.
func ReplyError(cmd commands.Command, v resp.Value) error {
	if !v.IsError() {
		return nil
	}
	return &RedisError{Command: cmd.Name(), Message: string(v.Raw)}
}

// String extracts a string reply, mapping a nil bulk string to ErrNil.
func String(v resp.Value) (string, error) {
	if v.Type == resp.BulkString && v.IsNil {
		return "", ErrNil
	}
	return v.AsString()
}

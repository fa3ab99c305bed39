package client

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/redistest"
)

func dialTest(t *testing.T, srv *redistest.Server, opts Options) *Client {
	t.Helper()

	opts.Addr = srv.Addr()
	opts.DialTimeout = time.Second

	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func TestClient_Do(t *testing.T) {
	srv := redistest.Run(t)
	c := dialTest(t, srv, Options{})
	ctx := context.Background()

	v, err := c.Do(ctx, commands.Ping())
	require.NoError(t, err)
	assert.Equal(t, "PONG", v.String())

	_, err = c.Do(ctx, commands.Set("k", "a\r\nb\x00"))
	require.NoError(t, err)

	v, err = c.Do(ctx, commands.Get("k"))
	require.NoError(t, err)

	s, err := String(v)
	require.NoError(t, err)
	assert.Equal(t, "a\r\nb\x00", s)

	v, err = c.Do(ctx, commands.Get("missing"))
	require.NoError(t, err)

	_, err = String(v)
	assert.ErrorIs(t, err, ErrNil)
}

func TestClient_ErrorReply(t *testing.T) {
	srv := redistest.Run(t)
	c := dialTest(t, srv, Options{})
	ctx := context.Background()

	_, err := c.Do(ctx, commands.RPush("l", "a"))
	require.NoError(t, err)

	_, err = c.Do(ctx, commands.Get("l"))

	var redisErr *RedisError
	require.True(t, errors.As(err, &redisErr))
	assert.Equal(t, "WRONGTYPE", redisErr.Kind())
	assert.Equal(t, "GET", redisErr.Command)

	// The connection stays usable after an error reply.
	_, err = c.Do(ctx, commands.Ping())
	assert.NoError(t, err)
}

func TestClient_Pipeline(t *testing.T) {
	srv := redistest.Run(t)
	c := dialTest(t, srv, Options{})
	ctx := context.Background()

	replies, err := c.Pipeline(ctx, []commands.Command{
		commands.Set("a", "1"),
		commands.RPush("a", "x"),
		commands.Get("a"),
	})
	require.NoError(t, err)
	require.Len(t, replies, 3)

	assert.Equal(t, "OK", replies[0].String())
	assert.Error(t, ReplyError(commands.RPush("a", "x"), replies[1]), "error replies stay in place")
	assert.Equal(t, "1", replies[2].String())

	replies, err = c.Pipeline(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, replies)
}

func TestClient_Transaction(t *testing.T) {
	srv := redistest.Run(t)
	c := dialTest(t, srv, Options{})
	ctx := context.Background()

	srv.Do(0, "SET", "k", "v")

	t.Run("commits", func(t *testing.T) {
		results, err := c.Transaction(ctx, []string{"k"}, commands.Type("k"), commands.Get("k"))
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "string", results[0].String())
		assert.Equal(t, "v", results[1].String())
	})

	t.Run("aborts when a watched key changes", func(t *testing.T) {
		srv.OnCommand(func(db int, cmd commands.Command) {
			if cmd.Name() == "MULTI" {
				srv.Do(db, "SET", "k", "changed")
			}
		})
		defer srv.OnCommand(nil)

		_, err := c.Transaction(ctx, []string{"k"}, commands.Get("k"))
		assert.ErrorIs(t, err, ErrTxAborted)
	})

	t.Run("reports queueing errors", func(t *testing.T) {
		_, err := c.Transaction(ctx, nil, commands.New("NOSUCHCOMMAND"))

		var redisErr *RedisError
		require.True(t, errors.As(err, &redisErr))
		assert.Equal(t, "ERR", redisErr.Kind())

		_, err = c.Do(ctx, commands.Ping())
		assert.NoError(t, err)
	})
}

func TestDial_AuthAndSelect(t *testing.T) {
	srv := redistest.Run(t, redistest.WithPassword("secret"))
	srv.Do(3, "SET", "in-db-3", "x")

	c := dialTest(t, srv, Options{Password: "secret", DB: 3})

	v, err := c.Do(context.Background(), commands.Get("in-db-3"))
	require.NoError(t, err)
	assert.Equal(t, "x", v.String())

	_, err = Dial(context.Background(), Options{Addr: srv.Addr(), Password: "wrong"})
	assert.Error(t, err)

	unauthenticated := dialTest(t, srv, Options{})
	_, err = unauthenticated.Do(context.Background(), commands.Ping())
	assert.Error(t, err)
}

func TestDial_UnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redis.sock")

	srv, err := redistest.NewServer("unix", path)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Stop)

	c, err := Dial(context.Background(), Options{Network: "unix", Addr: path})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Do(context.Background(), commands.Ping())
	assert.NoError(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := redistest.Run(t)
	c := dialTest(t, srv, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, commands.Ping())
	assert.ErrorIs(t, err, context.Canceled)

	// A context that was already done never touched the wire.
	_, err = c.Do(context.Background(), commands.Ping())
	assert.NoError(t, err)
}

func TestClient_Closed(t *testing.T) {
	srv := redistest.Run(t)
	c := dialTest(t, srv, Options{})

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Do(context.Background(), commands.Ping())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_Info(t *testing.T) {
	srv := redistest.Run(t, redistest.WithVersion("2.4.0"))
	srv.Do(0, "SET", "a", "1")
	srv.Do(2, "SET", "b", "1")
	srv.Do(2, "EXPIRE", "b", "100")

	c := dialTest(t, srv, Options{})

	info, err := c.Info(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2.4.0", info.Version())
	assert.False(t, info.SupportsPTTL())
	assert.Equal(t, []int{0, 2}, info.Databases())
	assert.Equal(t, KeyspaceStats{DB: 2, Keys: 1, Expires: 1}, info.Keyspace[1])

	_, err = c.Do(context.Background(), commands.PTTL("a"))
	assert.Error(t, err, "old servers do not know PTTL")
}

package redistest_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/redistest"
)

func connect(t *testing.T, srv *redistest.Server) *client.Client {
	t.Helper()

	c, err := client.Dial(context.Background(), client.Options{Addr: srv.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func asStrings(t *testing.T, v resp.Value) []string {
	t.Helper()

	out, err := v.AsStrings()
	require.NoError(t, err)
	return out
}

func TestServer_Types(t *testing.T) {
	srv := redistest.Run(t)
	c := connect(t, srv)
	ctx := context.Background()

	replies, err := c.Pipeline(ctx, []commands.Command{
		commands.Set("s", "v"),
		commands.RPush("l", "a", "b"),
		commands.RPush("l", "c"),
		commands.SAdd("set", "y", "x", "y"),
		commands.ZAdd("z", "2.5", "m2", "1.5", "m1", "+inf", "top"),
		commands.HSet("h", "f2", "2", "f1", "1"),
		commands.Type("s"),
		commands.Type("l"),
		commands.Type("set"),
		commands.Type("z"),
		commands.Type("h"),
		commands.Type("missing"),
		commands.LRange("l"),
		commands.SMembers("set"),
		commands.ZRangeWithScores("z"),
		commands.HGetAll("h"),
	})
	require.NoError(t, err)

	for i, r := range replies {
		assert.False(t, r.IsError(), "reply %d: %s", i, r.String())
	}

	assert.Equal(t, "string", replies[6].String())
	assert.Equal(t, "list", replies[7].String())
	assert.Equal(t, "set", replies[8].String())
	assert.Equal(t, "zset", replies[9].String())
	assert.Equal(t, "hash", replies[10].String())
	assert.Equal(t, "none", replies[11].String())

	assert.Equal(t, []string{"a", "b", "c"}, asStrings(t, replies[12]))
	assert.ElementsMatch(t, []string{"x", "y"}, asStrings(t, replies[13]))
	assert.Equal(t, []string{"m1", "1.5", "m2", "2.5", "top", "inf"}, asStrings(t, replies[14]))
	assert.Equal(t, []string{"f1", "1", "f2", "2"}, asStrings(t, replies[15]))
}

func TestServer_HGetAndSCard(t *testing.T) {
	srv := redistest.Run(t)
	srv.Do(0, "HSET", "h", "mode", "fast")
	srv.Do(0, "SADD", "s", "a", "b", "a")
	srv.Do(0, "SET", "str", "v")

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, v resp.Value)
	}{
		{"hget field", []string{"HGET", "h", "mode"}, func(t *testing.T, v resp.Value) {
			assert.Equal(t, "fast", v.String())
		}},
		{"hget missing field", []string{"HGET", "h", "other"}, func(t *testing.T, v resp.Value) {
			assert.True(t, v.IsNil)
		}},
		{"hget missing key", []string{"HGET", "none", "mode"}, func(t *testing.T, v resp.Value) {
			assert.True(t, v.IsNil)
		}},
		{"scard", []string{"SCARD", "s"}, func(t *testing.T, v resp.Value) {
			n, err := v.AsInt64()
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)
		}},
		{"scard missing key", []string{"SCARD", "none"}, func(t *testing.T, v resp.Value) {
			n, err := v.AsInt64()
			require.NoError(t, err)
			assert.Zero(t, n)
		}},
		{"wrong type", []string{"SCARD", "str"}, func(t *testing.T, v resp.Value) {
			assert.True(t, v.IsError())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, srv.Do(0, tt.args...))
		})
	}
}

func TestServer_WrongType(t *testing.T) {
	srv := redistest.Run(t)
	srv.Do(0, "SET", "s", "v")

	for _, args := range [][]string{
		{"RPUSH", "s", "x"},
		{"SADD", "s", "x"},
		{"ZADD", "s", "1", "x"},
		{"HSET", "s", "f", "v"},
		{"LRANGE", "s", "0", "-1"},
	} {
		reply := srv.Do(0, args...)
		assert.True(t, reply.IsError(), "%v", args)
	}
}

func TestServer_Expiration(t *testing.T) {
	srv := redistest.Run(t)

	srv.Do(0, "SET", "k", "v")
	assert.Equal(t, "-1", srv.Do(0, "TTL", "k").String())
	assert.Equal(t, "-2", srv.Do(0, "TTL", "missing").String())

	assert.Equal(t, "1", srv.Do(0, "EXPIRE", "k", "100").String())
	assert.Equal(t, "100", srv.Do(0, "TTL", "k").String())

	assert.Equal(t, "1", srv.Do(0, "PEXPIRE", "k", "1500").String())
	pttl, err := srv.Do(0, "PTTL", "k").AsInt()
	require.NoError(t, err)
	assert.InDelta(t, 1500, pttl, 50)

	future := time.Now().Add(time.Hour)
	assert.Equal(t, "1", srv.Do(0, "PEXPIREAT", "k", itoa(future.UnixMilli())).String())
	ttl, err := srv.Do(0, "TTL", "k").AsInt()
	require.NoError(t, err)
	assert.InDelta(t, 3600, ttl, 1)

	assert.Equal(t, "1", srv.Do(0, "EXPIREAT", "k", "1").String(), "a past deadline deletes the key")
	assert.Equal(t, "none", srv.Do(0, "TYPE", "k").String())

	srv.Do(0, "SET", "short", "v", "PX", "20")
	time.Sleep(40 * time.Millisecond)
	assert.True(t, srv.Do(0, "GET", "short").IsNil)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestServer_KeysAndScan(t *testing.T) {
	srv := redistest.Run(t)

	for _, k := range []string{"user:1", "user:2", "user:3", "session:1", "other"} {
		srv.Do(0, "SET", k, "v")
	}

	assert.Equal(t, []string{"user:1", "user:2", "user:3"}, asStrings(t, srv.Do(0, "KEYS", "user:*")))
	assert.Len(t, asStrings(t, srv.Do(0, "KEYS", "*")), 5)

	var (
		cursor = "0"
		seen   []string
		rounds int
	)

	for {
		reply := srv.Do(0, "SCAN", cursor, "MATCH", "user:*", "COUNT", "2")
		parts, err := reply.AsArray()
		require.NoError(t, err)
		require.Len(t, parts, 2)

		cursor = parts[0].String()
		seen = append(seen, asStrings(t, parts[1])...)
		rounds++

		if cursor == "0" {
			break
		}
	}

	assert.ElementsMatch(t, []string{"user:1", "user:2", "user:3"}, seen)
	assert.Equal(t, 3, rounds)
}

func TestServer_Databases(t *testing.T) {
	srv := redistest.Run(t)
	c := connect(t, srv)
	ctx := context.Background()

	_, err := c.Do(ctx, commands.Select(5))
	require.NoError(t, err)
	_, err = c.Do(ctx, commands.Set("k", "in-5"))
	require.NoError(t, err)

	assert.True(t, srv.Do(0, "GET", "k").IsNil)
	assert.Equal(t, "in-5", srv.Do(5, "GET", "k").String())

	_, err = c.Do(ctx, commands.Select(99))
	assert.Error(t, err)
}

func TestServer_Transactions(t *testing.T) {
	srv := redistest.Run(t)
	c := connect(t, srv)
	ctx := context.Background()

	srv.Do(0, "SET", "k", "v")

	t.Run("watched key changed by another client", func(t *testing.T) {
		srv.OnCommand(func(db int, cmd commands.Command) {
			if cmd.Name() == "EXEC" {
				srv.Do(db, "DEL", "k")
			}
		})
		defer srv.OnCommand(nil)

		_, err := c.Transaction(ctx, []string{"k"}, commands.Type("k"))
		assert.ErrorIs(t, err, client.ErrTxAborted)
	})

	t.Run("unrelated key changed", func(t *testing.T) {
		srv.OnCommand(func(db int, cmd commands.Command) {
			if cmd.Name() == "MULTI" {
				srv.Do(db, "SET", "other", "x")
			}
		})
		defer srv.OnCommand(nil)

		results, err := c.Transaction(ctx, []string{"k"}, commands.Type("k"))
		require.NoError(t, err)
		assert.Equal(t, "none", results[0].String())
	})

	t.Run("nested multi and stray exec", func(t *testing.T) {
		_, err := c.Do(ctx, commands.Exec())
		assert.Error(t, err)

		_, err = c.Do(ctx, commands.Discard())
		assert.Error(t, err)
	})
}

func TestServer_OldVersionRejectsMillisecondCommands(t *testing.T) {
	srv := redistest.Run(t, redistest.WithVersion("2.4.18"))
	srv.Do(0, "SET", "k", "v")

	for _, name := range []string{"PTTL", "PEXPIRE", "PEXPIREAT"} {
		args := []string{name, "k"}
		if name != "PTTL" {
			args = append(args, "1000")
		}
		assert.True(t, srv.Do(0, args...).IsError(), name)
	}

	assert.False(t, srv.Do(0, "TTL", "k").IsError())
}

package restore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/record"
	"github.com/redisdump/redis-dump-go/app/redistest"
	"github.com/redisdump/redis-dump-go/app/report"
)

func connect(t *testing.T, srv *redistest.Server) *client.Client {
	t.Helper()

	c, err := client.Dial(context.Background(), client.Options{Addr: srv.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

// countingConn records the size of every pipeline it forwards.
type countingConn struct {
	Conn
	mu      sync.Mutex
	batches []int
}

func (c *countingConn) Pipeline(ctx context.Context, cmds []commands.Command) ([]resp.Value, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(cmds))
	c.mu.Unlock()
	return c.Conn.Pipeline(ctx, cmds)
}

// scriptedConn answers OK to everything except writes to failKey.
type scriptedConn struct {
	failKey string
	flushes int
}

func (c *scriptedConn) Pipeline(_ context.Context, cmds []commands.Command) ([]resp.Value, error) {
	c.flushes++

	out := make([]resp.Value, len(cmds))
	for i, cmd := range cmds {
		out[i] = resp.StringValue("OK")
		if cmd.Name() != "DEL" && len(cmd.Args) > 0 && cmd.Args[0] == c.failKey {
			out[i] = resp.ErrorValue("ERR simulated")
		}
	}
	return out, nil
}

func stringLines(t *testing.T, n int) string {
	t.Helper()

	var b strings.Builder
	for i := 1; i <= n; i++ {
		line, err := record.Marshal(&record.Record{Key: fmt.Sprintf("k%d", i), TTL: record.NoTTL, Value: record.StringValue("v")})
		require.NoError(t, err)
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestRestore_FlushCadence(t *testing.T) {
	tests := []struct {
		records, bulk, flushes int
	}{
		{10, 3, 4},
		{9, 3, 3},
		{1, 1000, 1},
		{5, 1, 5},
		{0, 5, 0},
		{1000, 1000, 1},
		{1001, 1000, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d records bulk %d", tt.records, tt.bulk), func(t *testing.T) {
			srv := redistest.Run(t)
			conn := &countingConn{Conn: connect(t, srv)}

			sum, err := New(conn, Options{BulkSize: tt.bulk}).Restore(context.Background(), strings.NewReader(stringLines(t, tt.records)))
			require.NoError(t, err)

			assert.Len(t, conn.batches, tt.flushes)
			assert.Equal(t, tt.flushes, sum.Flushes)
			assert.Equal(t, tt.records, sum.Records)

			// DEL and SET per record; every full batch holds exactly bulk records.
			for i, size := range conn.batches {
				if i < len(conn.batches)-1 {
					assert.Equal(t, 2*tt.bulk, size)
				}
			}
		})
	}
}

func TestRestore_BlankLines(t *testing.T) {
	srv := redistest.Run(t)
	c := connect(t, srv)

	input := "\n" + stringLines(t, 2) + "\n   \n"

	sum, err := New(c, Options{}).Restore(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Records)

	// No trailing newline on the last line.
	sum, err = New(c, Options{}).Restore(context.Background(), strings.NewReader(strings.TrimSuffix(stringLines(t, 1), "\n")))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Records)
}

func TestRestore_Malformed(t *testing.T) {
	valid := strings.Split(strings.TrimSuffix(stringLines(t, 10), "\n"), "\n")

	malformedLines := map[string]string{
		"four elements": "(b'string', b'x', -1, -1)",
		"six elements":  "(b'string', b'x', -1, -1, b'v', b'extra')",
		"unknown type":  "(b'stream', b'x', -1, -1, b'v')",
		"not a tuple":   "garbage",
	}

	for name, bad := range malformedLines {
		// Line 6 is malformed: lines 1-3 go out as the first batch and 4-5
		// are pending when it is read.
		lines := append(append(append([]string{}, valid[:5]...), bad), valid[5:]...)
		input := strings.Join(lines, "\n") + "\n"

		t.Run(name+"/abort", func(t *testing.T) {
			srv := redistest.Run(t)
			conn := &countingConn{Conn: connect(t, srv)}

			sum, err := New(conn, Options{BulkSize: 3}).Restore(context.Background(), strings.NewReader(input))

			require.ErrorIs(t, err, record.ErrMalformedRecord)

			var malformed *record.MalformedError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, 6, malformed.Line)
			assert.Equal(t, bad, malformed.Content)

			assert.Equal(t, report.Aborted, sum.Status)
			assert.Equal(t, 6, sum.AbortErr.Line)
			assert.Equal(t, 3, sum.Records)
			assert.Len(t, conn.batches, 1)

			assert.Equal(t, "v", srv.Do(0, "GET", "k3").String())
			assert.True(t, srv.Do(0, "GET", "k4").IsNil, "the pending batch is not applied")
		})

		t.Run(name+"/skip", func(t *testing.T) {
			srv := redistest.Run(t)
			c := connect(t, srv)

			sum, err := New(c, Options{BulkSize: 3, Policy: report.Skip}).Restore(context.Background(), strings.NewReader(input))
			require.NoError(t, err)

			assert.Equal(t, report.Partial, sum.Status)
			assert.Equal(t, 10, sum.Records)
			require.Len(t, sum.Skipped, 1)
			assert.Equal(t, 6, sum.Skipped[0].Line)
			assert.Equal(t, bad, sum.Skipped[0].Content)

			for i := 1; i <= 10; i++ {
				assert.Equal(t, "v", srv.Do(0, "GET", fmt.Sprintf("k%d", i)).String())
			}
		})
	}
}

func TestRestore_ReplyErrors(t *testing.T) {
	input := stringLines(t, 5)

	t.Run("abort", func(t *testing.T) {
		conn := &scriptedConn{failKey: "k2"}

		sum, err := New(conn, Options{BulkSize: 2}).Restore(context.Background(), strings.NewReader(input))

		var redisErr *client.RedisError
		require.True(t, errors.As(err, &redisErr))
		assert.ErrorContains(t, err, "line 2")
		assert.Equal(t, 1, conn.flushes)
		assert.Equal(t, "k2", sum.AbortErr.Key)
		assert.Equal(t, 2, sum.AbortErr.Line)
	})

	t.Run("skip", func(t *testing.T) {
		conn := &scriptedConn{failKey: "k4"}

		sum, err := New(conn, Options{BulkSize: 2, Policy: report.Skip}).Restore(context.Background(), strings.NewReader(input))
		require.NoError(t, err)

		assert.Equal(t, 3, conn.flushes)
		assert.Equal(t, 4, sum.Records)
		assert.Equal(t, []report.Failure{{Key: "k4", Line: 4, Error: `line 4: key "k4": SET: ERR simulated`}}, sum.Skipped)
	})
}

func TestRestore_Expiration(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		ttl    record.TTL
		useTTL bool
	}{
		{"relative milliseconds", record.MillisecondsTTL(1500), true},
		{"absolute milliseconds", record.MillisecondsTTL(1500), false},
		{"relative seconds", record.SecondsTTL(20), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := redistest.Run(t)
			c := connect(t, srv)

			line, err := record.Marshal(record.New("k", record.StringValue("v"), tt.ttl, now))
			require.NoError(t, err)

			_, err = New(c, Options{UseTTL: tt.useTTL}).Restore(context.Background(), bytes.NewReader(line))
			require.NoError(t, err)

			pttl, err := srv.Do(0, "PTTL", "k").AsInt64()
			require.NoError(t, err)

			expected := tt.ttl.Duration
			if !tt.useTTL {
				expected = time.Until(record.New("k", record.StringValue("v"), tt.ttl, now).ExpireAt.Time)
			}
			assert.InDelta(t, expected.Milliseconds(), pttl, 50)
		})
	}

	t.Run("no expiration", func(t *testing.T) {
		srv := redistest.Run(t)
		c := connect(t, srv)

		srv.Do(0, "SET", "k", "old")
		srv.Do(0, "EXPIRE", "k", "100")

		line, err := record.Marshal(record.New("k", record.StringValue("v"), record.NoTTL, now))
		require.NoError(t, err)

		_, err = New(c, Options{}).Restore(context.Background(), bytes.NewReader(line))
		require.NoError(t, err)

		assert.Equal(t, "-1", srv.Do(0, "TTL", "k").String(), "replace drops the old expiration")
		assert.Equal(t, "v", srv.Do(0, "GET", "k").String())
	})
}

func TestRestore_ContextCancelled(t *testing.T) {
	srv := redistest.Run(t)
	c := connect(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(c, Options{}).Restore(ctx, strings.NewReader(stringLines(t, 3)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, report.Aborted, sum.Status)
}

package restore

import (
	"bufio"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisdump/redis-dump-go/app/record"
	"github.com/redisdump/redis-dump-go/app/redistest"
	"github.com/redisdump/redis-dump-go/app/snapshot"
)

func dump(t *testing.T, srv *redistest.Server) map[string]*record.Record {
	t.Helper()

	c := connect(t, srv)
	d := snapshot.NewDriver(c, snapshot.NewReader(c, snapshot.ReaderOptions{UsePTTL: true}), snapshot.DriverOptions{})

	var out bytes.Buffer
	_, err := d.Dump(context.Background(), &out)
	require.NoError(t, err)

	recs := make(map[string]*record.Record)
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		rec, err := record.Unmarshal(sc.Bytes())
		require.NoError(t, err)
		recs[rec.Key] = rec
	}
	return recs
}

func TestDumpRestoreIdempotence(t *testing.T) {
	src := redistest.Run(t)

	src.Do(0, "SET", "foo", "bar")
	src.Do(0, "SET", "bin", "\x00\xff'\"\n")
	src.Do(0, "RPUSH", "mylist", "a", "b", "c", "a")
	src.Do(0, "SADD", "set", "x", "y", "z")
	src.Do(0, "ZADD", "z", "1.5", "m1", "2.5", "m2", "-inf", "bottom")
	src.Do(0, "HSET", "h", "a", "1", "b", "2")
	src.Do(0, "EXPIRE", "h", "10")
	src.Do(0, "PEXPIRE", "mylist", "90500")

	first := dump(t, src)
	require.Len(t, first, 6)

	var lines bytes.Buffer
	for _, rec := range first {
		line, err := record.Marshal(rec)
		require.NoError(t, err)
		lines.Write(append(line, '\n'))
	}

	for _, useTTL := range []bool{false, true} {
		dst := redistest.Run(t)
		c := connect(t, dst)

		sum, err := New(c, Options{UseTTL: useTTL, BulkSize: 4}).Restore(context.Background(), bytes.NewReader(lines.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 6, sum.Records)

		second := dump(t, dst)
		require.Len(t, second, len(first))

		for key, want := range first {
			got := second[key]
			require.NotNil(t, got, key)
			assert.True(t, record.Equal(want, got, time.Second), "use_ttl=%v\nwant %s\ngot  %s", useTTL, want, got)
		}

		assert.Equal(t, "\x00\xff'\"\n", dst.Do(0, "GET", "bin").String())
	}
}

package redistest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamLog_AddAndGet(t *testing.T) {
	var s streamLog
	now := time.UnixMilli(1700000000000)

	ids := []string{"1700000000000-0", "1700000000000-1", "1700000000123-0", "1800000000000-7"}
	for i, id := range ids {
		got, err := s.add(id, []string{"n", string(rune('a' + i))}, now)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	assert.Equal(t, 4, s.size)

	for i, id := range ids {
		e := s.get(id)
		require.NotNil(t, e, id)
		assert.Equal(t, id, e.id)
		assert.Equal(t, string(rune('a'+i)), e.fields[1])
	}

	assert.Nil(t, s.get("1700000000000"), "a shared prefix is not an entry")
	assert.Nil(t, s.get("1700000000000-2"))
	assert.Nil(t, s.get("9"))
}

func TestStreamLog_IDs(t *testing.T) {
	var s streamLog
	now := time.UnixMilli(5000)

	id, err := s.add("*", nil, now)
	require.NoError(t, err)
	assert.Equal(t, "5000-0", id)

	// Same millisecond: the sequence moves on.
	id, err = s.add("*", nil, now)
	require.NoError(t, err)
	assert.Equal(t, "5000-1", id)

	_, err = s.add("4000-0", nil, now)
	assert.Error(t, err, "IDs only grow")

	_, err = s.add("0-0", nil, now)
	assert.Error(t, err)

	_, err = s.add("abc", nil, now)
	assert.Error(t, err)

	id, err = s.add("6000", nil, now)
	require.NoError(t, err)
	assert.Equal(t, "6000", id)
	assert.NotNil(t, s.get("5000-1"))
}

func TestServer_XAdd(t *testing.T) {
	srv := Run(t)

	v := srv.Do(0, "XADD", "events", "1-1", "kind", "login")
	assert.Equal(t, "1-1", v.String())

	assert.Equal(t, "stream", srv.Do(0, "TYPE", "events").String())

	n, err := srv.Do(0, "XLEN", "events").AsInt64()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.True(t, srv.Do(0, "XADD", "events", "1-0", "k", "v").IsError())
	assert.True(t, srv.Do(0, "XADD", "events", "2-0", "odd").IsError())
	assert.True(t, srv.Do(0, "GET", "events").IsError(), "WRONGTYPE")

	old := Run(t, WithVersion("4.0.0"))
	assert.True(t, old.Do(0, "XADD", "events", "*", "k", "v").IsError())
}

package record

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captured = time.Unix(1700000000, 250_000_000)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name     string
		record   *Record
		expected string
	}{
		{
			name:     "string without expiration",
			record:   New("foo", StringValue("bar"), NoTTL, captured),
			expected: `(b'string', b'foo', -1, -1, b'bar')`,
		},
		{
			name:     "list keeps order",
			record:   New("mylist", ListValue{"a", "b", "c"}, NoTTL, captured),
			expected: `(b'list', b'mylist', -1, -1, [b'a', b'b', b'c'])`,
		},
		{
			name:     "hash with whole second lifetime",
			record:   New("h", HashValue{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}, SecondsTTL(10), captured),
			expected: `(b'hash', b'h', 10, 1700000010, {b'a': b'1', b'b': b'2'})`,
		},
		{
			name:     "sorted set",
			record:   New("z", SortedSetValue{{Name: "m1", Score: 1.5}, {Name: "m2", Score: 2.5}}, NoTTL, captured),
			expected: `(b'zset', b'z', -1, -1, [(b'm1', 1.5), (b'm2', 2.5)])`,
		},
		{
			name:     "millisecond lifetime",
			record:   New("k", StringValue("v"), MillisecondsTTL(1500), time.Unix(1700000000, 0)),
			expected: `(b'string', b'k', 1.5, 1700000001.5, b'v')`,
		},
		{
			name:     "millisecond lifetime on a whole second",
			record:   New("k", StringValue("v"), MillisecondsTTL(10000), time.Unix(1700000000, 0)),
			expected: `(b'string', b'k', 10.0, 1700000010.0, b'v')`,
		},
		{
			name:     "set",
			record:   New("s", SetValue{"x"}, NoTTL, captured),
			expected: `(b'set', b's', -1, -1, {b'x'})`,
		},
		{
			name:     "empty set",
			record:   New("s", SetValue{}, NoTTL, captured),
			expected: `(b'set', b's', -1, -1, set())`,
		},
		{
			name:     "single quote switches quoting",
			record:   New("it's", StringValue(`a'b"c`), NoTTL, captured),
			expected: `(b'string', b"it's", -1, -1, b'a\'b"c')`,
		},
		{
			name:     "binary content",
			record:   New("bin", StringValue("\x00\xff\n\t\\"), NoTTL, captured),
			expected: `(b'string', b'bin', -1, -1, b'\x00\xff\n\t\\')`,
		},
		{
			name:     "infinite scores",
			record:   New("z", SortedSetValue{{Name: "lo", Score: math.Inf(-1)}, {Name: "hi", Score: math.Inf(1)}}, NoTTL, captured),
			expected: `(b'zset', b'z', -1, -1, [(b'lo', -inf), (b'hi', inf)])`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Marshal(tt.record)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(line))
		})
	}
}

func TestMarshal_RejectsInvalidRecords(t *testing.T) {
	_, err := Marshal(&Record{Key: "k", TTL: NoTTL})
	assert.Error(t, err)

	_, err = Marshal(&Record{Key: "k", TTL: SecondsTTL(5), Value: StringValue("v")})
	assert.Error(t, err, "a lifetime without a deadline must not be written")
}

func TestFormatScore(t *testing.T) {
	tests := map[float64]string{
		1.5:         "1.5",
		1:           "1.0",
		-2.25:       "-2.25",
		0:           "0.0",
		0.0001:      "0.0001",
		1e-05:       "1e-05",
		1.5e-07:     "1.5e-07",
		123456789:   "123456789.0",
		1e15:        "1000000000000000.0",
		1e16:        "1e+16",
		2.5e20:      "2.5e+20",
		math.Inf(1): "inf",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, formatScore(input), "formatScore(%v)", input)
	}
}

func TestRoundTrip(t *testing.T) {
	records := []*Record{
		New("foo", StringValue("bar"), NoTTL, captured),
		New("", StringValue(""), NoTTL, captured),
		New("bin\x00key", StringValue("\r\n\x7f\x80'\""), SecondsTTL(30), captured),
		New("mylist", ListValue{"c", "a", "b", "a"}, MillisecondsTTL(1234), captured),
		New("s", SetValue{"b", "a", "c"}, NoTTL, captured),
		New("z", SortedSetValue{{Name: "m1", Score: 1.5}, {Name: "m2", Score: -3}, {Name: "m3", Score: 1e300}}, NoTTL, captured),
		New("h", HashValue{{Name: "f1", Value: "v1"}, {Name: "f\n2", Value: ""}}, SecondsTTL(86400), captured),
	}

	for _, r := range records {
		t.Run(r.String(), func(t *testing.T) {
			line, err := Marshal(r)
			require.NoError(t, err)

			got, err := Unmarshal(line)
			require.NoError(t, err, "line %s", line)

			assert.True(t, Equal(r, got, 0), "expected %v, got %v", r, got)
			assert.Equal(t, r.TTL, got.TTL)
			assert.Equal(t, r.ExpireAt.Precision, got.ExpireAt.Precision)
			assert.True(t, r.ExpireAt.Time.Equal(got.ExpireAt.Time))
		})
	}
}

func TestRoundTrip_SubMillisecondLifetime(t *testing.T) {
	lines := []string{
		`(b'string', b'k', 0.0005, 1700000000.0005, b'v')`,
		`(b'string', b'k', 0.0005, 0.0005, b'v')`,
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			rec, err := Unmarshal([]byte(line))
			require.NoError(t, err)

			out, err := Marshal(rec)
			require.NoError(t, err)

			got, err := Unmarshal(out)
			require.NoError(t, err, "line %s", out)

			assert.True(t, got.TTL.IsSet())
			assert.Equal(t, time.Millisecond, got.TTL.Duration)
			assert.True(t, got.ExpireAt.IsSet())

			again, err := Marshal(got)
			require.NoError(t, err)
			assert.Equal(t, string(out), string(again))
		})
	}
}

func TestUnmarshal_ForeignLines(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected *Record
	}{
		{
			name: "plain str literals",
			line: `('string', 'foo', -1, -1, 'bar')`,
			expected: &Record{
				Key: "foo", TTL: NoTTL, Value: StringValue("bar"),
			},
		},
		{
			name: "str literal with raw bytes",
			line: `('string', 'k\xe9', -1, -1, '\xff\x00')`,
			expected: &Record{
				Key: "k\xe9", TTL: NoTTL, Value: StringValue("\xff\x00"),
			},
		},
		{
			name: "integer score",
			line: `(b'zset', b'z', -1, -1, [(b'm1', 1.5), (b'm2', 2)])`,
			expected: &Record{
				Key: "z", TTL: NoTTL, Value: SortedSetValue{{Name: "m1", Score: 1.5}, {Name: "m2", Score: 2}},
			},
		},
		{
			name: "set literal",
			line: `(b'set', b's', -1, -1, {b'b', b'a'})`,
			expected: &Record{
				Key: "s", TTL: NoTTL, Value: SetValue{"a", "b"},
			},
		},
		{
			name: "set call",
			line: `(b'set', b's', -1, -1, set([b'a']))`,
			expected: &Record{
				Key: "s", TTL: NoTTL, Value: SetValue{"a"},
			},
		},
		{
			name: "sub second lifetime with microsecond deadline",
			line: "(b'hash', b'h', 9.998, 1700000009.9981234, {b'a': b'1'})\n",
			expected: &Record{
				Key:      "h",
				TTL:      TTL{Duration: 9998 * time.Millisecond, Precision: Milliseconds},
				ExpireAt: Deadline{Time: time.Unix(1700000009, 998123400), Precision: Milliseconds},
				Value:    HashValue{{Name: "a", Value: "1"}},
			},
		},
		{
			name: "whole second lifetime",
			line: `(b'list', b'l', 10, 1700000010, [b'x'])`,
			expected: &Record{
				Key:      "l",
				TTL:      SecondsTTL(10),
				ExpireAt: Deadline{Time: time.Unix(1700000010, 0), Precision: Seconds},
				Value:    ListValue{"x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tt.line))

			require.NoError(t, err)
			assert.True(t, Equal(tt.expected, got, 0), "expected %v, got %v", tt.expected, got)
			assert.Equal(t, tt.expected.TTL, got.TTL)
			assert.Equal(t, tt.expected.ExpireAt.Precision, got.ExpireAt.Precision)
		})
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		unsupported bool
	}{
		{name: "four elements", line: `(b'string', b'foo', -1, -1)`},
		{name: "six elements", line: `(b'string', b'foo', -1, -1, b'bar', b'extra')`},
		{name: "unknown type", line: `(b'stream', b'x', -1, -1, b'')`, unsupported: true},
		{name: "type is not a string", line: `(1, b'x', -1, -1, b'v')`},
		{name: "list value for string", line: `(b'string', b'x', -1, -1, [b'v'])`},
		{name: "string value for list", line: `(b'list', b'x', -1, -1, b'abc')`},
		{name: "hash value is a set", line: `(b'hash', b'x', -1, -1, {b'a'})`},
		{name: "zset entry without score", line: `(b'zset', b'x', -1, -1, [(b'm',)])`},
		{name: "zset score is text", line: `(b'zset', b'x', -1, -1, [(b'm', b'1')])`},
		{name: "lifetime without deadline", line: `(b'string', b'x', 10, -1, b'v')`},
		{name: "deadline without lifetime", line: `(b'string', b'x', -1, 1700000000, b'v')`},
		{name: "ttl is text", line: `(b'string', b'x', b'1', -1, b'v')`},
		{name: "not a tuple", line: `[b'string', b'x', -1, -1, b'v']`},
		{name: "garbage", line: `hello`},
		{name: "unterminated", line: `(b'string', b'x`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Unmarshal([]byte(tt.line))

			assert.Nil(t, r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))
			assert.Equal(t, tt.unsupported, errors.Is(err, ErrUnsupportedType))

			var malformed *MalformedError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.line, malformed.Content)
		})
	}
}

func TestMalformedError(t *testing.T) {
	err := &MalformedError{Line: 7, Content: "(b'x'", Err: errors.New("boom")}
	assert.Equal(t, `line 7: malformed record: boom: "(b'x'"`, err.Error())

	long := &MalformedError{Content: strings.Repeat("a", 500), Err: errors.New("boom")}
	assert.Less(t, len(long.Error()), 500)
}

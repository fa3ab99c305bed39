package restore

import (
	"time"

	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/record"
)

// ChunkSize caps the elements sent in one RPUSH, SADD or ZADD. Hashes are
// not chunked.
const ChunkSize = 512

// Commands returns the writes that replace rec's key: DEL, the re-creation
// of the value, then the expiration, in that order. Empty collections only
// produce the DEL since the server cannot hold them.
func Commands(rec *record.Record, useTTL bool) []commands.Command {
	key := rec.Key
	out := []commands.Command{commands.Del(key)}

	switch v := rec.Value.(type) {
	case record.StringValue:
		out = append(out, commands.Set(key, string(v)))

	case record.ListValue:
		for _, chunk := range commands.Chunk(v, ChunkSize) {
			out = append(out, commands.RPush(key, chunk...))
		}

	case record.SetValue:
		for _, chunk := range commands.Chunk(v, ChunkSize) {
			out = append(out, commands.SAdd(key, chunk...))
		}

	case record.SortedSetValue:
		for _, chunk := range commands.Chunk(v, ChunkSize) {
			args := make([]string, 0, 2*len(chunk))
			for _, m := range chunk {
				args = append(args, commands.FormatScore(m.Score), m.Name)
			}
			out = append(out, commands.ZAdd(key, args...))
		}

	case record.HashValue:
		// The whole mapping goes in one HSET.
		if len(v) > 0 {
			args := make([]string, 0, 2*len(v))
			for _, f := range v {
				args = append(args, f.Name, f.Value)
			}
			out = append(out, commands.HSet(key, args...))
		}
	}

	if len(out) == 1 || !rec.TTL.IsSet() {
		return out
	}

	return append(out, expiry(rec, useTTL))
}

// expiry picks the command from the precision tag: relative or absolute
// depending on useTTL, seconds or milliseconds depending on the record.
func expiry(rec *record.Record, useTTL bool) commands.Command {
	if useTTL {
		if rec.TTL.Precision == record.Seconds {
			return commands.Expire(rec.Key, int64(rec.TTL.Duration/time.Second))
		}
		return commands.PExpire(rec.Key, max(1, rec.TTL.Duration.Milliseconds()))
	}

	if rec.ExpireAt.Precision == record.Seconds {
		return commands.ExpireAt(rec.Key, rec.ExpireAt.Time.Unix())
	}
	return commands.PExpireAt(rec.Key, rec.ExpireAt.Time.UnixMilli())
}

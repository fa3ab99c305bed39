// Package snapshot captures keys from a live server into records, one key
// at a time, and streams them out in the dump line format.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/record"
)

// Conn is what reading needs from a connection. *client.Client satisfies it.
type Conn interface {
	Do(ctx context.Context, cmd commands.Command) (resp.Value, error)
	Transaction(ctx context.Context, watch []string, cmds ...commands.Command) ([]resp.Value, error)
}

const (
	DefaultRetries = 5
	DefaultBackoff = 10 * time.Millisecond
)

type ReaderOptions struct {
	// UsePTTL selects millisecond lifetimes. Servers older than 2.6 only
	// know TTL.
	UsePTTL bool
	// Retries bounds the attempts made for one key when a concurrent
	// writer gets in the way. Values below 1 mean DefaultRetries.
	Retries int
	// Backoff is the first wait between attempts; it grows exponentially.
	Backoff time.Duration
	Logger  *zap.Logger
	// Now is the clock used for expire_at. Defaults to time.Now.
	Now func() time.Time
	// OnRetry is called before each repeated attempt.
	OnRetry func(key string, err error)
}

type Reader struct {
	conn Conn
	opts ReaderOptions
	log  *zap.Logger
}

func NewReader(conn Conn, opts ReaderOptions) *Reader {
	if opts.Retries < 1 {
		opts.Retries = DefaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Reader{conn: conn, opts: opts, log: opts.Logger}
}

// Read captures key atomically. TypeChanged and WatchAborted are retried
// with exponential backoff; once the attempts run out the last one is
// returned inside a *KeyError.
func (r *Reader) Read(ctx context.Context, key string) (*record.Record, error) {
	return r.read(ctx, key, nil)
}

func (r *Reader) read(ctx context.Context, key string, retried func()) (*record.Record, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.Backoff
	b.MaxInterval = 50 * r.opts.Backoff

	op := func() (*record.Record, error) {
		rec, err := r.readOnce(ctx, key)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return rec, err
	}

	notify := func(err error, wait time.Duration) {
		r.log.Debug("retrying key", zap.String("key", key), zap.Duration("wait", wait), zap.Error(err))
		if retried != nil {
			retried()
		}
		if r.opts.OnRetry != nil {
			r.opts.OnRetry(key, err)
		}
	}

	rec, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.Retries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		if retryable(err) {
			err = &KeyError{Key: key, Err: fmt.Errorf("after %d attempts: %w", r.opts.Retries, err)}
		}
		return nil, err
	}

	return rec, nil
}

func (r *Reader) readOnce(ctx context.Context, key string) (*record.Record, error) {
	probe, err := r.probe(ctx, key)
	if err != nil {
		return nil, err
	}

	lifetime := commands.TTL(key)
	if r.opts.UsePTTL {
		lifetime = commands.PTTL(key)
	}

	queued := []commands.Command{commands.Type(key), lifetime, fetchCommand(probe, key)}

	results, err := r.conn.Transaction(ctx, []string{key}, queued...)
	switch {
	case errors.Is(err, client.ErrTxAborted):
		return nil, ErrWatchAborted
	case err != nil:
		return nil, keyError(key, err)
	}

	now := r.opts.Now()

	typeName, err := results[0].AsString()
	if err != nil {
		return nil, fmt.Errorf("key %q: type reply: %w", key, err)
	}

	if typeName != probe.String() {
		r.log.Debug("type changed", zap.String("key", key), zap.Stringer("probe", probe), zap.String("now", typeName))
		return nil, ErrTypeChanged
	}

	for i, reply := range results[1:] {
		if err := client.ReplyError(queued[i+1], reply); err != nil {
			return nil, &KeyError{Key: key, Err: err}
		}
	}

	n, err := results[1].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("key %q: %s reply: %w", key, lifetime.Name(), err)
	}

	ttl := record.SecondsTTL(n)
	if r.opts.UsePTTL {
		ttl = record.MillisecondsTTL(n)
	}

	value, err := decodeValue(probe, results[2])
	if err != nil {
		return nil, &KeyError{Key: key, Err: err}
	}

	return record.New(key, value, ttl, now), nil
}

// probe reads the type outside the transaction. It decides which command
// fetches the value.
func (r *Reader) probe(ctx context.Context, key string) (record.Type, error) {
	v, err := r.conn.Do(ctx, commands.Type(key))
	if err != nil {
		return 0, keyError(key, err)
	}

	name, err := v.AsString()
	if err != nil {
		return 0, fmt.Errorf("key %q: type reply: %w", key, err)
	}

	if name == "none" {
		return 0, &KeyError{Key: key, Err: ErrKeyNotFound}
	}

	typ, err := record.ParseType(name)
	if err != nil {
		return 0, &KeyError{Key: key, Err: err}
	}

	return typ, nil
}

// keyError keeps server error replies confined to the key; anything else is
// a connection problem.
func keyError(key string, err error) error {
	var redisErr *client.RedisError
	if errors.As(err, &redisErr) {
		return &KeyError{Key: key, Err: err}
	}
	return err
}

func fetchCommand(typ record.Type, key string) commands.Command {
	switch typ {
	case record.List:
		return commands.LRange(key)
	case record.Set:
		return commands.SMembers(key)
	case record.SortedSet:
		return commands.ZRangeWithScores(key)
	case record.Hash:
		return commands.HGetAll(key)
	}
	return commands.Get(key)
}

func decodeValue(typ record.Type, v resp.Value) (record.Value, error) {
	if typ == record.String {
		s, err := client.String(v)
		if err != nil {
			return nil, fmt.Errorf("string value: %w", err)
		}
		return record.StringValue(s), nil
	}

	items, err := v.AsStrings()
	if err != nil {
		return nil, fmt.Errorf("%s value: %w", typ, err)
	}

	switch typ {
	case record.List:
		return record.ListValue(items), nil

	case record.Set:
		return record.SetValue(items), nil

	case record.SortedSet:
		if len(items)%2 != 0 {
			return nil, fmt.Errorf("zset value: odd reply length %d", len(items))
		}

		members := make(record.SortedSetValue, 0, len(items)/2)
		for i := 0; i < len(items); i += 2 {
			score, err := commands.ParseScore(items[i+1])
			if err != nil {
				return nil, fmt.Errorf("zset member %q: %w", items[i], err)
			}
			members = append(members, record.Member{Name: items[i], Score: score})
		}
		return members, nil

	case record.Hash:
		if len(items)%2 != 0 {
			return nil, fmt.Errorf("hash value: odd reply length %d", len(items))
		}

		fields := make(record.HashValue, 0, len(items)/2)
		for i := 0; i < len(items); i += 2 {
			fields = append(fields, record.Field{Name: items[i], Value: items[i+1]})
		}
		return fields, nil
	}

	return nil, fmt.Errorf("%w: %v", record.ErrUnsupportedType, typ)
}

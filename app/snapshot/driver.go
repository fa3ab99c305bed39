package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/record"
	"github.com/redisdump/redis-dump-go/app/report"
)

// Enumeration is how the driver lists matching keys.
type Enumeration uint8

const (
	// UseKeys fetches every matching key with one KEYS call.
	UseKeys Enumeration = iota
	// UseScan walks the keyspace incrementally with SCAN.
	UseScan
)

func (e Enumeration) String() string {
	if e == UseScan {
		return "scan"
	}
	return "keys"
}

func ParseEnumeration(s string) (Enumeration, error) {
	switch strings.ToLower(s) {
	case "", "keys":
		return UseKeys, nil
	case "scan":
		return UseScan, nil
	}
	return UseKeys, fmt.Errorf("unknown key enumeration %q (want keys or scan)", s)
}

func (e *Enumeration) UnmarshalText(text []byte) error {
	v, err := ParseEnumeration(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

const (
	DefaultPattern   = "*"
	DefaultScanCount = 1000
)

type DriverOptions struct {
	Pattern     string
	Enumeration Enumeration
	ScanCount   int
	Policy      report.Policy
	Logger      *zap.Logger

	// OnTotal receives the number of keys to read once KEYS returns. It is
	// not called when scanning.
	OnTotal func(n int)
	// OnKey is called after each key, whether it was written or not.
	OnKey func(key string)
}

// Driver enumerates keys and streams their records to a writer.
type Driver struct {
	conn   Conn
	reader *Reader
	opts   DriverOptions
	log    *zap.Logger
}

func NewDriver(conn Conn, reader *Reader, opts DriverOptions) *Driver {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = DefaultScanCount
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Driver{conn: conn, reader: reader, opts: opts, log: opts.Logger}
}

// Dump writes one line per matching key to w. The summary is always
// returned; err is non-nil when the run was aborted.
func (d *Driver) Dump(ctx context.Context, w io.Writer) (sum *report.Summary, err error) {
	sum = report.New("dump")
	defer func() { sum.Finish(err) }()

	visit := func(key string) error {
		return d.dumpKey(ctx, w, sum, key)
	}

	if d.opts.Enumeration == UseScan {
		err = d.scan(ctx, visit)
	} else {
		err = d.keys(ctx, visit)
	}

	return sum, err
}

func (d *Driver) dumpKey(ctx context.Context, w io.Writer, sum *report.Summary, key string) error {
	if d.opts.OnKey != nil {
		defer d.opts.OnKey(key)
	}

	rec, err := d.reader.read(ctx, key, func() { sum.Retries++ })

	switch {
	case errors.Is(err, ErrKeyNotFound):
		d.log.Debug("key vanished", zap.String("key", key))
		sum.Vanished++
		return nil

	case err != nil:
		var keyErr *KeyError
		if !errors.As(err, &keyErr) {
			return fmt.Errorf("read %q: %w", key, err)
		}
		return d.fail(sum, key, err)
	}

	line, err := record.Marshal(rec)
	if err != nil {
		return d.fail(sum, key, &KeyError{Key: key, Err: err})
	}

	if _, err := w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	sum.Records++
	return nil
}

func (d *Driver) fail(sum *report.Summary, key string, err error) error {
	d.log.Warn("key failed", zap.String("key", key), zap.Stringer("policy", d.opts.Policy), zap.Error(err))
	return d.opts.Policy.Handle(sum, report.Failure{Key: key}, err)
}

func (d *Driver) keys(ctx context.Context, visit func(string) error) error {
	v, err := d.conn.Do(ctx, commands.Keys(d.opts.Pattern))
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}

	keys, err := v.AsStrings()
	if err != nil {
		return fmt.Errorf("keys reply: %w", err)
	}

	d.log.Info("enumerated keys", zap.String("pattern", d.opts.Pattern), zap.Int("count", len(keys)))

	if d.opts.OnTotal != nil {
		d.opts.OnTotal(len(keys))
	}

	for _, key := range keys {
		if err := visit(key); err != nil {
			return err
		}
	}

	return nil
}

// scan visits every key SCAN returns once, even when the cursor walk
// reports it again after a rehash.
func (d *Driver) scan(ctx context.Context, visit func(string) error) error {
	seen := make(map[string]struct{})
	cursor := "0"

	for {
		v, err := d.conn.Do(ctx, commands.Scan(cursor, d.opts.Pattern, d.opts.ScanCount))
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		next, keys, err := scanReply(v)
		if err != nil {
			return err
		}

		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if err := visit(key); err != nil {
				return err
			}
		}

		if next == "0" {
			d.log.Info("scan finished", zap.String("pattern", d.opts.Pattern), zap.Int("count", len(seen)))
			return nil
		}
		cursor = next
	}
}

func scanReply(v resp.Value) (string, []string, error) {
	parts, err := v.AsArray()
	if err != nil || len(parts) != 2 {
		return "", nil, fmt.Errorf("scan reply: unexpected %s", v.Type)
	}

	cursor, err := parts[0].AsString()
	if err != nil {
		return "", nil, fmt.Errorf("scan cursor: %w", err)
	}

	keys, err := parts[1].AsStrings()
	if err != nil {
		return "", nil, fmt.Errorf("scan keys: %w", err)
	}

	return cursor, keys, nil
}

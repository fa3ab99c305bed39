// Package restore replays dump lines against a server.
package restore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/commands"
	"github.com/redisdump/redis-dump-go/app/commands/resp"
	"github.com/redisdump/redis-dump-go/app/record"
	"github.com/redisdump/redis-dump-go/app/report"
)

// Conn is what replay needs from a connection. *client.Client satisfies it.
type Conn interface {
	Pipeline(ctx context.Context, cmds []commands.Command) ([]resp.Value, error)
}

const DefaultBulkSize = 1000

type Options struct {
	// UseTTL restores relative lifetimes instead of the recorded deadlines.
	UseTTL bool
	// BulkSize is the number of records sent per pipeline.
	BulkSize int
	Policy   report.Policy
	Logger   *zap.Logger
	// OnLine is called after each input line is consumed.
	OnLine func(line int, n int)
}

type Restorer struct {
	conn Conn
	opts Options
	log  *zap.Logger
}

func New(conn Conn, opts Options) *Restorer {
	if opts.BulkSize <= 0 {
		opts.BulkSize = DefaultBulkSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Restorer{conn: conn, opts: opts, log: opts.Logger}
}

type pending struct {
	line int
	key  string
}

// batch holds queued records and, for every queued command, the index of
// the record that queued it.
type batch struct {
	records []pending
	cmds    []commands.Command
	owners  []int
}

func (b *batch) add(p pending, cmds []commands.Command) {
	for range cmds {
		b.owners = append(b.owners, len(b.records))
	}
	b.records = append(b.records, p)
	b.cmds = append(b.cmds, cmds...)
}

func (b *batch) reset() {
	b.records = b.records[:0]
	b.cmds = b.cmds[:0]
	b.owners = b.owners[:0]
}

// Restore applies every line of in, in order. A batch is sent once it holds
// BulkSize records and the remainder is sent at the end, so M records take
// ceil(M/BulkSize) pipelines. The summary is always returned; err is
// non-nil when the run was aborted.
func (r *Restorer) Restore(ctx context.Context, in io.Reader) (sum *report.Summary, err error) {
	sum = report.New("restore")
	defer func() { sum.Finish(err) }()

	var b batch
	rd := bufio.NewReaderSize(in, 64*1024)

	for lineNo := 1; ; lineNo++ {
		line, readErr := rd.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return sum, fmt.Errorf("read line %d: %w", lineNo, readErr)
		}

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if err := r.queue(sum, &b, lineNo, trimmed); err != nil {
				return sum, err
			}

			if len(b.records) == r.opts.BulkSize {
				if err := r.flush(ctx, sum, &b); err != nil {
					return sum, err
				}
			}
		}

		if r.opts.OnLine != nil {
			r.opts.OnLine(lineNo, len(line))
		}

		if readErr != nil {
			break
		}
	}

	if len(b.records) > 0 {
		if err := r.flush(ctx, sum, &b); err != nil {
			return sum, err
		}
	}

	return sum, nil
}

func (r *Restorer) queue(sum *report.Summary, b *batch, lineNo int, line []byte) error {
	rec, err := record.Unmarshal(line)
	if err != nil {
		var malformed *record.MalformedError
		if errors.As(err, &malformed) {
			malformed.Line = lineNo
		}

		r.log.Warn("malformed line", zap.Int("line", lineNo), zap.Stringer("policy", r.opts.Policy), zap.Error(err))

		// Under abort the pending batch is dropped along with the run.
		return r.opts.Policy.Handle(sum, report.Failure{Line: lineNo, Content: contentOf(err, line)}, err)
	}

	b.add(pending{line: lineNo, key: rec.Key}, Commands(rec, r.opts.UseTTL))
	return nil
}

func (r *Restorer) flush(ctx context.Context, sum *report.Summary, b *batch) error {
	defer b.reset()

	replies, err := r.conn.Pipeline(ctx, b.cmds)
	if err != nil {
		return fmt.Errorf("pipeline ending at line %d: %w", b.records[len(b.records)-1].line, err)
	}

	sum.Flushes++

	if ce := r.log.Check(zap.DebugLevel, "flushed batch"); ce != nil {
		ce.Write(zap.Int("records", len(b.records)), zap.Int("commands", len(b.cmds)))
	}

	failed := make(map[int]bool)

	for i, reply := range replies {
		replyErr := client.ReplyError(b.cmds[i], reply)
		owner := b.owners[i]

		if replyErr == nil || failed[owner] {
			continue
		}
		failed[owner] = true

		p := b.records[owner]
		err := fmt.Errorf("line %d: key %q: %w", p.line, p.key, replyErr)
		r.log.Warn("record failed", zap.Int("line", p.line), zap.String("key", p.key), zap.Error(replyErr))

		if err := r.opts.Policy.Handle(sum, report.Failure{Key: p.key, Line: p.line}, err); err != nil {
			// The server already ran the rest of the batch.
			sum.Records += len(b.records) - 1
			return err
		}
	}

	sum.Records += len(b.records) - len(failed)
	return nil
}

func contentOf(err error, line []byte) string {
	var malformed *record.MalformedError
	if errors.As(err, &malformed) {
		return malformed.Content
	}
	return string(line)
}

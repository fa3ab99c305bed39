package rdb

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/record"
	"github.com/redisdump/redis-dump-go/app/report"
	"github.com/redisdump/redis-dump-go/app/utils"
)

// AllDatabases disables the database filter.
const AllDatabases = -1

type ConvertOptions struct {
	// DB keeps only keys of one database, or all with AllDatabases.
	DB      int
	Pattern string
	Now     func() time.Time
	Logger  *zap.Logger
}

// Convert reads an RDB file from r and writes one dump line per live key to
// w. Keys that expired before now are counted as vanished. Any parse error
// aborts since the rest of the stream cannot be located.
func Convert(r io.Reader, w io.Writer, opts ConvertOptions) (sum *report.Summary, err error) {
	sum = report.New("import-rdb")
	defer func() { sum.Finish(err) }()

	if opts.Pattern == "" {
		opts.Pattern = "*"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	p := NewParser(r)
	now := opts.Now()

	for {
		entry, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}

		if opts.DB != AllDatabases && entry.DB != opts.DB {
			continue
		}
		if !utils.MatchGlob(opts.Pattern, entry.Key) {
			continue
		}

		rec, live := entry.Record(now)
		if !live {
			sum.Vanished++
			continue
		}

		line, err := record.Marshal(rec)
		if err != nil {
			return sum, fmt.Errorf("key %q: %w", entry.Key, err)
		}

		if _, err := w.Write(append(line, '\n')); err != nil {
			return sum, fmt.Errorf("write record: %w", err)
		}
		sum.Records++
	}

	log.Info("converted rdb file",
		zap.Int("version", p.Header.Version),
		zap.String("redis_version", p.Aux[RedisVersion]),
		zap.Int("records", sum.Records),
		zap.Int("expired", sum.Vanished))

	return sum, nil
}

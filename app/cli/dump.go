package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/archive"
	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/report"
	"github.com/redisdump/redis-dump-go/app/snapshot"
)

func (a *app) dumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write matching keys to a dump file, one line per key",
		Example: `  redis-dump dump -H cache -p 'session:*' -o sessions.dump.gz
  redis-dump dump --enumeration scan > all.dump`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDump(cmd.Context())
		},
	}

	fs := cmd.Flags()
	a.dumpFlags(fs)
	a.stringFlag(fs, "outfile", "o", "write to `FILE`, - for stdout", "dump.outfile")
	a.stringFlag(fs, "compression", "", "auto (from the extension), none, gzip, zstd, snappy or lz4", "dump.compression")
	a.stringFlag(fs, "on-error", "", "abort or skip a key that cannot be read", "dump.on-error")
	a.stringFlag(fs, "report", "", "write the run summary as YAML to `FILE`", "dump.report")

	return cmd
}

func (a *app) runDump(ctx context.Context) error {
	c, err := a.connect(ctx, a.cfg.Source)
	if err != nil {
		return err
	}
	defer c.Close()

	out, err := archive.Create(a.cfg.Dump.Outfile, a.cfg.Dump.Compression, a.stdout)
	if err != nil {
		return err
	}

	bar := newProgress(a.stderr, "dumping", "keys")
	sum, err := a.dump(ctx, c, out, bar)
	bar.finish()

	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
		sum.Finish(err)
	}

	return a.finish(err, a.cfg.Dump.Report, sum)
}

func (a *app) dump(ctx context.Context, c *client.Client, w io.Writer, bar *progress) (*report.Summary, error) {
	usePTTL := true

	if info, err := c.Info(ctx, "server"); err != nil {
		a.log.Warn("INFO failed, assuming PTTL is available", zap.Error(err))
	} else {
		usePTTL = info.SupportsPTTL()
		a.log.Debug("source server", zap.String("version", info.Version()), zap.Bool("pttl", usePTTL))
	}

	reader := snapshot.NewReader(c, snapshot.ReaderOptions{
		UsePTTL: usePTTL,
		Retries: a.cfg.Dump.Retries,
		Backoff: a.cfg.Dump.RetryBackoff,
		Logger:  a.log.Named("snapshot"),
	})

	driver := snapshot.NewDriver(c, reader, snapshot.DriverOptions{
		Pattern:     a.cfg.Dump.Pattern,
		Enumeration: a.cfg.Dump.Enumeration,
		ScanCount:   a.cfg.Dump.ScanCount,
		Policy:      a.cfg.Dump.OnError,
		Logger:      a.log.Named("dump"),
		OnTotal:     bar.total,
		OnKey:       func(string) { bar.add() },
	})

	return driver.Dump(ctx, w)
}

package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/redisdump/redis-dump-go/app/archive"
	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/report"
	"github.com/redisdump/redis-dump-go/app/restore"
)

func (a *app) restoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replay a dump file against the server",
		Example: `  redis-dump restore -i sessions.dump.gz -d 1
  redis-dump dump -H old | redis-dump restore -H new -i -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runRestore(cmd.Context())
		},
	}

	fs := cmd.Flags()
	a.restoreFlags(fs)
	a.stringFlag(fs, "infile", "i", "read from `FILE`, - for stdin", "restore.infile")
	a.stringFlag(fs, "compression", "", "auto (detected), none, gzip, zstd, snappy or lz4", "restore.compression")
	a.stringFlag(fs, "on-error", "", "abort or skip a line that cannot be restored", "restore.on-error")
	a.stringFlag(fs, "report", "", "write the run summary as YAML to `FILE`", "restore.report")

	return cmd
}

func (a *app) runRestore(ctx context.Context) error {
	if a.cfg.Restore.Infile == "" {
		return errors.New("missing infile, use -i")
	}

	in, err := archive.Open(a.cfg.Restore.Infile, a.cfg.Restore.Compression, a.stdin)
	if err != nil {
		return err
	}
	defer in.Close()

	c, err := a.connect(ctx, a.cfg.Source)
	if err != nil {
		return err
	}
	defer c.Close()

	bar := newProgress(a.stderr, "restoring", "records")
	sum, err := a.restore(ctx, c, in, bar)
	bar.finish()

	return a.finish(err, a.cfg.Restore.Report, sum)
}

func (a *app) restore(ctx context.Context, c *client.Client, r io.Reader, bar *progress) (*report.Summary, error) {
	restorer := restore.New(c, restore.Options{
		UseTTL:   a.cfg.Restore.UseTTL,
		BulkSize: a.cfg.Restore.Bulk,
		Policy:   a.cfg.Restore.OnError,
		Logger:   a.log.Named("restore"),
		OnLine:   func(int, int) { bar.add() },
	})

	return restorer.Restore(ctx, r)
}

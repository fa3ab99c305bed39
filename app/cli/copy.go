package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/redisdump/redis-dump-go/app/report"
)

func (a *app) copyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Stream matching keys from one server into another",
		Long: `copy dumps from the source and restores into the --dest-* server at the
same time, without an intermediate file. The destination defaults to the
source settings, so usually only what differs needs a flag.`,
		Example: `  redis-dump copy -p 'user:*' --dest-host replica --dest-db 3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCopy(cmd.Context())
		},
	}

	fs := cmd.Flags()
	a.dumpFlags(fs)
	a.restoreFlags(fs)
	a.connectionFlags(fs, "dest-", "target", false)
	a.stringFlag(fs, "on-error", "", "abort or skip a key that cannot be copied", "dump.on-error", "restore.on-error")
	a.stringFlag(fs, "report", "", "write both run summaries as YAML to `FILE`", "dump.report")

	return cmd
}

func (a *app) runCopy(ctx context.Context) error {
	src, err := a.connect(ctx, a.cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := a.connect(ctx, a.cfg.Target)
	if err != nil {
		return err
	}
	defer dst.Close()

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var dumped, restored *report.Summary
	bar := newProgress(a.stderr, "copying", "keys")

	g.Go(func() error {
		var err error
		dumped, err = a.dump(gctx, src, pw, bar)
		pw.CloseWithError(err)
		return err
	})

	// A failed restore closes the pipe so the dump stops writing.
	g.Go(func() error {
		var err error
		restored, err = a.restore(gctx, dst, pr, nil)
		pr.CloseWithError(err)
		return err
	})

	err = g.Wait()
	bar.finish()

	return a.finish(err, a.cfg.Dump.Report, dumped, restored)
}

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/redisdump/redis-dump-go/app/archive"
	"github.com/redisdump/redis-dump-go/app/rdb"
)

func (a *app) importRDBCommand() *cobra.Command {
	var database int

	cmd := &cobra.Command{
		Use:   "import-rdb",
		Short: "Convert an RDB snapshot into a dump file",
		Long: `import-rdb reads an RDB file offline and writes the live keys in the dump
format, ready for restore. Keys already expired are counted and dropped.`,
		Example: `  redis-dump import-rdb -i dump.rdb -o keys.dump --database 0`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runImportRDB(database)
		},
	}

	fs := cmd.Flags()
	a.stringFlag(fs, "infile", "i", "read the snapshot from `FILE`, - for stdin", "restore.infile")
	a.stringFlag(fs, "outfile", "o", "write to `FILE`, - for stdout", "dump.outfile")
	a.stringFlag(fs, "compression", "", "compression of the output", "dump.compression")
	a.stringFlag(fs, "pattern", "p", "convert keys matching glob `PATTERN`", "dump.pattern")
	a.stringFlag(fs, "report", "", "write the run summary as YAML to `FILE`", "dump.report")
	fs.IntVar(&database, "database", rdb.AllDatabases, "convert one database only, -1 for all")

	return cmd
}

func (a *app) runImportRDB(database int) error {
	if a.cfg.Restore.Infile == "" {
		return errors.New("missing infile, use -i")
	}

	in, err := archive.Open(a.cfg.Restore.Infile, a.cfg.Restore.Compression, a.stdin)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := archive.Create(a.cfg.Dump.Outfile, a.cfg.Dump.Compression, a.stdout)
	if err != nil {
		return err
	}

	sum, err := rdb.Convert(in, out, rdb.ConvertOptions{
		DB:      database,
		Pattern: a.cfg.Dump.Pattern,
		Logger:  a.log.Named("rdb"),
	})

	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
		sum.Finish(err)
	}

	return a.finish(err, a.cfg.Dump.Report, sum)
}

// Package cli wires the configuration, the connections and the dump and
// restore engines into a cobra command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/redisdump/redis-dump-go/app/client"
	"github.com/redisdump/redis-dump-go/app/config"
	"github.com/redisdump/redis-dump-go/app/report"
)

type app struct {
	v   *viper.Viper
	cfg *config.Configuration
	log *zap.Logger

	stdin          io.Reader
	stdout, stderr io.Writer

	configFile  string
	askPassword bool

	// status is the outcome of the last finished run.
	status report.Status
}

// Execute runs the command line in args and returns the process exit code:
// 0 when clean, 2 when records were skipped and 1 on any failure.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		v:      config.New(),
		log:    zap.NewNop(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	_ = a.log.Sync()

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return report.Aborted.ExitCode()
	}

	return a.status.ExitCode()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "redis-dump",
		Short: "Dump and restore keys of a Redis server",
		Long: `redis-dump captures keys as one text line each, with their type, remaining
lifetime and value, and replays such a file against a server.

Settings come from flags, REDIS_DUMP_* environment variables and an
optional config file, in that order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	fs := root.PersistentFlags()
	fs.StringVarP(&a.configFile, "config", "c", "", "read settings from `FILE` (yaml, json, toml)")
	a.stringFlag(fs, "log-level", "", "log level: debug, info, warn or error", "log.level")
	a.stringFlag(fs, "log-format", "", "log format: console or json", "log.format")
	fs.BoolVar(&a.askPassword, "ask-password", false, "prompt for the source password")
	a.connectionFlags(fs, "", "source", true)

	root.AddCommand(
		a.dumpCommand(),
		a.restoreCommand(),
		a.copyCommand(),
		a.dbListCommand(),
		a.importRDBCommand(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.configFile != "" {
		if err := config.ReadFile(a.v, a.configFile); err != nil {
			return err
		}
	}

	if err := bindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}

	if a.askPassword {
		pw, err := readPassword(a.stdin, a.stderr)
		if err != nil {
			return err
		}
		a.v.Set("source.password", pw)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = newLogger(a.stderr, cfg.Log)

	return nil
}

func (a *app) connect(ctx context.Context, conn config.Connection) (*client.Client, error) {
	opts, err := conn.ClientOptions(a.log.Named("client"))
	if err != nil {
		return nil, err
	}

	c, err := client.Dial(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", conn, err)
	}

	return c, nil
}

// finish logs each summary, saves the report and records the exit status.
func (a *app) finish(err error, reportPath string, sums ...*report.Summary) error {
	var done []*report.Summary

	for _, s := range sums {
		if s == nil {
			continue
		}
		done = append(done, s)

		a.log.Info("finished",
			zap.String("operation", s.Operation),
			zap.Stringer("status", s.Status),
			zap.Int("records", s.Records),
			zap.Int("skipped", len(s.Skipped)),
			zap.Int("vanished", s.Vanished),
			zap.Int("retries", s.Retries),
			zap.Duration("elapsed", s.Elapsed()),
		)
	}

	a.status = report.Worst(done...)

	if reportPath != "" && len(done) > 0 {
		if serr := report.Save(reportPath, done...); serr != nil {
			err = errors.Join(err, fmt.Errorf("write report: %w", serr))
		}
	}

	return err
}

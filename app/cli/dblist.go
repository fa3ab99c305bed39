package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func (a *app) dbListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dblist",
		Short: "List the databases that hold keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDBList(cmd.Context(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "plain", "plain (one index per line) or table")

	return cmd
}

func (a *app) runDBList(ctx context.Context, format string) error {
	if format != "plain" && format != "table" {
		return fmt.Errorf("unknown format %q", format)
	}

	c, err := a.connect(ctx, a.cfg.Source)
	if err != nil {
		return err
	}
	defer c.Close()

	info, err := c.Info(ctx, "keyspace")
	if err != nil {
		return err
	}

	if format == "plain" {
		for _, db := range info.Databases() {
			fmt.Fprintln(a.stdout, db)
		}
		return nil
	}

	table := tablewriter.NewWriter(a.stdout)
	table.Header("DB", "Keys", "Expires", "Avg TTL")

	for _, ks := range info.Keyspace {
		_ = table.Append([]string{
			strconv.Itoa(ks.DB),
			strconv.FormatInt(ks.Keys, 10),
			strconv.FormatInt(ks.Expires, 10),
			(time.Duration(ks.AvgTTL) * time.Millisecond).String(),
		})
	}

	return table.Render()
}

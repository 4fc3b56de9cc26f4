package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/acolita/shelltabs/internal/adapters/realclock"
	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/nlcache"
	"github.com/spf13/cobra"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the command generation cache",
	}
	open := func() *nlcache.Cache {
		return newCache(root.config, realfs.New(), realclock.New())
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached queries, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := open()
			return printEntries(cmd.OutOrStdout(), c.Entries())
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := open()
			n := c.Len()
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s\n", n, c.Path())
			return nil
		},
	})
	return cacheCmd
}

func printEntries(out io.Writer, entries []nlcache.Entry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STORED\tQUERY\tCOMMAND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Query, e.Command)
	}
	return tw.Flush()
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the extraction result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.cache()
			if err != nil {
				return err
			}
			st, err := store.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", st.Dir)
			fmt.Fprintf(out, "Entries:   %d\n", st.EntryCount)
			fmt.Fprintf(out, "Size:      %s bytes\n", thousands(int(st.TotalSize)))
			return nil
		},
	}

	var (
		olderThan time.Duration
		all       bool
	)
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove old cache entries",
		Long: `Remove cache entries older than --older-than (default: the configured sweep
threshold, 48h). --all removes every entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.cache()
			if err != nil {
				return err
			}

			var removed int
			if all {
				removed, err = store.Clear()
			} else {
				age := olderThan
				if age <= 0 {
					age = a.cfg.CacheSweepAfter
				}
				removed, err = store.PurgeOlderThan(age)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries.\n", removed)
			return nil
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 0, "remove entries older than this age")
	purgeCmd.Flags().BoolVar(&all, "all", false, "remove every entry")
	purgeCmd.MarkFlagsMutuallyExclusive("older-than", "all")

	cmd.AddCommand(statsCmd, purgeCmd)
	return cmd
}

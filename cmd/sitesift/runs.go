package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/sitesift/internal/models"
	"github.com/jmylchreest/sitesift/internal/repository"
	"github.com/jmylchreest/sitesift/internal/service"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect extraction run history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.runRepository(cmd.Context())
			if err != nil {
				return err
			}
			if runs == nil {
				return service.ErrHistoryDisabled
			}
			list, err := runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			return printRunTable(cmd.OutOrStdout(), list)
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", repository.DefaultListLimit, "maximum number of runs to show")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one run and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.runRepository(cmd.Context())
			if err != nil {
				return err
			}
			if runs == nil {
				return service.ErrHistoryDisabled
			}
			run, err := runs.GetByID(cmd.Context(), args[0])
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func printRunTable(out io.Writer, runs []*models.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tSECTIONS\tFAILED\tCACHED\tCALLS\tURL")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Status, formatTime(&r.CreatedAt), r.Sections, r.Failures, r.CacheHits, r.APICalls, truncate(r.URL, 60))
	}
	return w.Flush()
}

func printRun(out io.Writer, r *models.Run) {
	fmt.Fprintf(out, "ID:          %s\n", r.ID)
	fmt.Fprintf(out, "Status:      %s\n", r.Status)
	fmt.Fprintf(out, "URL:         %s\n", r.URL)
	fmt.Fprintf(out, "Instruction: %s\n", r.Instruction)
	if r.Engine != "" {
		fmt.Fprintf(out, "Engine:      %s\n", r.Engine)
	}
	fmt.Fprintf(out, "Created:     %s\n", formatTime(&r.CreatedAt))
	fmt.Fprintf(out, "Completed:   %s\n", formatTime(r.CompletedAt))
	fmt.Fprintf(out, "Chunks:      %d (%d cached, %d model calls)\n", r.ChunkCount, r.CacheHits, r.APICalls)
	fmt.Fprintf(out, "Sections:    %d (%d failed)\n", r.Sections, r.Failures)
	if r.StoppedAt > 0 {
		fmt.Fprintf(out, "Stopped at:  section %d (quota exhausted)\n", r.StoppedAt)
	}
	if r.ExportLocation != "" {
		fmt.Fprintf(out, "Exported to: %s\n", r.ExportLocation)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "Error:       %s\n", r.Error)
	}
	if r.ResultText != "" {
		fmt.Fprintf(out, "\n%s\n", r.ResultText)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scrape URL",
		Short: "Render a page and print its normalized text",
		Long: `Render a page in the configured browser engine and print the normalized
text that extraction would see. Statistics go to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.scrapeService()
			if err != nil {
				return err
			}
			res, err := svc.Scrape(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "Scraped %s with %s in %s\n", res.FinalURL, res.Engine, res.Duration.Round(time.Millisecond))
			fmt.Fprintf(errOut, "  raw HTML:        %s chars\n", thousands(res.RawLength))
			fmt.Fprintf(errOut, "  cleaned content: %s chars\n", thousands(res.CleanedLength))
			fmt.Fprintf(errOut, "  chunks:          %d\n", res.ChunkCount)
			fmt.Fprintf(errOut, "  links / images:  %d / %d\n", res.Links, res.Images)
			fmt.Fprintln(out, res.Content)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result and statistics as JSON")
	return cmd
}

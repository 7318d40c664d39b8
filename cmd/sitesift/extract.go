package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/sitesift/internal/extract"
	"github.com/jmylchreest/sitesift/internal/service"
)

const noResultsHint = "No relevant information found for your query. Try a different description."

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		file        string
		instruction string
		output      string
		chunkSize   int
		export      bool
		dryRun      bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "extract [URL]",
		Short: "Extract information from a page with the configured model",
		Long: `Render URL (or read --file), split the text into chunks and ask the model
to apply --instruction to each one. Non-empty answers are printed as numbered
sections on stdout; progress and the run summary go to stderr.

Results are cached per (chunk, instruction) for 24 hours, so repeating a run
only calls the model for chunks that changed or previously came back empty.`,
		Example: `  sitesift extract https://example.com/contact --instruction "List every email address"
  sitesift extract --file page.txt --instruction "Summarize the pricing" --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pageURL string
			if len(args) == 1 {
				pageURL = args[0]
			}
			if pageURL == "" && file == "" {
				return errors.New("a URL or --file is required")
			}
			if strings.TrimSpace(instruction) == "" {
				return errors.New("--instruction is required")
			}

			var content string
			if file != "" {
				data, err := readInput(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(data)
				if strings.TrimSpace(content) == "" {
					return fmt.Errorf("%s is empty", file)
				}
			}

			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			svc, err := a.extractionService(ctx, content == "")
			if err != nil {
				return err
			}

			if dryRun {
				est, err := svc.Estimate(ctx, service.EstimateInput{
					URL:         pageURL,
					Content:     content,
					Instruction: instruction,
					ChunkSize:   chunkSize,
				})
				if err != nil {
					return err
				}
				printEstimate(cmd.OutOrStdout(), est)
				return nil
			}

			errOut := cmd.ErrOrStderr()
			var progress extract.ProgressFunc
			if !quiet {
				progress = func(index, total int) {
					fmt.Fprintf(errOut, "Processing chunk %d/%d\n", index, total)
				}
			}

			res, err := svc.Extract(ctx, service.ExtractInput{
				URL:         pageURL,
				Content:     content,
				Instruction: instruction,
				ChunkSize:   chunkSize,
				Export:      export,
				OnProgress:  progress,
			})
			if res == nil {
				return err
			}

			printSummary(errOut, res)
			if werr := writeResult(cmd.OutOrStdout(), output, res.Text); werr != nil {
				return errors.Join(err, werr)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "read text from a file instead of rendering a URL (- for stdin)")
	f.StringVarP(&instruction, "instruction", "i", "", "what to extract")
	f.StringVarP(&output, "output", "o", "", "write the result to a file instead of stdout")
	f.IntVar(&chunkSize, "chunk-size", 0, "maximum characters per chunk (default from config)")
	f.BoolVar(&export, "export", false, "write the result to the configured export target")
	f.BoolVar(&dryRun, "dry-run", false, "report how many model calls the run would make and stop")
	f.BoolVarP(&quiet, "quiet", "q", false, "do not print per-chunk progress")
	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeResult(stdout io.Writer, path, text string) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func printEstimate(w io.Writer, est *service.EstimateOutput) {
	fmt.Fprintf(w, "Content:        %s chars\n", thousands(est.ContentLength))
	fmt.Fprintf(w, "Chunks:         %d\n", est.Total)
	fmt.Fprintf(w, "Cached:         %d (%.0f%%)\n", est.Cached, est.CachePercent())
	fmt.Fprintf(w, "Model calls:    %d\n", est.APICalls)
	fmt.Fprintf(w, "Estimated time: %s\n", est.EstimatedDuration.Round(time.Second))
}

func printSummary(w io.Writer, res *service.ExtractOutput) {
	rep := res.Report
	if rep == nil {
		return
	}
	fmt.Fprintf(w, "Run %s: %d/%d chunks, %d sections, %d failed, %d cached, %d model calls in %s\n",
		res.RunID, rep.Processed, rep.Total, rep.Sections, rep.Failures, rep.CacheHits, rep.APICalls,
		rep.Elapsed.Round(time.Millisecond))
	if rep.StoppedAt > 0 {
		fmt.Fprintf(w, "Stopped at section %d: model quota exhausted. Rerun later; finished chunks are cached.\n", rep.StoppedAt)
	}
	if rep.Sections == 0 {
		fmt.Fprintln(w, noResultsHint)
	}
	if res.ExportLocation != "" {
		fmt.Fprintf(w, "Exported to %s\n", res.ExportLocation)
	}
}

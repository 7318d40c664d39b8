package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the model credentials with a one-line prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.extractionService(cmd.Context(), false)
			if err != nil {
				return err
			}
			res := svc.Check(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Provider: %s\nModel:    %s\n", res.Provider, res.Model)
			if !res.OK {
				return fmt.Errorf("model check failed (%s): %s", res.Category, res.Error)
			}
			fmt.Fprintf(out, "Reply:    %s\n", res.Reply)
			return nil
		},
	}
}

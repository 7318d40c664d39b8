package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/sitesift/internal/http/mw"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue an HS256 bearer token signed with a key derived from API_SECRET.
The server must run with the same API_SECRET to accept it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(a.cfg.JWTSigningKey) == 0 {
				return errors.New("API_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = a.cfg.TokenTTL
			}
			token, err := mw.IssueToken(a.cfg.JWTSigningKey, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "subject claim identifying the token holder")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config, 24h)")
	return cmd
}

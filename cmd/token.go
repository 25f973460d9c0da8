package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kalam-backend/internal/auth"
)

var flagTokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <userId>",
	Short: "Issue a relay token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		authn, err := auth.NewAuthenticator(os.Getenv("JWT_SECRET"))
		if err != nil {
			return fmt.Errorf("JWT_SECRET: %w", err)
		}
		tok, err := authn.Issue(args[0], flagTokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
}

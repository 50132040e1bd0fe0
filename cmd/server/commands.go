package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/pkg/utils"
	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation tick and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			result, runErr := a.reconciler.Run(cmd.Context(), manual)
			if err := writeJSON(result); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", true, "mark the tick as manually triggered in logs")
	return cmd
}

func newDedupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Remove duplicate published posts, keeping one per fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			result, err := a.duplicates.Deduplicate(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(result)
		},
	}
}

// newTokenCmd issues a session token for an operator or an upstream identity service.
func newTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed session token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			cfg := config.LoadConfig()

			token, err := utils.GenerateToken(cfg.SecretKey, strconv.FormatInt(userID, 10), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

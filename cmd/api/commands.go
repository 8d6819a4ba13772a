package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sitecms/api/internal/authpw"
	"sitecms/api/internal/config"
	"sitecms/api/internal/store"
)

// --- hash-password ---

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := authpw.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

// --- collection ---

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Inspect stored collections",
}

var collectionDumpCmd = &cobra.Command{
	Use:   "dump <name>",
	Short: "Print every record of a collection as JSON",
	Long: `Print every record of a collection as JSON.

Examples:
  sitecms collection dump quotes
  STORE_BACKEND=redis sitecms collection dump chat-history`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))

		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Collection(args[0]).ReadAll(cmd.Context())
		if errors.Is(err, store.ErrNoData) {
			records, err = []store.Record{}, nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// Package cli implements storectl, the operator tool for the storefront data directory.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/store"
)

type options struct {
	cfg     *config.Config
	dataDir string
}

// NewRootCmd builds the storectl command tree around cfg.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	opts := &options{cfg: cfg}

	root := &cobra.Command{
		Use:   "storectl",
		Short: "Korelia storefront maintenance",
		Long: `storectl works directly on the storefront data directory: it applies
schema migrations, re-runs the rewards backfill for a customer and grants
the admin role.

Stop the server before running commands that write data.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", cfg.DataDir, "Storefront data directory")

	root.AddCommand(newMigrateCmd(opts), newBackfillCmd(opts), newPromoteCmd(opts))
	return root
}

func (o *options) openStores() (*store.Stores, error) {
	s, err := store.Open(o.dataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir %s: %w", o.dataDir, err)
	}
	return s, nil
}

// Execute runs storectl and exits non-zero on failure.
func Execute(cfg *config.Config) {
	if err := NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

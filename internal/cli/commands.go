package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/services"
	"github.com/korelia/storefront-backend/internal/store"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openStores()
			if err != nil {
				return err
			}
			res, err := store.Migrate(s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Applied) == 0 {
				fmt.Fprintf(out, "schema already at version %d\n", res.To)
				return nil
			}
			fmt.Fprintf(out, "schema %d -> %d\n", res.From, res.To)
			for _, name := range res.Applied {
				fmt.Fprintf(out, "  applied: %s\n", name)
			}
			return nil
		},
	}
}

func newBackfillCmd(opts *options) *cobra.Command {
	var email, userID string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Credit unsettled paid orders placed under an email",
		Example: `  storectl backfill --email mina@example.com
  storectl backfill --email mina@example.com --user-id 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			s, err := opts.openStores()
			if err != nil {
				return err
			}
			// Backfill never issues discounts, so no gateway is needed.
			ledger := rewards.NewLedger(s, nil, opts.cfg.Currency)
			res, err := ledger.Backfill(email, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credited %d points across %d orders\n", res.Credited, res.Orders)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Customer email the orders were placed under")
	cmd.Flags().StringVar(&userID, "user-id", "", "Account to credit (defaults to the account registered under --email)")
	return cmd
}

func newPromoteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant the admin role to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStores()
			if err != nil {
				return err
			}
			auth := services.NewAuthService(opts.cfg, s.Users, nil, nil, nil)
			u, err := auth.PromoteAdmin(args[0])
			if err != nil {
				return fmt.Errorf("promote %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", u.Email, u.ID)
			return nil
		},
	}
}

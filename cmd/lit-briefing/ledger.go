package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/lit-briefing/internal/ledger"
	"github.com/ryosukesatoh/lit-briefing/internal/runner"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or reset the seen-id ledger",
	}
	cmd.AddCommand(newLedgerShowCmd(), newLedgerResetCmd())
	return cmd
}

func ledgerPath(cmd *cobra.Command) (string, error) {
	a, err := loadApp(cmd)
	if err != nil {
		return "", err
	}
	return ledger.Path(a.cfg.Output.Dir()), nil
}

func newLedgerShowCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last fetch date and the most recent ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ledgerPath(cmd)
			if err != nil {
				return err
			}
			l, err := ledger.Load(path)
			if err != nil {
				return fmt.Errorf("%w: %w", runner.ErrPersist, err)
			}

			out := cmd.OutOrStdout()
			lastFetch := l.LastFetch()
			if lastFetch == "" {
				lastFetch = "never"
			}
			fmt.Fprintf(out, "ledger:     %s\n", path)
			fmt.Fprintf(out, "last fetch: %s\n", lastFetch)
			fmt.Fprintf(out, "seen ids:   %d/%d\n", l.Len(), ledger.MaxSeenIDs)

			ids := l.IDs()
			if tail > 0 && len(ids) > tail {
				ids = ids[len(ids)-tail:]
			}
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 10, "number of most recent ids to print (0 for all)")
	return cmd
}

func newLedgerResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every reported id and the last fetch date",
		Long: `Reset empties the ledger. The next run covers the configured lookback
window and may report papers that earlier briefings already contained.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ledgerPath(cmd)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := askConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Reset "+path+"?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
					return nil
				}
			}
			if err := ledger.New().Save(path); err != nil {
				return fmt.Errorf("%w: %w", runner.ErrPersist, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Ledger reset: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

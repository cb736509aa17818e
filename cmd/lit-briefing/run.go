package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/lit-briefing/internal/runner"
)

func newRunCmd() *cobra.Command {
	var confirm, dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: `Run searches every enabled source once, writes the briefing into the output
directory and updates the ledger. With --dry-run the briefing is printed
instead and nothing on disk changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			r, err := a.runner(cmd)
			if err != nil {
				return err
			}

			if confirm {
				ok, err := askConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Fetch new literature now?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
					return nil
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := r.Run(ctx, runner.Options{DryRun: dryRun})
			a.flushMetrics()
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Fprint(cmd.OutOrStdout(), res.Markdown)
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d new papers (%s), saved to %s\n",
				res.Briefing.Total(), res.Window, res.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask for confirmation before contacting any source")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the briefing without writing files or the ledger")
	return cmd
}

// askConfirm prompts on w and reads a y/N answer from r. Anything other
// than y or yes declines.
func askConfirm(r io.Reader, w io.Writer, question string) (bool, error) {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

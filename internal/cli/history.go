package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/whylson/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [source]",
		Short: "Show recent compile attempts",
		Long: `Show compile attempts recorded in .whylson/history.db, newest first.
With a source, only that contract's attempts are shown.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ""
			if len(args) == 1 {
				source = args[0]
			}
			return runHistory(opts, source, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of attempts")

	return cmd
}

func runHistory(opts *HistoryOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	layout, _, err := loadLayout(opts.RootOptions)
	if err != nil {
		return reportError(formatter, err)
	}
	if source != "" {
		source = layout.Resolve(source)
	}

	var attempts []history.Attempt
	if _, err := os.Stat(layout.HistoryPath()); err == nil {
		journal, err := history.Open(layout.HistoryPath())
		if err != nil {
			_ = formatter.Error(ErrCodeHistory, err.Error(), nil)
			return WrapExitError(ExitFailure, "compile journal unavailable", err)
		}
		defer journal.Close()

		attempts, err = journal.Recent(commandContext(cmd), source, opts.Limit)
		if err != nil {
			_ = formatter.Error(ErrCodeHistory, err.Error(), nil)
			return WrapExitError(ExitFailure, "reading compile journal", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return reportError(formatter, err)
	}

	for i := range attempts {
		attempts[i].Source = relTo(layout, attempts[i].Source)
	}

	if formatter.JSON() {
		if attempts == nil {
			attempts = []history.Attempt{}
		}
		return formatter.Success(attempts)
	}

	if len(attempts) == 0 {
		return formatter.Success("No compile attempts recorded.")
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSOURCE\tMODE\tOUTCOME\tRUN")
	for _, a := range attempts {
		outcome := a.Outcome
		if a.RolledBack {
			outcome += " (rolled back)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.Seq, a.Source, a.Mode, outcome, a.RunID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if formatter.Verbose {
		for _, a := range attempts {
			if a.Diagnostic != "" {
				fmt.Fprintf(formatter.Writer, "\n#%d %s:\n%s\n", a.Seq, a.Source, a.Diagnostic)
			}
		}
	}
	return nil
}

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sfwa/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database   string
	ContractID string
	Target     string
	FailedOnly bool
	Limit      int
	Keep       int
}

// RunSummary is the JSON form of a recorded run.
type RunSummary struct {
	ID            string   `json:"id"`
	Seq           int64    `json:"seq"`
	ContractID    string   `json:"contractId"`
	Mode          string   `json:"mode"`
	Target        string   `json:"target"`
	OK            bool     `json:"ok"`
	Errors        []string `json:"errors"`
	InputDigest   string   `json:"inputDigest"`
	VerdictDigest string   `json:"verdictDigest"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded check runs",
		Long: `List runs recorded with check --record or suite --record, oldest first.

With --keep N the oldest runs are deleted first so that only the newest N
remain.

Example:
  sfwa history --db runs.db
  sfwa history --db runs.db --contract notes --failed --limit 10
  sfwa history --db runs.db --keep 100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "only runs for this contract id")
	cmd.Flags().StringVar(&opts.Target, "target", "", "only runs for this HTML path")
	cmd.Flags().BoolVar(&opts.FailedOnly, "failed", false, "only failing runs")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "most recent runs to show (0 = all)")
	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "prune to the newest N runs before listing (0 = keep all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := store.Open(opts.Database)
	if err != nil {
		return commandError(formatter, ErrCodeStore, "failed to open database", err, opts.Database)
	}
	defer st.Close()

	if opts.Keep > 0 {
		pruned, err := st.PruneRuns(ctx, opts.Keep)
		if err != nil {
			return commandError(formatter, ErrCodeStore, "failed to prune runs", err, opts.Database)
		}
		formatter.VerboseLog("Pruned %d run(s)", pruned)
	}

	runs, err := st.ListRuns(ctx, store.Filter{
		ContractID: opts.ContractID,
		Target:     opts.Target,
		FailedOnly: opts.FailedOnly,
		Limit:      opts.Limit,
	})
	if err != nil {
		return commandError(formatter, ErrCodeStore, "failed to list runs", err, opts.Database)
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = RunSummary{
			ID:            r.ID,
			Seq:           r.Seq,
			ContractID:    r.ContractID,
			Mode:          r.Mode,
			Target:        r.Target,
			OK:            r.OK,
			Errors:        r.Errors,
			InputDigest:   r.InputDigest,
			VerdictDigest: r.VerdictDigest,
		}
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRESULT\tCONTRACT\tMODE\tTARGET\tERRORS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", s.Seq, passFail(s.OK), s.ContractID, s.Mode, s.Target, len(s.Errors))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.Verbose {
		for _, s := range summaries {
			for _, e := range s.Errors {
				fmt.Fprintf(w, "  #%d %s\n", s.Seq, e)
			}
		}
	}
	return nil
}

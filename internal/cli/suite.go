package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sfwa/internal/store"
	"github.com/roach88/sfwa/internal/suite"
)

// SuiteOptions holds flags for the suite command.
type SuiteOptions struct {
	*RootOptions
	Parallel int
	Timeout  time.Duration
	Record   string
}

// CaseResult is the JSON form of one suite case.
type CaseResult struct {
	Target string   `json:"target"`
	HTML   string   `json:"html"`
	Mode   string   `json:"mode"`
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// SuiteResult is the JSON form of a suite run.
type SuiteResult struct {
	Name   string       `json:"name"`
	Cases  []CaseResult `json:"cases"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Total  int          `json:"total"`
}

// NewSuiteCommand creates the suite command.
func NewSuiteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuiteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suite <manifest>",
		Short: "Check every target listed in a suite manifest",
		Long: `Run the checks described by a YAML suite manifest.

Each target pairs a contract with a glob of HTML files (** is allowed).
Paths are resolved relative to the manifest. Files are checked in
parallel and reported in target, then file, order.

Example:
  sfwa suite suite.yaml
  sfwa suite suite.yaml --parallel 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 0, "concurrent checks (0 = number of CPUs)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-script budget, overriding the manifest")
	cmd.Flags().StringVar(&opts.Record, "record", "", "append every verdict to this SQLite history database")

	return cmd
}

func runSuite(opts *SuiteOptions, manifestPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	formatter.VerboseLog("Loading manifest: %s", manifestPath)
	m, err := suite.LoadManifest(manifestPath)
	if err != nil {
		return commandError(formatter, ErrCodeManifest, "failed to load manifest", err, manifestPath)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &suite.Runner{
		Parallel: opts.Parallel,
		Timeout:  opts.Timeout,
		Logger:   newLogger(opts.Verbose, cmd.ErrOrStderr()),
	}
	report, err := runner.Run(ctx, m)
	if err != nil {
		return WrapExitError(ExitCommandError, "suite interrupted", err)
	}

	if opts.Record != "" {
		if err := recordReport(ctx, opts.Record, report); err != nil {
			return commandError(formatter, ErrCodeStore, "failed to record runs", err, opts.Record)
		}
		formatter.VerboseLog("Recorded %d run(s) to %s", len(report.Cases), opts.Record)
	}

	result := toSuiteResult(report)
	if opts.Format == "json" {
		return outputSuiteJSON(cmd, result)
	}
	return outputSuiteText(cmd, result)
}

// recordReport stores the verdict of every case that could be checked.
func recordReport(ctx context.Context, dbPath string, report *suite.Report) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, c := range report.Cases {
		if c.Verdict == nil {
			continue
		}
		html, err := os.ReadFile(c.HTML)
		if err != nil {
			return fmt.Errorf("reread %s: %w", c.HTML, err)
		}
		if _, err := saveVerdict(ctx, st, c.HTML, html, c.Verdict); err != nil {
			return err
		}
	}
	return nil
}

func toSuiteResult(report *suite.Report) SuiteResult {
	result := SuiteResult{
		Name:   report.Name,
		Cases:  make([]CaseResult, 0, len(report.Cases)),
		Passed: report.Passed,
		Failed: report.Failed,
		Total:  len(report.Cases),
	}
	for _, c := range report.Cases {
		cr := CaseResult{Target: c.Target, HTML: c.HTML, Mode: string(c.Mode), OK: c.OK()}
		if c.Err != nil {
			cr.Error = c.Err.Error()
		}
		if c.Verdict != nil {
			cr.Errors = c.Verdict.Errors
		}
		result.Cases = append(result.Cases, cr)
	}
	return result
}

// outputSuiteJSON outputs the suite result as JSON.
func outputSuiteJSON(cmd *cobra.Command, result SuiteResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeFailed,
			Message: fmt.Sprintf("%d target(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return checksFailed(result.Failed, "target(s)")
	}
	return nil
}

// outputSuiteText outputs the suite result as text.
func outputSuiteText(cmd *cobra.Command, result SuiteResult) error {
	w := cmd.OutOrStdout()

	for _, c := range result.Cases {
		if c.OK {
			fmt.Fprintf(w, "✓ %s: %s\n", c.Target, c.HTML)
			continue
		}
		fmt.Fprintf(w, "✗ %s: %s\n", c.Target, c.HTML)
		if c.Error != "" {
			fmt.Fprintf(w, "  %s\n", c.Error)
		}
		for _, e := range c.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Suite Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return checksFailed(result.Failed, "target(s)")
	}

	fmt.Fprintln(w, "✓ All targets passed")
	return nil
}

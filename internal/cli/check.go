package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/harness"
	"github.com/roach88/sfwa/internal/sandbox"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Contract    string
	HTML        string
	Mode        string
	Timeout     time.Duration
	InitialHash string
	Record      string
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a target page against a contract",
		Long: `Check one single-file web app against an sfwa-abi-1 contract.

The static pass inspects the markup for required ids, selectors, data
attributes and script markers. The dynamic pass runs the inline scripts in
a simulated environment and compares what they did against the contract's
event and hash expectations.

Exit codes: 0 when the target conforms, 1 when any check fails, 2 when the
contract or target cannot be loaded.

Example:
  sfwa check --contract notes.abi.json --html index.html
  sfwa check --contract notes.abi.json --html index.html --mode static --format json
  sfwa check --contract notes.abi.json --html index.html --record runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Contract, "contract", "", "path to the contract JSON (required)")
	cmd.Flags().StringVar(&opts.HTML, "html", "", "path to the HTML file under test (required)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "all", "checks to run (all|static|dynamic)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", sandbox.DefaultTimeout, "per-script execution budget")
	cmd.Flags().StringVar(&opts.InitialHash, "initial-hash", "", "URL hash the target boots with")
	cmd.Flags().StringVar(&opts.Record, "record", "", "append the verdict to this SQLite history database")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("html")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	mode, err := harness.ParseMode(opts.Mode)
	if err != nil {
		return commandError(formatter, ErrCodeUsage, "invalid --mode", err, opts.Mode)
	}

	formatter.VerboseLog("Loading contract: %s", opts.Contract)
	c, err := contract.LoadFile(opts.Contract)
	if err != nil {
		return commandError(formatter, ErrCodeContract, "failed to load contract", err, opts.Contract)
	}

	formatter.VerboseLog("Reading target: %s", opts.HTML)
	html, err := os.ReadFile(opts.HTML)
	if err != nil {
		return commandError(formatter, ErrCodeInput, "failed to read HTML file", err, opts.HTML)
	}

	v := harness.Check(c, string(html), harness.Options{
		Mode:        mode,
		Timeout:     opts.Timeout,
		InitialHash: opts.InitialHash,
		Logger:      logger,
	})

	if opts.Record != "" {
		run, err := recordVerdict(cmd.Context(), opts.Record, opts.HTML, html, v)
		if err != nil {
			return commandError(formatter, ErrCodeStore, "failed to record run", err, opts.Record)
		}
		formatter.VerboseLog("Recorded run %s (seq %d)", run.ID, run.Seq)
	}

	if err := writeVerdict(cmd.OutOrStdout(), opts.Format, v); err != nil {
		return WrapExitError(ExitCommandError, "failed to write verdict", err)
	}

	if !v.OK {
		return checksFailed(len(v.Errors), "check(s)")
	}
	return nil
}

// writeVerdict renders v as indented JSON or as a sectioned text report.
func writeVerdict(w io.Writer, format string, v *harness.Verdict) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}

	var staticErrs, dynamicErrs []string
	for _, e := range v.Errors {
		if harness.IsDynamicError(e) {
			dynamicErrs = append(dynamicErrs, e)
		} else {
			staticErrs = append(staticErrs, e)
		}
	}

	name := v.Details.ContractID
	if name == "" {
		name = "(unnamed contract)"
	}
	fmt.Fprintf(w, "SFWA Harness Report: %s\n", name)
	mode := v.Details.Mode
	// An invalid mode runs neither pass; its error lands in the static section.
	if mode.RunsStatic() || len(staticErrs) > 0 {
		writeSection(w, "HTML:", staticErrs)
	}
	if mode.RunsDynamic() {
		writeSection(w, "JS:  ", dynamicErrs)
	}
	fmt.Fprintf(w, "Overall: %s\n", passFail(v.OK))
	return nil
}

func writeSection(w io.Writer, label string, errs []string) {
	fmt.Fprintf(w, "  %s %s\n", label, passFail(len(errs) == 0))
	for _, e := range errs {
		fmt.Fprintf(w, "    - %s\n", e)
	}
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Target satisfies its contract
	ExitFailure      = 1 // At least one check failed
	ExitCommandError = 2 // Usage error, unreadable input, invalid contract
)

// Error codes reported in JSON error responses.
const (
	ErrCodeUsage    = "E_USAGE"
	ErrCodeContract = "E_CONTRACT"
	ErrCodeInput    = "E_INPUT"
	ErrCodeManifest = "E_MANIFEST"
	ErrCodeStore    = "E_STORE"
	ErrCodeFailed   = "E_CHECK_FAILED"
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// Reported is set once the command has already told the user about the
	// failure (a FAIL report, or a formatted error), so Execute stays quiet.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an unreported ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an unreported ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// checksFailed is returned after a FAIL report has been written.
func checksFailed(n int, noun string) *ExitError {
	return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d %s failed", n, noun), Reported: true}
}

// GetExitCode maps a command error to a process exit code. Errors that are
// not ExitErrors come from cobra's flag and argument parsing, so they are
// usage errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// reported says whether the user has already seen err.
func reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter writes command results as text or as a CLIResponse envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose diagnostics; falls back to Writer
	Verbose   bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// JSON reports whether machine-readable output was requested.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// CLIResponse is the JSON envelope shared by validate, suite and history.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError describes a failed command in a CLIResponse.
type CLIError struct {
	Code    string      `json:"code"` // one of the ErrCode constants
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success writes data. In text mode data is printed with its default format.
func (f *OutputFormatter) Success(data interface{}) error {
	if !f.JSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
}

// Error writes a command failure. Text mode shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a progress line to the diagnostic writer when verbose,
// keeping JSON on Writer intact.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// commandError reports a failure to load or prepare inputs and returns the
// matching ExitCommandError.
func commandError(f *OutputFormatter, code, message string, err error, details interface{}) *ExitError {
	exitErr := WrapExitError(ExitCommandError, message, err)
	exitErr.Reported = true
	_ = f.Error(code, exitErr.Error(), details)
	return exitErr
}

// newLogger builds the diagnostic logger for a command. Verbose runs log at
// debug level to w; otherwise only warnings and errors are written.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

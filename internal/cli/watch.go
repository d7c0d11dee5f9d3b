package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/harness"
	"github.com/roach88/sfwa/internal/sandbox"
)

// DefaultDebounce is how long watch waits for writes to settle before re-checking.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Contract    string
	HTML        string
	Mode        string
	Timeout     time.Duration
	InitialHash string
	Debounce    time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-check a target whenever it or its contract changes",
		Long: `Check a target, then check it again every time the HTML file or the
contract is saved. Runs until interrupted.

Example:
  sfwa watch --contract notes.abi.json --html index.html`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Contract, "contract", "", "path to the contract JSON (required)")
	cmd.Flags().StringVar(&opts.HTML, "html", "", "path to the HTML file under test (required)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "all", "checks to run (all|static|dynamic)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", sandbox.DefaultTimeout, "per-script execution budget")
	cmd.Flags().StringVar(&opts.InitialHash, "initial-hash", "", "URL hash the target boots with")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", DefaultDebounce, "quiet period before re-checking")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("html")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	mode, err := harness.ParseMode(opts.Mode)
	if err != nil {
		return commandError(formatter, ErrCodeUsage, "invalid --mode", err, opts.Mode)
	}

	watched := make(map[string]bool)
	for _, p := range []string{opts.Contract, opts.HTML} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return commandError(formatter, ErrCodeInput, "failed to resolve path", err, p)
		}
		watched[abs] = true
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start file watcher", err)
	}
	defer watcher.Close()

	// Watch directories rather than files so editors that save by rename
	// keep triggering events.
	dirs := make(map[string]bool)
	for p := range watched {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return commandError(formatter, ErrCodeInput, "failed to watch directory", err, d)
		}
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping watch", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	check := func() {
		watchCheck(opts, mode, formatter, logger)
	}

	check()
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watchLoop(ctx, watcher, watched, debounce, check, logger)
	return nil
}

// watchCheck runs one check and prints its verdict. Load errors are
// reported and the watch continues, since the next save may fix them.
func watchCheck(opts *WatchOptions, mode harness.Mode, formatter *OutputFormatter, logger *slog.Logger) {
	w := formatter.Writer
	if opts.Format != "json" {
		fmt.Fprintf(w, "--- %s ---\n", time.Now().Format(time.TimeOnly))
	}

	c, err := contract.LoadFile(opts.Contract)
	if err != nil {
		_ = formatter.Error(ErrCodeContract, err.Error(), opts.Contract)
		return
	}
	html, err := os.ReadFile(opts.HTML)
	if err != nil {
		_ = formatter.Error(ErrCodeInput, err.Error(), opts.HTML)
		return
	}

	v := harness.Check(c, string(html), harness.Options{
		Mode:        mode,
		Timeout:     opts.Timeout,
		InitialHash: opts.InitialHash,
		Logger:      logger,
	})
	if err := writeVerdict(w, opts.Format, v); err != nil {
		logger.Error("failed to write verdict", "error", err)
	}
}

// watchLoop calls run once writes to any watched path have been quiet for
// debounce. It returns when ctx is done or the watcher closes.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, watched map[string]bool, debounce time.Duration, run func(), logger *slog.Logger) {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevant(event, watched) {
				continue
			}
			logger.Debug("file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)
		case <-timer.C:
			run()
		}
	}
}

func relevant(event fsnotify.Event, watched map[string]bool) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return watched[abs]
}

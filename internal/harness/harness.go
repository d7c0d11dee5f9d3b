package harness

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/extract"
	"github.com/roach88/sfwa/internal/sandbox"
	"github.com/roach88/sfwa/internal/shim"
	"github.com/roach88/sfwa/internal/static"
)

// Options configures a check.
type Options struct {
	// Mode selects the passes to run. Empty means ModeAll.
	Mode Mode

	// Timeout is the per-script execution budget. Zero means sandbox.DefaultTimeout.
	Timeout time.Duration

	// InitialHash and Path describe the URL the target is booted from.
	InitialHash string
	Path        string

	Logger *slog.Logger
}

// Check evaluates html against c and returns the aggregated verdict.
//
// Target-side problems never produce a Go error: missing elements, thrown
// exceptions and timeouts all become entries in Verdict.Errors.
func Check(c *contract.Contract, html string, opts Options) *Verdict {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		v := NewVerdict(c, opts.Mode)
		v.AddError(err.Error())
		return v
	}
	v := NewVerdict(c, mode)
	scripts := extract.InlineScripts(html)

	if mode.RunsStatic() {
		findings := static.Check(c, html, scripts)
		v.Details.Details = &findings.Details
		for _, e := range findings.Errors {
			v.AddError(e)
		}
	}

	if mode.RunsDynamic() {
		env := shim.New(c.RequiredIDs,
			shim.WithInitialHash(opts.InitialHash),
			shim.WithPath(opts.Path),
			shim.WithLogger(logger),
		)
		x := &sandbox.Executor{Timeout: opts.Timeout, Logger: logger}
		obs := x.Run(scripts, env)

		for _, f := range obs.Failures {
			v.AddError(executionFailedLine + f)
		}
		missing, unmet := EvaluateExpectations(c, obs)
		for _, err := range unmet {
			v.AddError(err.Error())
		}

		v.Details.Dynamic = &Dynamic{
			ScriptsExecuted: obs.ScriptsExecuted,
			HashReads:       obs.HashReads,
			HashWrites:      obs.HashWrites,
			WriteMethods:    obs.SortedWriteMethods(),
			Events:          obs.Events,
			MissingEvents:   missing,
			Failures:        obs.Failures,
			FinalHash:       env.Hash(),
		}
	}

	logger.Debug("check complete",
		"contract", c.ContractID,
		"mode", mode,
		"scripts", len(scripts),
		"ok", v.OK,
		"errors", len(v.Errors))
	return v
}

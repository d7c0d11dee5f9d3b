// Package suite checks many targets described by a YAML manifest.
package suite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/harness"
)

// Case is the outcome of checking one HTML file against one target's contract.
type Case struct {
	Target   string
	Contract string
	HTML     string
	Mode     harness.Mode

	// Verdict is nil when the case could not be checked at all; Err says why.
	Verdict *harness.Verdict
	Err     error
}

// OK reports whether the case was checked and passed.
func (c Case) OK() bool {
	return c.Err == nil && c.Verdict != nil && c.Verdict.OK
}

// Report aggregates a suite run.
type Report struct {
	Name   string
	Cases  []Case
	Passed int
	Failed int
}

// OK reports whether every case passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Runner executes manifests.
type Runner struct {
	// Parallel bounds concurrent checks. Zero means runtime.NumCPU().
	Parallel int

	// Timeout overrides the manifest's per-script budget when non-zero.
	Timeout time.Duration

	Logger *slog.Logger
}

type job struct {
	target   Target
	contract *contract.Contract
	mode     harness.Mode
	path     string
	err      error
}

// Run expands every target's glob and checks each matching file. Target
// problems (bad contract, no matches, unreadable file) become failed cases;
// only cancellation of ctx returns an error.
func (r *Runner) Run(ctx context.Context, m *Manifest) (*Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = m.TimeoutDuration()
	}

	jobs := r.expand(m)
	cases := make([]Case, len(jobs))

	limit := r.Parallel
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, j := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			cases[i] = runJob(j, timeout, logger)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(cases, func(a, b int) bool {
		if cases[a].Target != cases[b].Target {
			return cases[a].Target < cases[b].Target
		}
		return cases[a].HTML < cases[b].HTML
	})

	report := &Report{Name: m.Name, Cases: cases}
	for _, c := range cases {
		if c.OK() {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	logger.Info("suite complete", "suite", m.Name, "passed", report.Passed, "failed", report.Failed)
	return report, nil
}

// expand loads each target's contract once and pairs it with every file its
// glob matches.
func (r *Runner) expand(m *Manifest) []job {
	var jobs []job
	for _, t := range m.Targets {
		mode, _ := harness.ParseMode(t.Mode)
		contractPath := m.resolve(t.Contract)
		pattern := m.resolve(t.HTML)

		c, err := contract.LoadFile(contractPath)
		if err != nil {
			jobs = append(jobs, job{target: t, mode: mode, path: pattern, err: fmt.Errorf("contract: %w", err)})
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			jobs = append(jobs, job{target: t, mode: mode, path: pattern, err: fmt.Errorf("glob error: %w", err)})
			continue
		}
		if len(matches) == 0 {
			jobs = append(jobs, job{target: t, mode: mode, path: pattern, err: fmt.Errorf("no files match pattern: %s", t.HTML)})
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			jobs = append(jobs, job{target: t, contract: c, mode: mode, path: path})
		}
	}
	return jobs
}

func runJob(j job, timeout time.Duration, logger *slog.Logger) Case {
	c := Case{
		Target:   j.target.Name,
		Contract: j.target.Contract,
		HTML:     j.path,
		Mode:     j.mode,
		Err:      j.err,
	}
	if c.Err != nil {
		return c
	}

	page, err := os.ReadFile(j.path)
	if err != nil {
		c.Err = fmt.Errorf("failed to read html file: %w", err)
		return c
	}

	c.Verdict = harness.Check(j.contract, string(page), harness.Options{
		Mode:        j.mode,
		Timeout:     timeout,
		InitialHash: j.target.InitialHash,
		Logger:      logger,
	})
	logger.Debug("case checked", "target", c.Target, "html", c.HTML, "ok", c.Verdict.OK)
	return c
}

package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/shim"
)

// Contract fields that dynamic expectations are reported under.
const (
	ExpectEvents        = "js.requires.events"
	ExpectReadsHash     = "js.requires.hashIO.readsLocationHash"
	ExpectWritesHash    = "js.requires.hashIO.writesHash"
	ExpectWriteMethods  = "js.requires.hashIO.writeMethods"
	ExpectWritesOnBoot  = "state.canonicalization.writesOnBoot"
	executionFailedLine = "Script execution failed: "
)

// ExpectationError is a dynamic expectation the target did not meet.
type ExpectationError struct {
	Field    string // contract field that declared the expectation
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("Expectation failed: %s (expected %s, got %s)", e.Field, e.Expected, e.Actual)
}

// IsDynamicError reports whether a verdict error line came from the
// execution pass rather than the markup pass.
func IsDynamicError(line string) bool {
	return strings.HasPrefix(line, executionFailedLine) || strings.HasPrefix(line, "Expectation failed: ")
}

// EvaluateExpectations compares an observation against the contract's
// dynamic requirements. Every expectation is evaluated; the returned slice
// holds one error per unmet expectation, in a fixed order.
func EvaluateExpectations(c *contract.Contract, obs *shim.Observation) ([]contract.EventRequirement, []error) {
	var errs []error

	missing := []contract.EventRequirement{}
	for _, req := range c.RequiredEvents {
		if !obs.HasEvent(req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = m.String()
		}
		errs = append(errs, &ExpectationError{
			Field:    ExpectEvents,
			Expected: "listeners for " + strings.Join(names, ", "),
			Actual:   fmt.Sprintf("%d of %d registered", len(c.RequiredEvents)-len(missing), len(c.RequiredEvents)),
		})
	}

	if c.HashIO.MustReadHash && obs.HashReads == 0 {
		errs = append(errs, &ExpectationError{
			Field:    ExpectReadsHash,
			Expected: "at least one location.hash read",
			Actual:   "0 reads",
		})
	}

	if c.HashIO.MustWriteHash && obs.HashWrites == 0 {
		errs = append(errs, &ExpectationError{
			Field:    ExpectWritesHash,
			Expected: "at least one hash write",
			Actual:   "0 writes",
		})
	}

	var absent []string
	for _, m := range c.HashIO.RequiredWriteMethods {
		if !obs.UsedWriteMethod(m) {
			absent = append(absent, m)
		}
	}
	if len(absent) > 0 {
		used := "none"
		if methods := obs.SortedWriteMethods(); len(methods) > 0 {
			used = strings.Join(methods, ", ")
		}
		errs = append(errs, &ExpectationError{
			Field:    ExpectWriteMethods,
			Expected: "write methods " + strings.Join(c.HashIO.RequiredWriteMethods, ", "),
			Actual:   used,
		})
	}

	if c.WritesOnBoot && obs.HashWrites == 0 {
		errs = append(errs, &ExpectationError{
			Field:    ExpectWritesOnBoot,
			Expected: "a hash write during boot",
			Actual:   "0 writes",
		})
	}

	return missing, errs
}

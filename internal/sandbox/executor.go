// Package sandbox runs a target's inline scripts against a shim environment.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/sfwa/internal/shim"
)

// DefaultTimeout bounds each script's execution.
const DefaultTimeout = time.Second

// Executor evaluates scripts in a fresh goja runtime per Run.
type Executor struct {
	// Timeout is the per-script budget. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run installs env on a new runtime and evaluates scripts in order.
//
// A script that throws or exceeds its budget is abandoned and recorded as a
// failure; the remaining scripts still run so every failure is reported.
// Nothing from the runtime outlives the call.
func (x *Executor) Run(scripts []string, env *shim.Environment) *shim.Observation {
	obs := env.Observation()
	vm := goja.New()
	if err := env.Install(vm); err != nil {
		obs.Failures = append(obs.Failures, fmt.Sprintf("environment: %v", err))
		return obs
	}

	budget := x.Timeout
	if budget <= 0 {
		budget = DefaultTimeout
	}
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for i, src := range scripts {
		obs.ScriptsExecuted++
		if err := runScript(vm, i, src, budget); err != nil {
			logger.Debug("script failed", "index", i, "error", err)
			obs.Failures = append(obs.Failures, fmt.Sprintf("script[%d]: %v", i, err))
		}
	}
	return obs
}

func runScript(vm *goja.Runtime, index int, src string, budget time.Duration) (err error) {
	fired := make(chan struct{})
	timer := time.AfterFunc(budget, func() {
		vm.Interrupt("timeout")
		close(fired)
	})
	defer func() {
		if !timer.Stop() {
			<-fired
		}
		vm.ClearInterrupt()
		if r := recover(); r != nil {
			err = fmt.Errorf("host panic: %v", r)
		}
	}()

	_, err = vm.RunScript(fmt.Sprintf("inline-script-%d.js", index), src)
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("timed out after %s", budget)
	}
	return err
}

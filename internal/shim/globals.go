package shim

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// installIncidentals adds the timer, encoding and console globals that are
// implemented in Go. None of them record observations.
func (e *Environment) installIncidentals(global *goja.Object) error {
	vm := e.vm

	timer := func(goja.FunctionCall) goja.Value {
		e.nextTimerID++
		return vm.ToValue(e.nextTimerID)
	}
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug", "trace"} {
		if err := console.Set(level, e.consoleFunc(level)); err != nil {
			return fmt.Errorf("failed to install console.%s: %w", level, err)
		}
	}
	for _, name := range []string{"group", "groupEnd", "table", "time", "timeEnd", "assert", "clear"} {
		if err := console.Set(name, noop); err != nil {
			return fmt.Errorf("failed to install console.%s: %w", name, err)
		}
	}

	set := map[string]any{
		"setTimeout":            timer,
		"setInterval":           timer,
		"requestAnimationFrame": timer,
		"requestIdleCallback":   timer,
		"clearTimeout":          noop,
		"clearInterval":         noop,
		"cancelAnimationFrame":  noop,
		"cancelIdleCallback":    noop,
		"btoa": func(call goja.FunctionCall) goja.Value {
			out, err := btoa(call.Argument(0).String())
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(out)
		},
		"atob": func(call goja.FunctionCall) goja.Value {
			out, err := atob(call.Argument(0).String())
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(out)
		},
		"console": console,
	}
	for name, v := range set {
		if err := global.Set(name, v); err != nil {
			return fmt.Errorf("failed to install %s: %w", name, err)
		}
	}
	return nil
}

func (e *Environment) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		e.logger.Debug("console", "level", level, "message", strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// btoa encodes a binary string. Code units above 0xFF are rejected the way
// browsers reject them.
func btoa(s string) (string, error) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return "", fmt.Errorf("InvalidCharacterError: btoa: character %U is outside the Latin1 range", r)
		}
		buf = append(buf, byte(r))
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// atob decodes base64 into a binary string, one code unit per byte.
func atob(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return "", fmt.Errorf("InvalidCharacterError: atob: invalid base64 input")
		}
	}
	var b strings.Builder
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String(), nil
}

package shim

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/sfwa/internal/contract"
)

//go:embed prelude.js
var preludeJS string

const (
	defaultOrigin = "http://localhost"
	defaultPath   = "/index.html"
)

// ErrAlreadyInstalled is returned when an Environment is bound to a second runtime.
var ErrAlreadyInstalled = errors.New("environment already installed")

// Option configures an Environment.
type Option func(*Environment)

// WithInitialHash boots the target as if it had been opened from a deep link.
func WithInitialHash(hash string) Option {
	return func(e *Environment) {
		e.hash = normalizeHash(hash)
	}
}

// WithPath sets location.pathname.
func WithPath(path string) Option {
	return func(e *Environment) {
		if path == "" {
			return
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		e.path = path
	}
}

// WithLogger routes console output to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Environment) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Environment is the minimal browser surface a target sees at boot.
//
// Only the required element ids exist; every other lookup returns null, so a
// script that depends on an undeclared element fails loudly. Hash reads and
// writes, history writes, and window/document listener registrations are
// recorded into the Observation. The clock is frozen at the epoch and
// Math.random is seeded. Everything else is inert.
type Environment struct {
	requiredIDs []string
	hash        string
	path        string
	epoch       time.Time
	logger      *slog.Logger

	obs          *Observation
	vm           *goja.Runtime
	elements     map[string]*goja.Object
	makeElement  goja.Callable
	historyState goja.Value
	historyLen   int
	nextTimerID  int64
}

// New creates an Environment whose element registry holds exactly requiredIDs.
func New(requiredIDs []string, opts ...Option) *Environment {
	e := &Environment{
		requiredIDs: append([]string(nil), requiredIDs...),
		path:        defaultPath,
		epoch:       DefaultEpoch,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		obs:         NewObservation(),
		historyLen:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observation returns the record of everything the target has done so far.
func (e *Environment) Observation() *Observation {
	return e.obs
}

// Hash returns the current shared fragment value ("" or "#...").
func (e *Environment) Hash() string {
	return e.hash
}

// Install binds the environment's globals onto vm. An Environment can be
// installed once.
func (e *Environment) Install(vm *goja.Runtime) error {
	if e.vm != nil {
		return ErrAlreadyInstalled
	}
	e.vm = vm
	e.historyState = goja.Null()
	vm.SetTimeSource(frozenClock(e.epoch))
	vm.SetRandSource(seededRandom())

	prelude, err := vm.RunScript("sfwa-prelude.js", preludeJS)
	if err != nil {
		return fmt.Errorf("failed to load prelude: %w", err)
	}
	preludeFn, ok := goja.AssertFunction(prelude)
	if !ok {
		return errors.New("prelude did not evaluate to a function")
	}
	global := vm.GlobalObject()
	helpers, err := preludeFn(goja.Undefined(), global)
	if err != nil {
		return fmt.Errorf("failed to run prelude: %w", err)
	}
	makeElement, ok := goja.AssertFunction(helpers.ToObject(vm).Get("makeElement"))
	if !ok {
		return errors.New("prelude did not export makeElement")
	}
	e.makeElement = makeElement

	e.elements = make(map[string]*goja.Object, len(e.requiredIDs))
	for _, id := range e.requiredIDs {
		el, err := e.newElement(id, "div")
		if err != nil {
			return err
		}
		e.elements[id] = el
	}

	location, err := e.newLocation()
	if err != nil {
		return err
	}
	document, err := e.newDocument(location)
	if err != nil {
		return err
	}
	history, err := e.newHistory()
	if err != nil {
		return err
	}

	set := map[string]any{
		"window":              global,
		"self":                global,
		"globalThis":          global,
		"document":            document,
		"location":            location,
		"history":             history,
		"addEventListener":    e.listenerRecorder(contract.TargetWindow),
		"removeEventListener": noop,
		"dispatchEvent":       e.returnTrue,
	}
	for name, v := range set {
		if err := global.Set(name, v); err != nil {
			return fmt.Errorf("failed to install %s: %w", name, err)
		}
	}
	return e.installIncidentals(global)
}

func (e *Environment) newElement(id, tag string) (*goja.Object, error) {
	var idArg goja.Value = goja.Undefined()
	if id != "" {
		idArg = e.vm.ToValue(id)
	}
	v, err := e.makeElement(goja.Undefined(), idArg, e.vm.ToValue(tag))
	if err != nil {
		return nil, fmt.Errorf("failed to create element %q: %w", id, err)
	}
	return v.ToObject(e.vm), nil
}

func (e *Environment) listenerRecorder(target string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			e.obs.recordEvent(target, call.Argument(0).String())
		}
		return goja.Undefined()
	}
}

func (e *Environment) newDocument(location *goja.Object) (*goja.Object, error) {
	vm := e.vm
	doc := vm.NewObject()

	body, err := e.newElement("", "body")
	if err != nil {
		return nil, err
	}
	head, err := e.newElement("", "head")
	if err != nil {
		return nil, err
	}
	root, err := e.newElement("", "html")
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"readyState":          "loading",
		"visibilityState":     "visible",
		"hidden":              false,
		"title":               "",
		"cookie":              "",
		"body":                body,
		"head":                head,
		"documentElement":     root,
		"location":            location,
		"addEventListener":    e.listenerRecorder(contract.TargetDocument),
		"removeEventListener": noop,
		"dispatchEvent":       e.returnTrue,
		"getElementById": func(call goja.FunctionCall) goja.Value {
			return e.lookup(call.Argument(0).String())
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			if id, ok := idSelector(call.Argument(0).String()); ok {
				return e.lookup(id)
			}
			return goja.Null()
		},
		"querySelectorAll":       emptyList(vm),
		"getElementsByClassName": emptyList(vm),
		"getElementsByTagName":   emptyList(vm),
		"getElementsByName":      emptyList(vm),
		"createElement": func(call goja.FunctionCall) goja.Value {
			el, err := e.newElement("", call.Argument(0).String())
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return el
		},
		"createElementNS": func(call goja.FunctionCall) goja.Value {
			el, err := e.newElement("", call.Argument(1).String())
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return el
		},
		"createDocumentFragment": func(goja.FunctionCall) goja.Value {
			el, err := e.newElement("", "#document-fragment")
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return el
		},
		"createTextNode": func(call goja.FunctionCall) goja.Value {
			node := vm.NewObject()
			_ = node.Set("nodeType", 3)
			_ = node.Set("textContent", call.Argument(0).String())
			return node
		},
	}
	for name, v := range props {
		if err := doc.Set(name, v); err != nil {
			return nil, fmt.Errorf("failed to install document.%s: %w", name, err)
		}
	}
	return doc, nil
}

func (e *Environment) lookup(id string) goja.Value {
	if el, ok := e.elements[id]; ok {
		return el
	}
	return goja.Null()
}

func (e *Environment) newLocation() (*goja.Object, error) {
	vm := e.vm
	loc := vm.NewObject()

	err := loc.DefineAccessorProperty("hash",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			e.obs.HashReads++
			return vm.ToValue(e.hash)
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			e.hash = normalizeHash(call.Argument(0).String())
			e.obs.recordWrite(contract.WriteMethodHash)
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	if err != nil {
		return nil, err
	}

	// href exposes the hash without counting a read; assigning it only
	// moves the fragment.
	err = loc.DefineAccessorProperty("href",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(e.href())
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if frag, ok := fragmentOf(call.Argument(0).String()); ok {
				e.hash = frag
			}
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"origin":   defaultOrigin,
		"protocol": "http:",
		"host":     "localhost",
		"hostname": "localhost",
		"port":     "",
		"pathname": e.path,
		"search":   "",
		"assign":   noop,
		"replace":  noop,
		"reload":   noop,
		"toString": func(goja.FunctionCall) goja.Value { return vm.ToValue(e.href()) },
	}
	for name, v := range props {
		if err := loc.Set(name, v); err != nil {
			return nil, fmt.Errorf("failed to install location.%s: %w", name, err)
		}
	}
	return loc, nil
}

func (e *Environment) href() string {
	return defaultOrigin + e.path + e.hash
}

func (e *Environment) newHistory() (*goja.Object, error) {
	vm := e.vm
	hist := vm.NewObject()

	err := hist.DefineAccessorProperty("state",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return e.historyState }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	if err != nil {
		return nil, err
	}
	err = hist.DefineAccessorProperty("length",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(e.historyLen) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"replaceState": func(call goja.FunctionCall) goja.Value {
			e.historyWrite(contract.WriteMethodReplaceState, call)
			return goja.Undefined()
		},
		"pushState": func(call goja.FunctionCall) goja.Value {
			e.historyLen++
			e.historyWrite(contract.WriteMethodPushState, call)
			return goja.Undefined()
		},
		"back":              noop,
		"forward":           noop,
		"go":                noop,
		"scrollRestoration": "auto",
	}
	for name, v := range props {
		if err := hist.Set(name, v); err != nil {
			return nil, fmt.Errorf("failed to install history.%s: %w", name, err)
		}
	}
	return hist, nil
}

func (e *Environment) historyWrite(method string, call goja.FunctionCall) {
	e.obs.recordWrite(method)
	e.historyState = call.Argument(0)
	if url := call.Argument(2); !goja.IsUndefined(url) && !goja.IsNull(url) {
		if frag, ok := fragmentOf(url.String()); ok {
			e.hash = frag
		}
	}
}

// normalizeHash returns the value location.hash reads back after assignment.
func normalizeHash(v string) string {
	v = strings.TrimPrefix(v, "#")
	if v == "" {
		return ""
	}
	return "#" + v
}

// fragmentOf extracts the normalized fragment of a URL, if it has one.
func fragmentOf(url string) (string, bool) {
	i := strings.IndexByte(url, '#')
	if i < 0 {
		return "", false
	}
	return normalizeHash(url[i:]), true
}

// idSelector recognizes a plain "#id" selector.
func idSelector(sel string) (string, bool) {
	sel = strings.TrimSpace(sel)
	if len(sel) < 2 || sel[0] != '#' {
		return "", false
	}
	id := sel[1:]
	if strings.ContainsAny(id, " .#[]:>+~,*") {
		return "", false
	}
	return id, true
}

func noop(goja.FunctionCall) goja.Value { return goja.Undefined() }

func (e *Environment) returnTrue(goja.FunctionCall) goja.Value { return e.vm.ToValue(true) }

func emptyList(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		return vm.NewArray()
	}
}

package shim

import (
	"sort"

	"github.com/roach88/sfwa/internal/contract"
)

// EventRegistration is one recorded addEventListener call on window or document.
type EventRegistration struct {
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Observation accumulates what the target did while its scripts ran.
// A fresh Observation is created per run. Only shim callbacks and the
// executor write to it.
type Observation struct {
	HashReads       int
	HashWrites      int
	WriteMethods    map[string]int
	Events          []EventRegistration
	Failures        []string
	ScriptsExecuted int
}

// NewObservation returns an empty observation ready for a run.
func NewObservation() *Observation {
	return &Observation{
		WriteMethods: make(map[string]int),
		Events:       []EventRegistration{},
		Failures:     []string{},
	}
}

// SortedWriteMethods returns the distinct write methods used, in ascending order.
func (o *Observation) SortedWriteMethods() []string {
	methods := make([]string, 0, len(o.WriteMethods))
	for m := range o.WriteMethods {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// HasEvent reports whether a listener of the given type was registered on target.
func (o *Observation) HasEvent(req contract.EventRequirement) bool {
	for _, ev := range o.Events {
		if ev.Target == req.Target && ev.Type == req.Type {
			return true
		}
	}
	return false
}

// UsedWriteMethod reports whether method was used at least once.
func (o *Observation) UsedWriteMethod(method string) bool {
	return o.WriteMethods[method] > 0
}

func (o *Observation) recordWrite(method string) {
	o.HashWrites++
	o.WriteMethods[method]++
}

func (o *Observation) recordEvent(target, typ string) {
	o.Events = append(o.Events, EventRegistration{Target: target, Type: typ})
}

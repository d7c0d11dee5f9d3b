package harness

import (
	"github.com/roach88/sfwa/internal/canon"
	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/shim"
	"github.com/roach88/sfwa/internal/static"
)

// Verdict is the outcome of checking one target against one contract.
type Verdict struct {
	// OK is true only when every sub-check passed.
	OK bool `json:"ok"`

	// Errors lists every failing sub-check in evaluation order: static rules
	// first, then execution failures, then dynamic expectations.
	Errors []string `json:"errors"`

	Details Details `json:"details"`
}

// Details is the diagnostic payload. The static and dynamic sections are
// flattened into one object and present only when their pass ran.
type Details struct {
	ABI        string `json:"abi"`
	ContractID string `json:"contractId,omitempty"`
	Mode       Mode   `json:"mode"`

	*static.Details
	*Dynamic
}

// Dynamic reports what the target did during boot.
type Dynamic struct {
	ScriptsExecuted int                         `json:"scriptsExecuted"`
	HashReads       int                         `json:"hashReads"`
	HashWrites      int                         `json:"hashWrites"`
	WriteMethods    []string                    `json:"writeMethods"`
	Events          []shim.EventRegistration    `json:"events"`
	MissingEvents   []contract.EventRequirement `json:"missingEvents"`
	Failures        []string                    `json:"failures"`
	FinalHash       string                      `json:"finalHash"`
}

// NewVerdict returns a passing verdict with empty, non-nil collections.
func NewVerdict(c *contract.Contract, mode Mode) *Verdict {
	return &Verdict{
		OK:     true,
		Errors: []string{},
		Details: Details{
			ABI:        c.ABI,
			ContractID: c.ContractID,
			Mode:       mode,
		},
	}
}

// AddError records a failing sub-check and marks the verdict as failed.
func (v *Verdict) AddError(msg string) {
	v.Errors = append(v.Errors, msg)
	v.OK = false
}

// Canonical returns the RFC 8785 encoding of the verdict.
func (v *Verdict) Canonical() ([]byte, error) {
	return canon.Marshal(v)
}

// Digest returns the domain-separated SHA-256 of the canonical encoding.
func (v *Verdict) Digest() (string, error) {
	data, err := v.Canonical()
	if err != nil {
		return "", err
	}
	return canon.HashWithDomain(canon.DomainVerdict, data), nil
}

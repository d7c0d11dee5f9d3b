package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// ABIVersion is the only contract ABI tag this harness understands.
const ABIVersion = "sfwa-abi-1"

// Event registration targets.
const (
	TargetDocument = "document"
	TargetWindow   = "window"
)

// Recognized hash-mutation idioms.
const (
	WriteMethodHash         = "location.hash"
	WriteMethodReplaceState = "history.replaceState"
	WriteMethodPushState    = "history.pushState"
)

// writeMethodAliases maps shorthand spellings found in hand-written contracts
// to the canonical write-method names.
var writeMethodAliases = map[string]string{
	"hash":                 WriteMethodHash,
	"location.hash":        WriteMethodHash,
	"replaceState":         WriteMethodReplaceState,
	"history.replaceState": WriteMethodReplaceState,
	"pushState":            WriteMethodPushState,
	"history.pushState":    WriteMethodPushState,
}

// Contract is the parsed form of an ABI contract document.
// The harness treats a loaded Contract as read-only.
type Contract struct {
	ABI        string
	ContractID string

	// RequiredIDs lists element identifiers present at parse time.
	// Union of html.requires.ids and js.requires.domIds, first occurrence wins.
	RequiredIDs []string

	// RequiredSelectors lists structural selector kinds (see static.SupportedSelectors).
	RequiredSelectors []string

	RequiredDataAttributes []DataAttributeRequirement

	// RequiredEvents is ordered as declared in the document.
	RequiredEvents []EventRequirement

	HashIO HashIOExpectations

	// RequiredMarkers are literals that must appear in the combined script source.
	RequiredMarkers []string

	// WritesOnBoot requires at least one hash write during initial execution.
	WritesOnBoot bool
}

// EventRequirement is a (target, type) listener registration the target must perform.
type EventRequirement struct {
	Target string `json:"target"`
	Type   string `json:"type"`
}

// String renders the requirement as target:type.
func (e EventRequirement) String() string {
	return e.Target + ":" + e.Type
}

// HashIOExpectations describes required URL-hash behavior.
type HashIOExpectations struct {
	MustReadHash         bool
	MustWriteHash        bool
	RequiredWriteMethods []string
}

// DataAttributeRequirement requires an element carrying Name=Value for each value.
// Requirements with no values are not enforced.
type DataAttributeRequirement struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// IsVacuous reports whether the contract imposes no requirement at all.
func (c *Contract) IsVacuous() bool {
	return len(c.RequiredIDs) == 0 &&
		len(c.RequiredSelectors) == 0 &&
		len(c.RequiredDataAttributes) == 0 &&
		len(c.RequiredEvents) == 0 &&
		len(c.RequiredMarkers) == 0 &&
		!c.HashIO.MustReadHash &&
		!c.HashIO.MustWriteHash &&
		len(c.HashIO.RequiredWriteMethods) == 0 &&
		!c.WritesOnBoot
}

// SchemaError reports a contract document that cannot be used.
type SchemaError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("contract schema error: %s: %s", e.Field, e.Message)
	}
	return "contract schema error: " + e.Message
}

// document mirrors the on-disk layout; CUE decodes into it via json tags.
type document struct {
	ABI        string `json:"abi"`
	ContractID string `json:"contractId"`
	HTML       struct {
		Requires struct {
			IDs            []string                   `json:"ids"`
			Selectors      []string                   `json:"selectors"`
			DataAttributes []DataAttributeRequirement `json:"dataAttributes"`
		} `json:"requires"`
	} `json:"html"`
	JS struct {
		Requires struct {
			DomIDs []string           `json:"domIds"`
			Events []EventRequirement `json:"events"`
			HashIO struct {
				ReadsLocationHash bool     `json:"readsLocationHash"`
				WritesHash        bool     `json:"writesHash"`
				WriteMethods      []string `json:"writeMethods"`
			} `json:"hashIO"`
			Markers []string `json:"markers"`
		} `json:"requires"`
	} `json:"js"`
	State struct {
		Canonicalization struct {
			WritesOnBoot bool `json:"writesOnBoot"`
		} `json:"canonicalization"`
	} `json:"state"`
}

// LoadFile reads and parses a contract document from disk.
func LoadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract file: %w", err)
	}
	return Load(data)
}

// Load parses a contract document.
//
// The ABI tag is checked first; a missing or foreign tag fails with
// *SchemaError before any other validation. The document is then unified
// with the embedded CUE schema, and type mismatches also fail with
// *SchemaError. Absent optional fields default to empty or false.
func Load(data []byte) (c *Contract, err error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}

	abi, present := raw["abi"]
	if !present {
		return nil, &SchemaError{Field: "abi", Message: fmt.Sprintf("missing abi tag; expected %q", ABIVersion)}
	}
	if tag, ok := abi.(string); !ok || tag != ABIVersion {
		return nil, &SchemaError{Field: "abi", Message: fmt.Sprintf("unsupported abi '%v'. Expected '%s'", abi, ABIVersion)}
	}

	// cue.Context.Encode panics on some unconvertible Go values.
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = &SchemaError{Message: fmt.Sprintf("%v", r)}
		}
	}()

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile contract schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Contract"))

	value := def.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaErrorFromCUE(err)
	}

	var doc document
	if err := value.Decode(&doc); err != nil {
		return nil, schemaErrorFromCUE(err)
	}

	return fromDocument(&doc), nil
}

// decodeRaw parses JSON or YAML into a generic map with null entries removed.
func decodeRaw(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &SchemaError{Message: "empty contract document"}
	}

	var parsed any
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &parsed); err != nil {
			return nil, &SchemaError{Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &parsed); err != nil {
			return nil, &SchemaError{Message: fmt.Sprintf("invalid YAML: %v", err)}
		}
	}

	root, ok := normalize(parsed).(map[string]any)
	if !ok {
		return nil, &SchemaError{Message: fmt.Sprintf("contract must be an object, got %T", parsed)}
	}
	return root, nil
}

// normalize removes null-valued keys so that `"ids": null` behaves as absent,
// and stringifies non-string YAML map keys (`1: x`) so metadata of any shape
// reaches the schema as a plain object.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			if elem == nil {
				delete(val, k)
				continue
			}
			val[k] = normalize(elem)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if elem != nil {
				out[fmt.Sprint(k)] = normalize(elem)
			}
		}
		return out
	case []any:
		for i, elem := range val {
			val[i] = normalize(elem)
		}
		return val
	}
	return v
}

func schemaErrorFromCUE(err error) *SchemaError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := errs[0]
	field := ""
	if path := first.Path(); len(path) > 0 {
		field = joinPath(path)
	}
	format, args := first.Msg()
	return &SchemaError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func joinPath(path []string) string {
	var buf bytes.Buffer
	for i, p := range path {
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(p)
	}
	return buf.String()
}

func fromDocument(doc *document) *Contract {
	htmlReq := doc.HTML.Requires
	jsReq := doc.JS.Requires

	methods := make([]string, 0, len(jsReq.HashIO.WriteMethods))
	for _, m := range jsReq.HashIO.WriteMethods {
		methods = append(methods, NormalizeWriteMethod(m))
	}

	return &Contract{
		ABI:                    doc.ABI,
		ContractID:             doc.ContractID,
		RequiredIDs:            union(htmlReq.IDs, jsReq.DomIDs),
		RequiredSelectors:      nonNil(htmlReq.Selectors),
		RequiredDataAttributes: htmlReq.DataAttributes,
		RequiredEvents:         jsReq.Events,
		HashIO: HashIOExpectations{
			MustReadHash:         jsReq.HashIO.ReadsLocationHash,
			MustWriteHash:        jsReq.HashIO.WritesHash,
			RequiredWriteMethods: uniq(methods),
		},
		RequiredMarkers: nonNil(jsReq.Markers),
		WritesOnBoot:    doc.State.Canonicalization.WritesOnBoot,
	}
}

// NormalizeWriteMethod maps a write-method spelling to its canonical name.
// Unknown spellings are returned unchanged.
func NormalizeWriteMethod(name string) string {
	if canonical, ok := writeMethodAliases[name]; ok {
		return canonical
	}
	return name
}

// union concatenates lists keeping the first occurrence of each entry.
func union(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return uniq(all)
}

func uniq(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

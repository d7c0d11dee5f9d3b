// Package static checks a target's markup and script source without running anything.
package static

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/extract"
)

// Selector kinds the checker understands. The set is closed; anything else
// in a contract is reported as a contract error.
const (
	SelectorTitle       = "title"
	SelectorMetaCharset = "meta[charset]"
	SelectorViewport    = "meta[name='viewport']"
)

var selectorXPath = map[string]string{
	SelectorTitle:       "//title[normalize-space(.) != '']",
	SelectorMetaCharset: "//meta[@charset]",
	SelectorViewport:    "//meta[translate(@name,'ABCDEFGHIJKLMNOPQRSTUVWXYZ','abcdefghijklmnopqrstuvwxyz')='viewport']",
}

var attrName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)

// SupportedSelectors lists the selector kinds in their canonical spelling.
func SupportedSelectors() []string {
	return []string{SelectorTitle, SelectorMetaCharset, SelectorViewport}
}

// Duplicate is a required id that occurs more than once.
type Duplicate struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// IDFindings reports on html.requires.ids and js.requires.domIds.
type IDFindings struct {
	Count      int         `json:"count"`
	Missing    []string    `json:"missing"`
	Duplicates []Duplicate `json:"duplicates"`
}

// SelectorFindings reports on html.requires.selectors.
type SelectorFindings struct {
	Count       int      `json:"count"`
	Missing     []string `json:"missing"`
	Unsupported []string `json:"unsupported"`
}

// DataAttributeFindings reports on html.requires.dataAttributes as name=value pairs.
type DataAttributeFindings struct {
	Enforced []string `json:"enforced"`
	Missing  []string `json:"missing"`
}

// Details is the diagnostic payload of a static check.
type Details struct {
	RequiredIDs       IDFindings            `json:"requiredIds"`
	RequiredSelectors SelectorFindings      `json:"requiredSelectors"`
	DataAttributes    DataAttributeFindings `json:"dataAttributes"`
	MissingMarkers    []string              `json:"missingMarkers"`
}

// Findings is the outcome of Check. An empty Errors means every static rule passed.
type Findings struct {
	Errors  []string
	Details Details
}

// OK reports whether no static rule failed.
func (f Findings) OK() bool {
	return len(f.Errors) == 0
}

// Check evaluates every static rule of c against the raw markup and the
// extracted inline scripts. All rules are evaluated; failures accumulate.
func Check(c *contract.Contract, markup string, scripts []string) Findings {
	f := Findings{
		Errors: []string{},
		Details: Details{
			RequiredIDs:       IDFindings{Missing: []string{}, Duplicates: []Duplicate{}},
			RequiredSelectors: SelectorFindings{Missing: []string{}, Unsupported: []string{}},
			DataAttributes:    DataAttributeFindings{Enforced: []string{}, Missing: []string{}},
			MissingMarkers:    []string{},
		},
	}

	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		f.Errors = append(f.Errors, fmt.Sprintf("HTML parse error: %v", err))
	} else {
		f.checkIDs(doc, c.RequiredIDs)
		f.checkSelectors(doc, c.RequiredSelectors)
		f.checkDataAttributes(doc, c.RequiredDataAttributes)
	}
	f.checkMarkers(extract.Combined(scripts), c.RequiredMarkers)
	return f
}

func (f *Findings) checkIDs(doc *html.Node, ids []string) {
	d := &f.Details.RequiredIDs
	d.Count = len(ids)
	for _, id := range ids {
		n := count(doc, fmt.Sprintf("//*[@id=%s]", xpathLiteral(id)))
		switch {
		case n == 0:
			d.Missing = append(d.Missing, id)
		case n > 1:
			d.Duplicates = append(d.Duplicates, Duplicate{ID: id, Count: n})
		}
	}
	if len(d.Missing) > 0 {
		f.Errors = append(f.Errors, "Missing required id(s): "+strings.Join(d.Missing, ", "))
	}
	if len(d.Duplicates) > 0 {
		parts := make([]string, len(d.Duplicates))
		for i, dup := range d.Duplicates {
			parts[i] = fmt.Sprintf("%s (count=%d)", dup.ID, dup.Count)
		}
		f.Errors = append(f.Errors, "Duplicate id(s) found: "+strings.Join(parts, ", "))
	}
}

func (f *Findings) checkSelectors(doc *html.Node, selectors []string) {
	d := &f.Details.RequiredSelectors
	d.Count = len(selectors)
	for _, raw := range selectors {
		sel, ok := canonicalSelector(raw)
		if !ok {
			d.Unsupported = append(d.Unsupported, strings.TrimSpace(raw))
			continue
		}
		if count(doc, selectorXPath[sel]) == 0 {
			d.Missing = append(d.Missing, sel)
		}
	}
	if len(d.Missing) > 0 {
		f.Errors = append(f.Errors, "Missing required selector(s): "+strings.Join(d.Missing, ", "))
	}
	if len(d.Unsupported) > 0 {
		f.Errors = append(f.Errors, "Contract error: unsupported selector(s): "+strings.Join(d.Unsupported, ", "))
	}
}

// IsSupportedSelector reports whether sel is one of the supported selector
// kinds in any accepted spelling.
func IsSupportedSelector(sel string) bool {
	_, ok := canonicalSelector(sel)
	return ok
}

// canonicalSelector maps accepted spellings onto a supported selector kind.
func canonicalSelector(sel string) (string, bool) {
	switch strings.TrimSpace(sel) {
	case SelectorTitle:
		return SelectorTitle, true
	case SelectorMetaCharset:
		return SelectorMetaCharset, true
	case SelectorViewport, `meta[name="viewport"]`, "meta[name=viewport]":
		return SelectorViewport, true
	}
	return "", false
}

func (f *Findings) checkDataAttributes(doc *html.Node, reqs []contract.DataAttributeRequirement) {
	d := &f.Details.DataAttributes
	var invalid []string
	for _, req := range reqs {
		// a requirement without values only documents the attribute
		if req.Name == "" || len(req.Values) == 0 {
			continue
		}
		for _, v := range req.Values {
			pair := req.Name + "=" + v
			if !attrName.MatchString(req.Name) {
				invalid = append(invalid, pair)
				continue
			}
			nodes, err := htmlquery.QueryAll(doc, fmt.Sprintf("//*[@%s=%s]", req.Name, xpathLiteral(v)))
			switch {
			case err != nil:
				invalid = append(invalid, pair)
			case len(nodes) == 0:
				d.Missing = append(d.Missing, pair)
			default:
				d.Enforced = append(d.Enforced, pair)
			}
		}
	}
	if len(d.Missing) > 0 {
		f.Errors = append(f.Errors, "Missing required data-attribute instance(s): "+strings.Join(d.Missing, ", "))
	}
	if len(invalid) > 0 {
		f.Errors = append(f.Errors, "Contract error: invalid data-attribute requirement(s): "+strings.Join(invalid, ", "))
	}
}

func (f *Findings) checkMarkers(source string, markers []string) {
	for _, m := range markers {
		if !strings.Contains(source, m) {
			f.Details.MissingMarkers = append(f.Details.MissingMarkers, m)
		}
	}
	if len(f.Details.MissingMarkers) > 0 {
		f.Errors = append(f.Errors, "Missing required marker(s): "+strings.Join(f.Details.MissingMarkers, ", "))
	}
}

func count(doc *html.Node, expr string) int {
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return 0
	}
	return len(nodes)
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// syntax, so a value holding both quote kinds is assembled with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

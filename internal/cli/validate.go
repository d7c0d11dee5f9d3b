package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sfwa/internal/contract"
	"github.com/roach88/sfwa/internal/static"
)

// ContractSummary describes a loaded contract's requirements.
type ContractSummary struct {
	ContractID     string   `json:"contractId,omitempty"`
	ABI            string   `json:"abi"`
	RequiredIDs    []string `json:"requiredIds"`
	Selectors      []string `json:"selectors"`
	DataAttributes int      `json:"dataAttributes"`
	Events         []string `json:"events"`
	Markers        int      `json:"markers"`
	WriteMethods   []string `json:"writeMethods"`
	Vacuous        bool     `json:"vacuous"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <contract>",
		Short: "Validate a contract without checking a target",
		Long: `Load an sfwa-abi-1 contract and report whether it is well formed.

The ABI tag, field types and selector kinds are verified. Exit code 0 means
the contract can be used with check; 2 means it cannot.

Example:
  sfwa validate notes.abi.json
  sfwa validate notes.abi.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	formatter.VerboseLog("Loading contract: %s", path)
	c, err := contract.LoadFile(path)
	if err != nil {
		var schemaErr *contract.SchemaError
		if errors.As(err, &schemaErr) {
			return commandError(formatter, ErrCodeContract, "invalid contract", err, schemaErr.Field)
		}
		return commandError(formatter, ErrCodeInput, "failed to load contract", err, path)
	}

	if unsupported := unsupportedSelectors(c); len(unsupported) > 0 {
		err := fmt.Errorf("unsupported selector(s): %s", strings.Join(unsupported, ", "))
		return commandError(formatter, ErrCodeContract, "invalid contract", err, "html.requires.selectors")
	}

	summary := summarize(c)
	if opts.Format == "json" {
		return formatter.Success(summary)
	}

	w := cmd.OutOrStdout()
	name := summary.ContractID
	if name == "" {
		name = path
	}
	fmt.Fprintf(w, "✓ %s is a valid %s contract\n", name, summary.ABI)
	fmt.Fprintf(w, "  ids: %d, selectors: %d, data attributes: %d, events: %d, markers: %d\n",
		len(summary.RequiredIDs), len(summary.Selectors), summary.DataAttributes, len(summary.Events), summary.Markers)
	if summary.Vacuous {
		fmt.Fprintln(w, "  note: contract declares no requirements and passes any target that boots")
	}
	return nil
}

func unsupportedSelectors(c *contract.Contract) []string {
	var out []string
	for _, s := range c.RequiredSelectors {
		if !static.IsSupportedSelector(s) {
			out = append(out, s)
		}
	}
	return out
}

func summarize(c *contract.Contract) ContractSummary {
	events := make([]string, len(c.RequiredEvents))
	for i, e := range c.RequiredEvents {
		events[i] = e.String()
	}
	return ContractSummary{
		ContractID:     c.ContractID,
		ABI:            c.ABI,
		RequiredIDs:    c.RequiredIDs,
		Selectors:      c.RequiredSelectors,
		DataAttributes: len(c.RequiredDataAttributes),
		Events:         events,
		Markers:        len(c.RequiredMarkers),
		WriteMethods:   c.HashIO.RequiredWriteMethods,
		Vacuous:        c.IsVacuous(),
	}
}

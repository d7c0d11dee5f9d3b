package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfwa/internal/testutil"
)

func TestValidateValidContract(t *testing.T) {
	path := filepath.Join("..", "harness", "testdata", "contracts", "notes.abi.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ notes is a valid sfwa-abi-1 contract")
	assert.Contains(t, output, "ids: 3, selectors: 3, data attributes: 1, events: 2, markers: 2")
}

func TestValidateValidContractJSON(t *testing.T) {
	path := filepath.Join("..", "harness", "testdata", "contracts", "notes.abi.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string          `json:"status"`
		Data   ContractSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "notes", resp.Data.ContractID)
	assert.Equal(t, []string{"app", "notes", "draft"}, resp.Data.RequiredIDs)
	assert.Equal(t, []string{"window:hashchange", "document:keydown"}, resp.Data.Events)
	assert.Equal(t, []string{"history.replaceState"}, resp.Data.WriteMethods)
	assert.False(t, resp.Data.Vacuous)
}

func TestValidateVacuousContract(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "empty.abi.json", `{"abi": "sfwa-abi-1"}`)

	code, out, _ := execute(t, "validate", path)

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "is a valid sfwa-abi-1 contract")
	assert.Contains(t, out, "declares no requirements")
}

func TestValidateInvalidContracts(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		wantCode string
		wantMsg  string
	}{
		{"foreign abi", `{"abi": "sfwa-abi-9"}`, ErrCodeContract, "invalid contract"},
		{"wrong type", `{"abi": "sfwa-abi-1", "html": {"requires": {"ids": "app"}}}`, ErrCodeContract, "invalid contract"},
		{"unsupported selector", `{"abi": "sfwa-abi-1", "html": {"requires": {"selectors": ["main > nav"]}}}`, ErrCodeContract, "main > nav"},
		{"not json", `{abi`, ErrCodeContract, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, dir, tt.name+".json", tt.content)

			code, out, _ := execute(t, "validate", "--format", "json", path)

			assert.Equal(t, ExitCommandError, code)
			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.wantMsg)
		})
	}
}

func TestValidateNonExistentFile(t *testing.T) {
	code, out, _ := execute(t, "validate", filepath.Join(t.TempDir(), "missing.json"))

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "Error [E_INPUT]")
}

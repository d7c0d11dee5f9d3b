package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sfwa/internal/canon"
	"github.com/roach88/sfwa/internal/harness"
	"github.com/roach88/sfwa/internal/store"
	"github.com/roach88/sfwa/internal/testutil"
)

// execute runs the CLI and returns its exit code and stdout.
func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := Execute(context.Background(), args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func counterFixture(t *testing.T, bootWrite bool) (contractPath, htmlPath string) {
	t.Helper()
	dir := t.TempDir()
	contractPath = testutil.WriteFile(t, dir, "counter.abi.json", testutil.CounterContract)
	htmlPath = testutil.WriteFile(t, dir, "index.html", testutil.CounterPage(bootWrite))
	return contractPath, htmlPath
}

func TestCheck_Passing(t *testing.T) {
	contractPath, htmlPath := counterFixture(t, true)

	code, out, _ := execute(t, "check", "--contract", contractPath, "--html", htmlPath)

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "SFWA Harness Report: counter")
	assert.Contains(t, out, "  HTML: PASS")
	assert.Contains(t, out, "  JS:   PASS")
	assert.Contains(t, out, "Overall: PASS")
}

func TestCheck_FailingExpectation(t *testing.T) {
	contractPath, htmlPath := counterFixture(t, false)

	code, out, stderr := execute(t, "check", "--contract", contractPath, "--html", htmlPath)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "  HTML: PASS")
	assert.Contains(t, out, "  JS:   FAIL")
	assert.Contains(t, out, "    - Expectation failed: state.canonicalization.writesOnBoot")
	assert.Contains(t, out, "Overall: FAIL")
	assert.Empty(t, stderr)
}

func TestCheck_JSONIsVerdict(t *testing.T) {
	contractPath, htmlPath := counterFixture(t, true)

	code, out, _ := execute(t, "check", "--contract", contractPath, "--html", htmlPath, "--format", "json")
	require.Equal(t, ExitSuccess, code)

	var v harness.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.OK)
	assert.Empty(t, v.Errors)
	assert.Equal(t, "counter", v.Details.ContractID)
	assert.Equal(t, harness.ModeAll, v.Details.Mode)
	require.NotNil(t, v.Details.Dynamic)
	assert.Equal(t, 1, v.Details.HashWrites)
	assert.Equal(t, "#n=0", v.Details.FinalHash)
}

func TestCheck_StaticModeSkipsScripts(t *testing.T) {
	contractPath, htmlPath := counterFixture(t, false)

	code, out, _ := execute(t, "check", "--contract", contractPath, "--html", htmlPath, "--mode", "html")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "  HTML: PASS")
	assert.NotContains(t, out, "JS:")
}

func TestCheck_InitialHash(t *testing.T) {
	contractPath, htmlPath := counterFixture(t, true)

	code, out, _ := execute(t, "check", "--contract", contractPath, "--html", htmlPath,
		"--initial-hash", "#n=7", "--format", "json")
	require.Equal(t, ExitSuccess, code)

	var v harness.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "#n=7", v.Details.FinalHash)
}

func TestCheck_CommandErrors(t *testing.T) {
	dir := t.TempDir()
	good := testutil.WriteFile(t, dir, "good.abi.json", testutil.CounterContract)
	foreign := testutil.WriteFile(t, dir, "foreign.abi.json", `{"abi": "sfwa-abi-2"}`)
	html := testutil.WriteFile(t, dir, "index.html", testutil.CounterPage(true))

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"foreign abi", []string{"--contract", foreign, "--html", html}, ErrCodeContract},
		{"missing contract", []string{"--contract", filepath.Join(dir, "nope.json"), "--html", html}, ErrCodeContract},
		{"missing html", []string{"--contract", good, "--html", filepath.Join(dir, "nope.html")}, ErrCodeInput},
		{"invalid mode", []string{"--contract", good, "--html", html, "--mode", "visual"}, ErrCodeUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"check", "--format", "json"}, tt.args...)
			code, out, _ := execute(t, args...)

			assert.Equal(t, ExitCommandError, code)
			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestCheck_Record(t *testing.T) {
	contractPath, htmlPath := counterFixture(t, false)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	code, _, _ := execute(t, "check", "--contract", contractPath, "--html", htmlPath, "--record", dbPath)
	require.Equal(t, ExitFailure, code)
	code, _, _ = execute(t, "check", "--contract", contractPath, "--html", htmlPath, "--record", dbPath, "--mode", "static")
	require.Equal(t, ExitSuccess, code)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	first := runs[0]
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "counter", first.ContractID)
	assert.Equal(t, "all", first.Mode)
	assert.Equal(t, htmlPath, first.Target)
	assert.False(t, first.OK)
	assert.NotEmpty(t, first.Errors)
	assert.Equal(t, canon.HashWithDomain(canon.DomainInput, []byte(testutil.CounterPage(false))), first.InputDigest)

	var stored harness.Verdict
	require.NoError(t, json.Unmarshal(first.Verdict, &stored))
	assert.Equal(t, first.Errors, stored.Errors)

	assert.True(t, runs[1].OK)
	assert.Equal(t, "static", runs[1].Mode)
}

func TestWriteVerdict_InvalidModeReportsUnderHTML(t *testing.T) {
	v := &harness.Verdict{Errors: []string{`invalid mode "x"`}}
	v.Details.Mode = "x"

	buf := &bytes.Buffer{}
	require.NoError(t, writeVerdict(buf, "text", v))

	assert.Contains(t, buf.String(), "SFWA Harness Report: (unnamed contract)")
	assert.Contains(t, buf.String(), "  HTML: FAIL")
	assert.Contains(t, buf.String(), `    - invalid mode "x"`)
	assert.NotContains(t, buf.String(), "JS:")
}

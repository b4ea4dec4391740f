package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: local_add
description: "One local add stays unuploaded"
clients: [alice]
flow:
  - op: add
    id: a
    data: {title: eggs}
assertions:
  - type: unuploaded
    ids: [a]
`

const failingScenario = `
name: wrong_count
description: "Assertion that does not hold"
flow:
  - op: add
assertions:
  - type: trace_count
    op: add
    count: 2
`

func writeScenario(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
}

func runTestCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"test"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTestCommand_Pass(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "local_add.yaml", passingScenario)

	out, err := runTestCommand(t, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ local_add\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "local_add.yaml", passingScenario)
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)
	writeScenario(t, dir, "broken.yml", "name: [")

	out, err := runTestCommand(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ broken.yml\n  failed to load scenario")
	assert.Contains(t, out, "✗ wrong_count\n  assertions[0]: Assertion failed: trace_count")
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed, 3 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "local_add.yaml", passingScenario)
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)

	out, err := runTestCommand(t, dir, "--filter", "local_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_count")

	_, err = runTestCommand(t, dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_GoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "local_add.yaml", passingScenario)

	out, err := runTestCommand(t, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ local_add (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "local_add.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"local_add","trace":[{"client":"alice","data":{"title":"eggs"},"id":"a","op":"add","seq":1,"unuploaded":["a"]}]}`,
		string(golden))

	_, err = runTestCommand(t, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"local_add","trace":[]}`), 0644))
	out, err = runTestCommand(t, dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)

	out, err := runTestCommand(t, dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "wrong_count", resp.Data.Scenarios[0].Name)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_JSONFailureIsNotReportedTwice(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)

	var stdout, stderr bytes.Buffer
	code := Execute(t.Context(), []string{"test", dir, "--format", "json"}, &stdout, &stderr)
	assert.Equal(t, ExitFailure, code)

	dec := json.NewDecoder(&stdout)
	var first map[string]any
	require.NoError(t, dec.Decode(&first))
	assert.False(t, dec.More(), "one JSON document")
	assert.Empty(t, stderr.String())
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := runTestCommand(t, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := runTestCommand(t, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_OfflineEdits(t *testing.T) {
	scenario := loadTestScenario(t, "offline_edits")

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 7)
	assert.Equal(t, "NOT_FOUND", result.Trace[6].Error)
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario := loadTestScenario(t, "offline_edits")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_TwoClientsSync(t *testing.T) {
	if testing.Short() {
		t.Skip("replicates through the in-memory remote")
	}
	scenario := loadTestScenario(t, "two_clients_sync")

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, "bob", result.Trace[2].Client)
	assert.Equal(t, OpAwait, result.Trace[2].Op)
	assert.Empty(t, result.Trace[2].Error)
}

func TestRun_UnexpectedStepOutcome(t *testing.T) {
	one := 1
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Expectations that do not hold",
		Clients:     []string{DefaultClient},
		Flow: []Step{
			{Client: DefaultClient, Op: OpAdd, ID: "a", Data: map[string]any{"n": 1}},
			{Client: DefaultClient, Op: OpDelete, ID: "a", Expect: &Expect{Mode: "soft"}},
			{Client: DefaultClient, Op: OpEdit, ID: "a", Data: map[string]any{"n": 2}},
			{Client: DefaultClient, Op: OpAdd, ID: "b", Expect: &Expect{Error: "CONFLICT", Unuploaded: &one}},
		},
		Assertions: []Assertion{
			{Type: AssertUnuploaded, Client: DefaultClient, IDs: []string{"a"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected soft delete")
	assert.Contains(t, result.Errors[1], "unexpected error")
	assert.Contains(t, result.Errors[2], "expected error CONFLICT, got success")
	assert.Contains(t, result.Errors[3], "Assertion failed: unuploaded")

	assert.Equal(t, "hard", result.Trace[1].Mode)
	assert.Equal(t, "NOT_FOUND", result.Trace[2].Error)
}

func TestRun_DuplicateAddConflicts(t *testing.T) {
	scenario := &Scenario{
		Name:        "duplicate",
		Description: "Adding an existing id conflicts",
		Clients:     []string{DefaultClient},
		Flow: []Step{
			{Client: DefaultClient, Op: OpAdd, ID: "a"},
			{Client: DefaultClient, Op: OpAdd, ID: "a", Expect: &Expect{Error: "CONFLICT"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Op: OpAdd, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SingletonAndRestart(t *testing.T) {
	scenario := &Scenario{
		Name:        "singleton",
		Description: "Single-document mode survives a restart",
		Clients:     []string{"solo"},
		SingletonID: "settings",
		Flow: []Step{
			{Client: "solo", Op: OpSetSingle, Data: map[string]any{"theme": "dark"}},
			{Client: "solo", Op: OpSetSingle, Data: map[string]any{"theme": "light"}},
			{Client: "solo", Op: OpRestart},
		},
		Assertions: []Assertion{
			{Type: AssertData, Client: "solo", IDs: []string{"settings"}},
			{Type: AssertUnuploaded, Client: "solo", IDs: []string{"settings"}},
			{Type: AssertDocument, Client: "solo", ID: "settings", Expect: map[string]any{"theme": "light"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "settings", result.Trace[0].ID)
	assert.Equal(t, []string{"settings"}, result.Trace[2].Unuploaded)
}

func TestRun_AwaitTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the await timeout")
	}
	scenario := &Scenario{
		Name:        "await_timeout",
		Description: "Awaiting an id nobody writes",
		Clients:     []string{DefaultClient},
		Flow: []Step{
			{Client: DefaultClient, Op: OpAwait, ID: "ghost", Expect: &Expect{Error: "TIMEOUT"}},
		},
		Assertions: []Assertion{
			{Type: AssertDocument, Client: DefaultClient, ID: "ghost", State: StateAbsent},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/natefinch/atomic"
	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsync/internal/canonical"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// It serializes to canonical JSON for byte-for-byte comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to the value types canonical.Marshal
// accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":        event.Seq,
			"client":     event.Client,
			"op":         event.Op,
			"unuploaded": event.Unuploaded,
		}
		if event.Unuploaded == nil {
			eventMap["unuploaded"] = []string{}
		}
		if event.ID != "" {
			eventMap["id"] = event.ID
		}
		if event.Data != nil {
			eventMap["data"] = event.Data
		}
		if event.Mode != "" {
			eventMap["mode"] = event.Mode
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// Snapshot renders the result trace as canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	data, err := canonical.Marshal(snapshot.toCanonicalMap())
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", scenarioName, err)
	}
	return data, nil
}

// GoldenPath returns the golden file for a scenario file:
// <scenario dir>/golden/<scenario name>.golden.
func GoldenPath(scenarioFile, scenarioName string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioName+".golden")
}

// WriteGolden atomically writes the snapshot to path, creating its
// directory.
func WriteGolden(path string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(snapshot)); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// MatchGolden compares the snapshot with the golden file at path.
// Surrounding whitespace in the file is ignored. A missing file is
// reported as os.ErrNotExist.
func MatchGolden(path string, snapshot []byte) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(want)) == strings.TrimSpace(string(snapshot)), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

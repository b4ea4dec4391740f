package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultClient is the client used when a scenario lists none.
const DefaultClient = "client-1"

// Scenario defines one sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clients names the participating clients. Defaults to DefaultClient.
	Clients []string `yaml:"clients,omitempty"`

	// Remote connects every client to one shared in-memory remote.
	Remote bool `yaml:"remote,omitempty"`

	// SingletonID puts every client's projection in single-document mode.
	SingletonID string `yaml:"singleton_id,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation by one client.
type Step struct {
	// Client defaults to the first client.
	Client string         `yaml:"client,omitempty"`
	Op     string         `yaml:"op"`
	ID     string         `yaml:"id,omitempty"`
	Data   map[string]any `yaml:"data,omitempty"`
	User   map[string]any `yaml:"user,omitempty"`

	// Expect validates the step outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. "CONFLICT" or "NOT_FOUND".
	Error string `yaml:"error,omitempty"`

	// Mode is the expected delete mode: "soft" or "hard".
	Mode string `yaml:"mode,omitempty"`

	// Unuploaded is the expected size of the unuploaded set after the step.
	Unuploaded *int `yaml:"unuploaded,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Client defaults to the first client, except for trace_count where
	// empty counts every client.
	Client string `yaml:"client,omitempty"`

	// IDs is the expected id list (unuploaded, data).
	IDs []string `yaml:"ids,omitempty"`

	// ID, State and Expect describe one document (document). State is
	// "live" (default), "deleted" or "absent"; Expect is a subset of the
	// flattened document.
	ID     string         `yaml:"id,omitempty"`
	State  string         `yaml:"state,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Op and Count describe trace_count.
	Op    string `yaml:"op,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Operation names.
const (
	OpAdd       = "add"
	OpEdit      = "edit"
	OpDelete    = "delete"
	OpSetSingle = "set_single"
	OpUpload    = "upload"
	OpRestart   = "restart"
	OpAwait     = "await"
)

// Assertion type constants.
const (
	AssertUnuploaded = "unuploaded"
	AssertData       = "data"
	AssertDocument   = "document"
	AssertTraceCount = "trace_count"
)

// Document states for document assertions.
const (
	StateLive    = "live"
	StateDeleted = "deleted"
	StateAbsent  = "absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(scenario.Clients) == 0 {
		scenario.Clients = []string{DefaultClient}
	}
	for i := range scenario.Flow {
		if scenario.Flow[i].Client == "" {
			scenario.Flow[i].Client = scenario.Clients[0]
		}
	}
	for i := range scenario.Assertions {
		if scenario.Assertions[i].Client == "" && scenario.Assertions[i].Type != AssertTraceCount {
			scenario.Assertions[i].Client = scenario.Clients[0]
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
// Defaults must already be applied.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Clients))
	for i, c := range s.Clients {
		if c == "" {
			return fmt.Errorf("clients[%d]: name is required", i)
		}
		if seen[c] {
			return fmt.Errorf("clients[%d]: duplicate client %q", i, c)
		}
		seen[c] = true
	}

	for i, step := range s.Flow {
		if !seen[step.Client] {
			return fmt.Errorf("flow[%d]: unknown client %q", i, step.Client)
		}
		if err := validateStep(step, s); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if a.Client != "" && !seen[a.Client] {
			return fmt.Errorf("assertions[%d]: unknown client %q", i, a.Client)
		}
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, s *Scenario) error {
	switch step.Op {
	case OpAdd, OpUpload, OpRestart:
	case OpEdit, OpDelete, OpAwait:
		if step.ID == "" {
			return fmt.Errorf("id is required for %s", step.Op)
		}
	case OpSetSingle:
		if s.SingletonID == "" {
			return fmt.Errorf("set_single needs singleton_id")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if step.Expect != nil && step.Expect.Mode != "" {
		if step.Op != OpDelete {
			return fmt.Errorf("expect.mode only applies to delete")
		}
		if step.Expect.Mode != "soft" && step.Expect.Mode != "hard" {
			return fmt.Errorf("expect.mode must be soft or hard, got %q", step.Expect.Mode)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertUnuploaded, AssertData:
	case AssertDocument:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for document", index)
		}
		if a.State != "" && !slices.Contains([]string{StateLive, StateDeleted, StateAbsent}, a.State) {
			return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

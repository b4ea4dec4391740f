package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int            `json:"seq"`
	Client string         `json:"client"`
	Op     string         `json:"op"`
	ID     string         `json:"id,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Mode   string         `json:"mode,omitempty"`
	Error  string         `json:"error,omitempty"`

	// Unuploaded is the client's unuploaded set after the step, sorted.
	Unuploaded []string `json:"unuploaded"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/syncstore"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s", event.Seq, event.Client, event.Op, event.ID)
		if event.Error != "" {
			fmt.Fprintf(&buf, " error=%s", event.Error)
		}
		fmt.Fprintf(&buf, " unuploaded=%v\n", event.Unuploaded)
	}

	return buf.String()
}

// AssertionContext gives assertions access to the final client state.
type AssertionContext struct {
	Ctx    context.Context
	Stores map[string]*syncstore.Store
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	}

	s, ok := actx.Stores[a.Client]
	if !ok {
		return fmt.Errorf("unknown client %q", a.Client)
	}
	switch a.Type {
	case AssertUnuploaded:
		return assertUnuploaded(result.Trace, s, a)
	case AssertData:
		return assertData(actx.Ctx, result.Trace, s, a)
	case AssertDocument:
		return assertDocument(actx.Ctx, result.Trace, s, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertUnuploaded compares the client's unuploaded set with a.IDs.
func assertUnuploaded(trace []TraceEvent, s *syncstore.Store, a Assertion) error {
	got := s.Meta().IDs()
	want := sortedCopy(a.IDs)
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertUnuploaded,
		Expected: fmt.Sprintf("%s unuploaded %v", a.Client, want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// assertData compares the ids held by the client's projection with a.IDs,
// in projection order. In single-document mode the projection holds at most
// the singleton.
func assertData(ctx context.Context, trace []TraceEvent, s *syncstore.Store, a Assertion) error {
	view := s.Data()
	got := []string{}
	if view.Single != nil {
		got = append(got, view.Single.ID)
	}
	for _, d := range view.Items {
		got = append(got, d.ID)
	}
	want := a.IDs
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertData,
		Expected: fmt.Sprintf("%s data %v", a.Client, want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// assertDocument checks the state of one document and, for live and
// deleted documents, that a.Expect is a subset of its flattened form.
func assertDocument(ctx context.Context, trace []TraceEvent, s *syncstore.Store, a Assertion) error {
	state := a.State
	if state == "" {
		state = StateLive
	}

	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s document %s %s %v", a.Client, a.ID, state, a.Expect),
			Actual:   actual,
			Trace:    trace,
		}
	}

	d, err := s.GetItem(ctx, a.ID)
	if errors.Is(err, syncstore.ErrNotFound) {
		if state == StateAbsent {
			return nil
		}
		return fail("absent")
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", a.ID, err)
	}

	switch {
	case state == StateAbsent:
		return fail(documentState(d))
	case state != documentState(d):
		return fail(documentState(d))
	}

	if len(a.Expect) == 0 {
		return nil
	}
	got, err := normalize(d.Map())
	if err != nil {
		return err
	}
	want, err := normalize(a.Expect)
	if err != nil {
		return err
	}
	for k, w := range want {
		if diff := cmp.Diff(w, got[k]); diff != "" {
			return fail(fmt.Sprintf("%s mismatch (-want +got):\n%s", k, diff))
		}
	}
	return nil
}

func documentState(d doc.Document) string {
	if d.IsLive() {
		return StateLive
	}
	return StateDeleted
}

// assertTraceCount counts successful steps with the given op, optionally
// restricted to one client.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op != a.Op || ev.Error != "" {
			continue
		}
		if a.Client != "" && ev.Client != a.Client {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d successful %s steps", a.Count, a.Op),
		Actual:   fmt.Sprintf("%d", count),
		Trace:    trace,
	}
}

func sortedCopy(ids []string) []string {
	out := slices.Clone(ids)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out
}

// normalize round-trips m through JSON so YAML and store values compare
// equal: numbers become float64 and nested maps map[string]any.
func normalize(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}

// normalizeMap prepares step data for canonical encoding. Numbers are kept
// as json.Number so integers are not widened to floats. Nil stays nil.
func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return m
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return m
	}
	return out
}

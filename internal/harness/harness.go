package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/syncstore"
	"github.com/roach88/docsync/internal/testutil"
)

// Timeouts bounding a scenario run.
const (
	ScenarioTimeout = 30 * time.Second
	AwaitTimeout    = 5 * time.Second
	awaitPoll       = 10 * time.Millisecond
)

// storeName is the logical store every client opens.
const storeName = "todos"

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	dir      string
	remote   docstore.Database
	clock    *testutil.StepClock
	logger   *slog.Logger
	clients  map[string]*client
}

type client struct {
	name  string
	ids   *testutil.CountingIDGenerator
	store *syncstore.Store
}

// Run executes a scenario and returns the result.
//
// Each run gets fresh sqlite directories per client and, when the scenario
// asks for one, a fresh in-memory remote. Everything is removed afterwards.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunContext is Run with a parent context and logger.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (result *Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, ScenarioTimeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "docsync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		dir:      dir,
		clock:    testutil.NewStepClock(testutil.Epoch, time.Second),
		logger:   logger.With("scenario", scenario.Name),
		clients:  make(map[string]*client, len(scenario.Clients)),
	}
	defer func() {
		err = errors.Join(err, h.close())
	}()

	if scenario.Remote {
		h.remote, err = docstore.MemoryOpener(h.logger)("remote")
		if err != nil {
			return nil, fmt.Errorf("failed to open remote: %w", err)
		}
	}

	for _, name := range scenario.Clients {
		c := &client{name: name, ids: testutil.NewCountingIDGenerator(name)}
		if err := h.open(ctx, c); err != nil {
			return nil, fmt.Errorf("client %s: %w", name, err)
		}
		h.clients[name] = c
	}

	result = NewResult()
	for i, step := range scenario.Flow {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Stores: h.stores()}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// open creates and initializes the client's store.
func (h *Harness) open(ctx context.Context, c *client) error {
	opts := syncstore.Options{
		Name:     storeName,
		Engine:   docstore.EngineSQLite,
		Dir:      filepath.Join(h.dir, c.name),
		ClientID: c.name,
		Projection: syncstore.ProjectionOptions{
			SingletonID: h.scenario.SingletonID,
		},
	}
	if h.remote != nil {
		opts.Remote = syncstore.RemoteOptions{Enabled: true, Database: h.remote}
	}

	s, err := syncstore.New(opts,
		syncstore.WithLogger(h.logger.With("client", c.name)),
		syncstore.WithClock(h.clock),
		syncstore.WithIDGenerator(c.ids),
	)
	if err != nil {
		return err
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	c.store = s
	return nil
}

func (h *Harness) stores() map[string]*syncstore.Store {
	m := make(map[string]*syncstore.Store, len(h.clients))
	for name, c := range h.clients {
		m[name] = c.store
	}
	return m
}

// execute runs one step and records it. Step failures the scenario did not
// expect become result errors; only harness failures are returned.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	c := h.clients[step.Client]
	ev := TraceEvent{
		Seq:    index + 1,
		Client: step.Client,
		Op:     step.Op,
		ID:     step.ID,
		Data:   normalizeMap(step.Data),
	}

	var opErr error
	switch step.Op {
	case OpAdd:
		var d doc.Document
		if step.ID != "" {
			d, opErr = c.store.AddItemWithID(ctx, step.ID, step.Data, step.User)
		} else {
			d, opErr = c.store.AddItem(ctx, step.Data, step.User)
		}
		if opErr == nil {
			ev.ID = d.ID
		}
	case OpEdit:
		_, opErr = c.store.EditItem(ctx, step.ID, step.Data, step.User)
	case OpDelete:
		mode, err := c.store.DeleteItem(ctx, step.ID, step.User)
		if opErr = err; err == nil {
			ev.Mode = mode.String()
		}
	case OpSetSingle:
		var d doc.Document
		if d, opErr = c.store.SetSingle(ctx, step.Data, step.User); opErr == nil {
			ev.ID = d.ID
		}
	case OpUpload:
		opErr = c.store.Upload(ctx)
	case OpRestart:
		if err := c.store.Deinitialize(); err != nil {
			return fmt.Errorf("deinitialize: %w", err)
		}
		if err := h.open(ctx, c); err != nil {
			return fmt.Errorf("reopen: %w", err)
		}
	case OpAwait:
		opErr = h.await(ctx, c, step.ID)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if err := c.store.Settle(ctx); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	ev.Unuploaded = c.store.Meta().IDs()
	if ev.Unuploaded == nil {
		ev.Unuploaded = []string{}
	}
	if opErr != nil {
		ev.Error = ErrorCode(opErr)
		h.logger.Debug("step failed", "seq", ev.Seq, "op", step.Op, "error", opErr)
	}
	result.Trace = append(result.Trace, ev)

	checkExpect(index, step, ev, opErr, result)
	return nil
}

// await polls until id exists in the client's store.
func (h *Harness) await(ctx context.Context, c *client, id string) error {
	ctx, cancel := context.WithTimeout(ctx, AwaitTimeout)
	defer cancel()

	ticker := time.NewTicker(awaitPoll)
	defer ticker.Stop()
	for {
		ok, err := c.store.CheckIDExist(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("await %s: %w", id, ctx.Err())
		}
	}
}

func checkExpect(index int, step Step, ev TraceEvent, opErr error, result *Result) {
	prefix := fmt.Sprintf("flow[%d] %s %s", index, step.Client, step.Op)
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}

	switch {
	case exp.Error == "" && opErr != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, opErr))
	case exp.Error != "" && opErr == nil:
		result.AddError(fmt.Sprintf("%s: expected error %s, got success", prefix, exp.Error))
	case exp.Error != "" && ev.Error != exp.Error:
		result.AddError(fmt.Sprintf("%s: expected error %s, got %s (%v)", prefix, exp.Error, ev.Error, opErr))
	}

	if exp.Mode != "" && ev.Mode != exp.Mode {
		result.AddError(fmt.Sprintf("%s: expected %s delete, got %q", prefix, exp.Mode, ev.Mode))
	}
	if exp.Unuploaded != nil && len(ev.Unuploaded) != *exp.Unuploaded {
		result.AddError(fmt.Sprintf("%s: expected %d unuploaded, got %d %v",
			prefix, *exp.Unuploaded, len(ev.Unuploaded), ev.Unuploaded))
	}
}

// ErrorCode names a step error in traces and expect clauses.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case syncstore.IsNotConfigured(err):
		return string(syncstore.CodeNotConfigured)
	case syncstore.IsConnectivity(err):
		return string(syncstore.CodeConnectivity)
	case syncstore.IsConflict(err), docstore.IsConflict(err):
		return string(syncstore.CodeConflict)
	case syncstore.IsReplication(err):
		return string(syncstore.CodeReplication)
	case docstore.IsNotFound(err):
		return "NOT_FOUND"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// close deinitializes every client, closes the remote and removes the
// scenario directory.
func (h *Harness) close() error {
	var errs []error
	for _, c := range h.clients {
		if c.store != nil {
			errs = append(errs, c.store.Deinitialize())
		}
	}
	if h.remote != nil {
		errs = append(errs, h.remote.Close())
	}
	errs = append(errs, os.RemoveAll(h.dir))
	return errors.Join(errs...)
}

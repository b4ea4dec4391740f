package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/syncstore"
	"github.com/roach88/docsync/internal/testutil"
)

const testClientID = "client-1"

// cliHarness runs commands against one data directory with a deterministic
// clock and id sequence shared across invocations.
type cliHarness struct {
	t         *testing.T
	dir       string
	clientID  string
	storeOpts []syncstore.Option
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()
	return &cliHarness{
		t:        t,
		dir:      t.TempDir(),
		clientID: testClientID,
		storeOpts: []syncstore.Option{
			syncstore.WithClock(testutil.NewStepClock(testutil.Epoch, time.Second)),
			syncstore.WithIDGenerator(testutil.NewCountingIDGenerator("item")),
		},
	}
}

func (h *cliHarness) args(args []string) []string {
	full := append([]string{}, args...)
	return append(full, "--name", "todos", "--dir", h.dir, "--client-id", h.clientID)
}

// run executes one command and returns its stdout.
func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	out := &syncBuffer{}
	err := h.runContext(context.Background(), out, args...)
	return out.String(), err
}

// mustRun is run that fails the test on error.
func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "docsync %s", strings.Join(args, " "))
	return out
}

func (h *cliHarness) runContext(ctx context.Context, out *syncBuffer, args ...string) error {
	cmd := newRootCommand(&RootOptions{StoreOptions: h.storeOpts})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(h.args(args))
	return cmd.ExecuteContext(ctx)
}

// syncBuffer is a bytes.Buffer safe for a command writing from another
// goroutine while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

package cli

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCommand(t *testing.T, h *cliHarness, args ...string) (out *syncBuffer, stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out = &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- h.runContext(ctx, out, args...) }()

	return out, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("command did not stop")
			return nil
		}
	}
}

func TestWatch_PrintsInitialResults(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "--data", `{"title":"milk"}`)
	h.mustRun("add", "--data", `{"title":"bread","done":true}`)

	out, stop := startCommand(t, h, "watch", "--filter", "done != true")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "--- 1 documents")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `item-0001  dirty    {"title":"milk"}`)
	assert.NotContains(t, out.String(), "bread")

	require.NoError(t, stop())
}

var servingURL = regexp.MustCompile(`http://\S+`)

func TestServe_RemoteRoundTrip(t *testing.T) {
	server := newHarness(t)
	out, stop := startCommand(t, server, "serve", "--addr", "127.0.0.1:0")

	var url string
	require.Eventually(t, func() bool {
		url = servingURL.FindString(out.String())
		return url != ""
	}, 5*time.Second, 10*time.Millisecond)

	alice := newHarness(t)
	alice.mustRun("--remote", url, "add", "--id", "shopping", "--data", `{"title":"eggs"}`)
	assert.Equal(t, "Uploaded 1 documents, 0 pending\n", alice.mustRun("--remote", url, "upload"))

	bob := newHarness(t)
	bob.clientID = "client-2"
	got := bob.mustRun("--remote", url, "ls")
	assert.Equal(t, "shopping  synced   {\"title\":\"eggs\"}\n", got, "pulled on catch-up, not dirty")

	require.NoError(t, stop())
}

func TestServe_BadAddress(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("serve", "--addr", "256.0.0.1:bad")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

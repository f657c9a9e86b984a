package driver

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *process {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := startProcess(context.Background(), []string{"sh", "-c", script}, logger)
	require.NoError(t, err)
	return p
}

type readResult struct {
	data []byte
	err  error
}

func readAll(p *process) <-chan readResult {
	ch := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(p)
		ch <- readResult{data, err}
	}()
	return ch
}

func TestProcessCloseDrainsOutput(t *testing.T) {
	// Ignores SIGTERM and writes once stdin is closed, like oftr flushing
	// on shutdown.
	p := startShell(t, `trap '' TERM; cat >/dev/null; printf 'bye\000'`)
	out := readAll(p)

	_, err := p.Write([]byte("{}\x00"))
	require.NoError(t, err)

	require.NoError(t, p.Close())

	select {
	case r := <-out:
		require.NoError(t, r.err)
		assert.Equal(t, "bye\x00", string(r.data))
	case <-time.After(eventTimeout):
		t.Fatal("reader did not reach EOF")
	}
	assert.True(t, p.cmd.ProcessState.Exited())
}

func TestProcessReapedAfterSelfExit(t *testing.T) {
	p := startShell(t, `printf 'hi\000'; exit 3`)
	out := readAll(p)

	select {
	case r := <-out:
		require.NoError(t, r.err)
		assert.Equal(t, "hi\x00", string(r.data))
	case <-time.After(eventTimeout):
		t.Fatal("reader did not reach EOF")
	}

	select {
	case <-p.exited:
	case <-time.After(eventTimeout):
		t.Fatal("process not reaped after exit")
	}
	assert.Equal(t, 3, p.cmd.ProcessState.ExitCode())

	err := p.Close()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zofgo/zof/pkg/controller"
	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/handler"
	"github.com/zofgo/zof/pkg/rpc"
)

func newTestShell(t *testing.T) (*Shell, *controller.Controller, *bytes.Buffer) {
	t.Helper()
	c, err := controller.New(controller.DefaultConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	return &Shell{ctrl: c, out: &buf}, c, &buf
}

func TestShellQuit(t *testing.T) {
	s, _, buf := newTestShell(t)

	assert.False(t, s.Exec(context.Background(), "   "))
	assert.False(t, s.Exec(context.Background(), "help"))
	assert.Contains(t, buf.String(), "zof Controller Commands")

	for _, cmd := range []string{"quit", "exit", "Q"} {
		assert.True(t, s.Exec(context.Background(), cmd), cmd)
	}
}

func TestShellUnknownCommand(t *testing.T) {
	s, _, buf := newTestShell(t)
	s.Exec(context.Background(), "frobnicate now")
	assert.Contains(t, buf.String(), "Unknown command: frobnicate")
}

func TestShellStatus(t *testing.T) {
	s, _, buf := newTestShell(t)
	s.Exec(context.Background(), "status")

	out := buf.String()
	assert.Contains(t, out, "State:     IDLE")
	assert.Contains(t, out, "open: false")
	assert.Contains(t, out, "Datapaths: 0")
}

func TestShellDatapaths(t *testing.T) {
	s, c, buf := newTestShell(t)

	s.Exec(context.Background(), "datapaths")
	assert.Contains(t, buf.String(), "No datapaths connected")

	dp, err := c.Datapaths().Add("00:00:00:00:00:00:00:01", 7)
	require.NoError(t, err)
	dp.AddPorts([]datapath.PortDesc{
		{PortNo: 1, HwAddr: "0E:00:00:00:00:01", Name: "eth1"},
		{PortNo: 2, HwAddr: "0e:00:00:00:00:02", Name: "eth2", State: []string{"LINK_DOWN"}},
	})

	buf.Reset()
	s.Exec(context.Background(), "dp")
	assert.Contains(t, buf.String(), "Datapaths (1)")
	assert.Contains(t, buf.String(), "00:00:00:00:00:00:00:01")
	assert.Contains(t, buf.String(), "connecting")

	buf.Reset()
	s.Exec(context.Background(), "ports 1")
	out := buf.String()
	assert.Contains(t, out, "Ports of 00:00:00:00:00:00:00:01 (2)")
	assert.Contains(t, out, "eth1")
	assert.Contains(t, out, "0e:00:00:00:00:01")
	assert.Regexp(t, `eth2\s+0e:00:00:00:00:02\s+down`, out)
}

func TestShellPortsErrors(t *testing.T) {
	s, _, buf := newTestShell(t)

	s.Exec(context.Background(), "ports")
	assert.Contains(t, buf.String(), "Usage: ports <dpid>")

	buf.Reset()
	s.Exec(context.Background(), "ports 0x42")
	assert.Contains(t, buf.String(), "Unknown datapath: 0x42")

	buf.Reset()
	s.Exec(context.Background(), "close 0x42")
	assert.Contains(t, buf.String(), "Unknown datapath: 0x42")
}

func TestShellCloseNotReady(t *testing.T) {
	s, c, buf := newTestShell(t)
	_, err := c.Datapaths().Add(1, 7)
	require.NoError(t, err)

	s.Exec(context.Background(), "close 1")
	assert.Contains(t, buf.String(), "is not ready")
}

func TestShellApps(t *testing.T) {
	s, c, buf := newTestShell(t)

	s.Exec(context.Background(), "apps")
	assert.Contains(t, buf.String(), "No apps registered")

	app, err := c.NewApp("demo")
	require.NoError(t, err)
	app.Subscribe(func(*datapath.Datapath, *rpc.Event) (handler.Result, error) {
		return handler.Handled, nil
	}, handler.KindMessage, "PACKET_IN", handler.Options{})

	buf.Reset()
	s.Exec(context.Background(), "apps")
	assert.Contains(t, buf.String(), "demo: 1 handlers, 0 tasks")
	assert.Contains(t, buf.String(), "message[PACKET_IN]")
}

func TestShellDescribeNotOpen(t *testing.T) {
	s, _, buf := newTestShell(t)
	s.Exec(context.Background(), "describe")
	assert.Contains(t, buf.String(), "Error:")
}

package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zofgo/zof/internal/oftrtest"
	"github.com/zofgo/zof/pkg/controller"
	"github.com/zofgo/zof/pkg/rpc"
)

const waitTimeout = 2 * time.Second

func TestPacketOut(t *testing.T) {
	tests := []struct {
		name string
		msg  map[string]any
		want map[string]any
	}{
		{
			name: "unbuffered",
			msg:  map[string]any{"buffer_id": "NO_BUFFER", "in_port": 3, "data": "aabbcc"},
			want: map[string]any{"buffer_id": "NO_BUFFER", "in_port": "3", "data": "aabbcc"},
		},
		{
			name: "buffered",
			msg:  map[string]any{"buffer_id": 17, "in_port": "LOCAL", "data": "aabbcc"},
			want: map[string]any{"buffer_id": "17", "in_port": "LOCAL"},
		},
		{
			name: "missing buffer id",
			msg:  map[string]any{"in_port": 1, "data": ""},
			want: map[string]any{"buffer_id": "NO_BUFFER", "in_port": "1", "data": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := rpc.NewEvent("PACKET_IN", map[string]any{"msg": tt.msg})
			require.NoError(t, err)

			out, err := packetOut(ev)
			require.NoError(t, err)
			assert.Equal(t, "PACKET_OUT", out.Type)

			msg := out.Msg.(map[string]any)
			for k, v := range tt.want {
				assert.Equal(t, v, fmt.Sprint(msg[k]), k)
			}
			if _, ok := tt.want["data"]; !ok {
				assert.NotContains(t, msg, "data")
			}
			assert.Equal(t, "ALL", fmt.Sprint(msg["actions"].([]any)[0].(map[string]any)["port_no"]))
		})
	}
}

func TestPacketOutBadMsg(t *testing.T) {
	ev, err := rpc.NewEvent("PACKET_IN", nil)
	require.NoError(t, err)
	_, err = packetOut(ev)
	assert.Error(t, err)
}

func TestHubFloods(t *testing.T) {
	sim := oftrtest.New(nil, "")
	cfg := controller.DefaultConfig()
	cfg.Driver.Dialer = sim.Dial

	c, err := controller.New(cfg)
	require.NoError(t, err)
	_, err = newHub(c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitTimeout):
		}
	})

	require.Eventually(t, func() bool {
		for _, m := range sim.Methods() {
			if m == rpc.MethodListen {
				return true
			}
		}
		return false
	}, waitTimeout, time.Millisecond)

	sw := &oftrtest.Switch{
		DatapathID: "00:00:00:00:00:00:00:01",
		Ports:      []map[string]any{oftrtest.Port(1, "eth1"), oftrtest.Port(2, "eth2")},
	}
	connID := sim.Attach(sw)

	require.Eventually(t, func() bool {
		return contains(sw.ReceivedTypes(), "FLOW_MOD")
	}, waitTimeout, time.Millisecond, "no table-miss flow")

	require.NoError(t, sim.EmitFrom(connID, map[string]any{
		"type": "PACKET_IN",
		"msg":  map[string]any{"buffer_id": "NO_BUFFER", "in_port": 2, "data": "ffffffffffff"},
	}))

	require.Eventually(t, func() bool {
		return contains(sw.ReceivedTypes(), "PACKET_OUT")
	}, waitTimeout, time.Millisecond, "no PACKET_OUT")

	for _, m := range sw.Received() {
		if m["type"] != "PACKET_OUT" {
			continue
		}
		msg := m["msg"].(map[string]any)
		assert.Equal(t, "2", fmt.Sprint(msg["in_port"]))
		assert.Equal(t, "ffffffffffff", msg["data"])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package handler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zofgo/zof/pkg/rpc"
)

func message(t *testing.T, typ string, fields map[string]any) *rpc.Event {
	t.Helper()
	ev, err := rpc.NewEvent(typ, fields)
	require.NoError(t, err)
	ev.OpenFlow = true
	return ev
}

func event(t *testing.T, typ string, fields map[string]any) *rpc.Event {
	t.Helper()
	ev, err := rpc.NewEvent(typ, fields)
	require.NoError(t, err)
	return ev
}

func TestNewMatcherValidation(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		subtype any
		opts    Options
		wantErr bool
	}{
		{"message type", KindMessage, "packet_in", Options{}, false},
		{"multipart reply", KindMessage, "REPLY.PORT_DESC", Options{}, false},
		{"unknown message", KindMessage, "PACKET_INN", Options{}, true},
		{"unknown multipart", KindMessage, "REPLY.NOPE", Options{}, true},
		{"any event name", KindEvent, "device_ready", Options{}, false},
		{"empty subtype", KindEvent, "", Options{}, true},
		{"subtype func", KindMessage, SubtypeFunc(func(string) bool { return true }), Options{}, false},
		{"plain func", KindEvent, func(string) bool { return true }, Options{}, false},
		{"nil subtype func", KindEvent, SubtypeFunc(nil), Options{}, true},
		{"int subtype", KindEvent, 7, Options{}, true},
		{"bad kind", Kind("command"), "X", Options{}, true},
		{"bad dpid", KindMessage, "PACKET_IN", Options{DatapathID: "nope"}, true},
		{"dpid and none", KindMessage, "PACKET_IN", Options{DatapathID: 1, NoDatapath: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatcher(tt.kind, tt.subtype, tt.opts)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidSubscription), "err = %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchMessageDatapath(t *testing.T) {
	withDP := message(t, "PACKET_IN", map[string]any{"datapath_id": "00:00:00:00:00:00:00:01", "conn_id": 3})
	withoutDP := message(t, "PACKET_IN", nil)

	tests := []struct {
		name      string
		opts      Options
		withDP    bool
		withoutDP bool
	}{
		{"default", Options{}, true, false},
		{"no datapath", Options{NoDatapath: true}, false, true},
		{"dpid match", Options{DatapathID: "0x1"}, true, false},
		{"dpid mismatch", Options{DatapathID: 2}, false, false},
		{"conn match", Options{ConnID: 3}, true, false},
		{"conn mismatch", Options{ConnID: 4}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(KindMessage, "PACKET_IN", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.withDP, m.Match(withDP))
			assert.Equal(t, tt.withoutDP, m.Match(withoutDP))
		})
	}
}

func TestMatchFields(t *testing.T) {
	ev := message(t, "PACKET_IN", map[string]any{
		"datapath_id": "00:00:00:00:00:00:00:01",
		"msg": map[string]any{
			"in_port": 1,
			"reason":  "apply_action",
			"pkt": map[string]any{
				"eth_type": "0x0806",
				"eth_dst":  "ff:ff:ff:ff:ff:ff",
			},
		},
	})

	tests := []struct {
		fields map[string]any
		want   bool
	}{
		{map[string]any{"in_port": 1}, true},
		{map[string]any{"in_port": "1"}, true},
		{map[string]any{"in_port": 2}, false},
		{map[string]any{"reason": "APPLY_ACTION"}, true},
		{map[string]any{"eth_type": "0x0806"}, true},
		{map[string]any{"eth_dst": "FF:FF:FF:FF:FF:FF", "in_port": 1}, true},
		{map[string]any{"eth_dst": "FF:FF:FF:FF:FF:FF", "in_port": 9}, false},
		{map[string]any{"vlan_vid": 10}, false},
		{map[string]any{"datapath_id": "00:00:00:00:00:00:00:01"}, true},
	}

	for _, tt := range tests {
		m, err := NewMatcher(KindMessage, "PACKET_IN", Options{Fields: tt.fields})
		require.NoError(t, err)
		assert.Equal(t, tt.want, m.Match(ev), "%v", tt.fields)
	}
}

func TestMatchSubtype(t *testing.T) {
	ev := message(t, "REPLY.PORT_DESC", map[string]any{"datapath_id": "1"})

	exact, err := NewMatcher(KindMessage, "reply.port_desc", Options{})
	require.NoError(t, err)
	assert.True(t, exact.Match(ev))

	replies, err := NewMatcher(KindMessage, SubtypeFunc(func(typ string) bool {
		return strings.HasPrefix(typ, "REPLY.")
	}), Options{})
	require.NoError(t, err)
	assert.True(t, replies.Match(ev))
	assert.False(t, replies.Match(message(t, "PACKET_IN", map[string]any{"datapath_id": "1"})))
}

func TestMatchEvent(t *testing.T) {
	ev := event(t, "PORT_DOWN", map[string]any{"datapath_id": "00:00:00:00:00:00:00:05", "port_no": 3})

	m, err := NewMatcher(KindEvent, "port_down", Options{})
	require.NoError(t, err)
	assert.True(t, m.Match(ev))
	assert.True(t, m.Match(event(t, "PORT_DOWN", nil)))

	m, err = NewMatcher(KindEvent, "PORT_DOWN", Options{DatapathID: 5, Fields: map[string]any{"port_no": 3}})
	require.NoError(t, err)
	assert.True(t, m.Match(ev))
	assert.False(t, m.Match(event(t, "PORT_DOWN", nil)))
}

func TestIsMessageType(t *testing.T) {
	assert.True(t, IsMessageType("channel_up"))
	assert.True(t, IsMessageType("REQUEST.DESC"))
	assert.True(t, IsMessageType("REPLY.FLOW_DESC"))
	assert.False(t, IsMessageType("REQUEST."))
	assert.False(t, IsMessageType("START"))
}

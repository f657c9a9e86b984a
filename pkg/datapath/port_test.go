package datapath

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortNo(t *testing.T) {
	tests := []struct {
		input   any
		want    PortNo
		wantErr bool
	}{
		{1, 1, false},
		{uint32(2), 2, false},
		{"3", 3, false},
		{"0x10", 16, false},
		{json.Number("4"), 4, false},
		{"IN_PORT", PortInPort, false},
		{"table", PortTable, false},
		{"Normal", PortNormal, false},
		{"flood", PortFlood, false},
		{"ALL", PortAll, false},
		{"controller", PortController, false},
		{"LOCAL", PortLocal, false},
		{"any", PortAny, false},
		{uint64(0xffffffff), PortAny, false},
		{uint64(0x100000000), 0, true},
		{-1, 0, true},
		{"eth0", 0, true},
		{2.5, 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePortNo(tt.input)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidPort), "%v", tt.input)
			continue
		}
		require.NoError(t, err, "%v", tt.input)
		assert.Equal(t, tt.want, got, "%v", tt.input)
	}
}

func TestPortNoString(t *testing.T) {
	assert.Equal(t, "CONTROLLER", PortController.String())
	assert.Equal(t, "7", PortNo(7).String())
	assert.True(t, PortLocal.IsReserved())
	assert.False(t, PortNo(7).IsReserved())
}

func TestPortDescJSON(t *testing.T) {
	var descs []PortDesc
	data := `[
		{"port_no": 1, "hw_addr": "00:00:00:00:00:01", "name": "p1", "state": ["LINK_DOWN"]},
		{"port_no": "LOCAL", "name": "br0", "config": ["port_down"]}
	]`
	require.NoError(t, json.Unmarshal([]byte(data), &descs))
	require.Len(t, descs, 2)
	assert.Equal(t, PortNo(1), descs[0].PortNo)
	assert.Equal(t, PortLocal, descs[1].PortNo)

	out, err := json.Marshal(descs[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"port_no":"LOCAL","name":"br0","config":["port_down"]}`, string(out))
}

func TestPortFlags(t *testing.T) {
	var p Port
	p.apply(PortDesc{PortNo: 1, State: []string{"live", "link_down"}, Config: []string{"NO_FWD"}})

	assert.False(t, p.Up())
	assert.False(t, p.AdminDown())
	assert.Equal(t, []string{"LINK_DOWN", "LIVE"}, p.State)

	p.apply(PortDesc{PortNo: 1, Config: []string{"PORT_DOWN", "port_down"}})
	assert.True(t, p.Up())
	assert.True(t, p.AdminDown())
	assert.Equal(t, []string{"PORT_DOWN"}, p.Config)
}

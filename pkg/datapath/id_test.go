package datapath

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    ID
		wantErr bool
	}{
		{"colon hex", "00:00:00:00:00:00:00:01", 1, false},
		{"colon hex upper", "00:00:00:00:00:00:AB:CD", 0xabcd, false},
		{"short colon hex", "ab:cd", 0xabcd, false},
		{"0x hex", "0xabcd", 0xabcd, false},
		{"0X hex", "0XABCD", 0xabcd, false},
		{"decimal", "43981", 0xabcd, false},
		{"padded decimal", " 1 ", 1, false},
		{"int", 1, 1, false},
		{"int64", int64(7), 7, false},
		{"uint64 max", uint64(0xffffffffffffffff), 0xffffffffffffffff, false},
		{"json number", json.Number("12"), 12, false},
		{"ID", ID(5), 5, false},
		{"negative", -1, 0, true},
		{"too many octets", "00:00:00:00:00:00:00:00:01", 0, true},
		{"garbage", "switch-1", 0, true},
		{"empty", "", 0, true},
		{"float", 1.5, 0, true},
		{"nil", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDFormsAgree(t *testing.T) {
	forms := []any{"00:00:00:00:00:00:01:00", "0x100", "256", 256, json.Number("256")}
	for _, f := range forms {
		id, err := ParseID(f)
		require.NoError(t, err, "%v", f)
		assert.Equal(t, ID(256), id, "%v", f)
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "00:00:00:00:00:00:00:01", ID(1).String())
	assert.Equal(t, "ff:ff:ff:ff:ff:ff:ff:ff", ID(0xffffffffffffffff).String())

	id, err := ParseID(ID(0x1234abcd).String())
	require.NoError(t, err)
	assert.Equal(t, ID(0x1234abcd), id)
}

func TestIDJSON(t *testing.T) {
	data, err := json.Marshal(ID(2))
	require.NoError(t, err)
	assert.JSONEq(t, `"00:00:00:00:00:00:00:02"`, string(data))

	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`["0x10", 16, "00:10"]`), &ids))
	assert.Equal(t, []ID{16, 16, 16}, ids)
}

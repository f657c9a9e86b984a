package datapath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID is returned when a value cannot be read as a datapath id.
var ErrInvalidID = errors.New("invalid datapath id")

// ID is a canonical 64-bit datapath id.
type ID uint64

// String formats the id as eight colon-separated hex octets.
func (id ID) String() string {
	var b strings.Builder
	for i := 7; i >= 0; i-- {
		fmt.Fprintf(&b, "%02x", byte(id>>(8*i)))
		if i > 0 {
			b.WriteByte(':')
		}
	}
	return b.String()
}

// MarshalJSON writes the colon-hex form used by oftr.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts any form ParseID accepts.
func (id *ID) UnmarshalJSON(data []byte) error {
	v, err := decodeScalar(data)
	if err != nil {
		return err
	}
	parsed, err := ParseID(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID normalizes a datapath id. It accepts colon-separated hex
// ("00:00:00:00:00:00:00:01"), 0x-prefixed hex, decimal strings,
// json.Number and non-negative integers.
func ParseID(v any) (ID, error) {
	switch v := v.(type) {
	case ID:
		return v, nil
	case uint64:
		return ID(v), nil
	case uint32:
		return ID(v), nil
	case uint:
		return ID(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidID, v)
		}
		return ID(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidID, v)
		}
		return ID(v), nil
	case json.Number:
		return parseIDString(v.String())
	case string:
		return parseIDString(v)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidID, v)
	}
}

// decodeScalar decodes a JSON string or number, keeping numbers exact.
func decodeScalar(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func parseIDString(s string) (ID, error) {
	s = strings.TrimSpace(s)

	var (
		n   uint64
		err error
	)
	switch {
	case strings.Contains(s, ":"):
		hex := strings.ReplaceAll(s, ":", "")
		if len(hex) == 0 || len(hex) > 16 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		n, err = strconv.ParseUint(hex, 16, 64)
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, err = strconv.ParseUint(s[2:], 16, 64)
	default:
		n, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(n), nil
}

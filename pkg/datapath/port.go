package datapath

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidPort is returned when a value cannot be read as a port number.
var ErrInvalidPort = errors.New("invalid port number")

// PortNo is an OpenFlow port number.
type PortNo uint32

// Reserved port numbers.
const (
	PortMax        PortNo = 0xffffff00
	PortInPort     PortNo = 0xfffffff8
	PortTable      PortNo = 0xfffffff9
	PortNormal     PortNo = 0xfffffffa
	PortFlood      PortNo = 0xfffffffb
	PortAll        PortNo = 0xfffffffc
	PortController PortNo = 0xfffffffd
	PortLocal      PortNo = 0xfffffffe
	PortAny        PortNo = 0xffffffff
)

var portNames = map[PortNo]string{
	PortMax:        "MAX",
	PortInPort:     "IN_PORT",
	PortTable:      "TABLE",
	PortNormal:     "NORMAL",
	PortFlood:      "FLOOD",
	PortAll:        "ALL",
	PortController: "CONTROLLER",
	PortLocal:      "LOCAL",
	PortAny:        "ANY",
}

var portValues = func() map[string]PortNo {
	m := make(map[string]PortNo, len(portNames))
	for no, name := range portNames {
		m[name] = no
	}
	return m
}()

// String returns the symbolic name of a reserved port or its decimal value.
func (p PortNo) String() string {
	if name, ok := portNames[p]; ok {
		return name
	}
	return strconv.FormatUint(uint64(p), 10)
}

// IsReserved reports whether p has a symbolic name.
func (p PortNo) IsReserved() bool {
	_, ok := portNames[p]
	return ok
}

// MarshalJSON writes reserved ports by name and others as numbers.
func (p PortNo) MarshalJSON() ([]byte, error) {
	if name, ok := portNames[p]; ok {
		return json.Marshal(name)
	}
	return []byte(strconv.FormatUint(uint64(p), 10)), nil
}

// UnmarshalJSON accepts any form ParsePortNo accepts.
func (p *PortNo) UnmarshalJSON(data []byte) error {
	v, err := decodeScalar(data)
	if err != nil {
		return err
	}
	parsed, err := ParsePortNo(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePortNo normalizes a port number. Symbolic names are case-insensitive.
func ParsePortNo(v any) (PortNo, error) {
	switch v := v.(type) {
	case PortNo:
		return v, nil
	case uint32:
		return PortNo(v), nil
	case int:
		if v < 0 || uint64(v) > uint64(PortAny) {
			return 0, fmt.Errorf("%w: %d", ErrInvalidPort, v)
		}
		return PortNo(v), nil
	case uint64:
		if v > uint64(PortAny) {
			return 0, fmt.Errorf("%w: %d", ErrInvalidPort, v)
		}
		return PortNo(v), nil
	case json.Number:
		return parsePortString(v.String())
	case string:
		return parsePortString(v)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidPort, v)
	}
}

func parsePortString(s string) (PortNo, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if no, ok := portValues[s]; ok {
		return no, nil
	}

	var (
		n   uint64
		err error
	)
	if strings.HasPrefix(s, "0X") {
		n, err = strconv.ParseUint(s[2:], 16, 32)
	} else {
		n, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return PortNo(n), nil
}

// PortDesc is a port description as carried in FEATURES_REPLY,
// REPLY.PORT_DESC and PORT_STATUS messages.
type PortDesc struct {
	PortNo PortNo   `json:"port_no"`
	HwAddr string   `json:"hw_addr,omitempty"`
	Name   string   `json:"name,omitempty"`
	Config []string `json:"config,omitempty"`
	State  []string `json:"state,omitempty"`
}

// Port is the stored state of one switch port.
type Port struct {
	No     PortNo
	HwAddr string
	Name   string
	Config []string
	State  []string
}

// Up reports whether the link is up.
func (p Port) Up() bool {
	return !hasFlag(p.State, "LINK_DOWN")
}

// AdminDown reports whether the port is administratively down.
func (p Port) AdminDown() bool {
	return hasFlag(p.Config, "PORT_DOWN")
}

func (p Port) String() string {
	return fmt.Sprintf("port %s (%s)", p.No, p.Name)
}

func (p *Port) apply(desc PortDesc) {
	p.HwAddr = strings.ToLower(desc.HwAddr)
	p.Name = desc.Name
	p.Config = normalizeFlags(desc.Config)
	p.State = normalizeFlags(desc.State)
}

func (p *Port) clone() Port {
	c := *p
	c.Config = append([]string(nil), p.Config...)
	c.State = append([]string(nil), p.State...)
	return c
}

// normalizeFlags upper-cases, sorts and dedups a flag set.
func normalizeFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, strings.ToUpper(f))
	}
	sort.Strings(out)

	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

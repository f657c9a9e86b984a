package oftrtest

import (
	"strings"
	"sync"

	"github.com/zofgo/zof/pkg/rpc"
)

// Switch is a simulated OpenFlow switch attached to a Sim.
type Switch struct {
	// DatapathID in colon-hex form.
	DatapathID string

	// Ports are port descriptions as oftr reports them.
	Ports []map[string]any

	// Silent switches never reply.
	Silent bool

	mu       sync.Mutex
	received []map[string]any
}

// Port builds a port description.
func Port(no any, name string, state ...string) map[string]any {
	if state == nil {
		state = []string{}
	}
	return map[string]any{
		"port_no": no,
		"hw_addr": "0e:00:00:00:00:01",
		"name":    name,
		"config":  []string{},
		"state":   state,
	}
}

// Received returns the messages the switch was sent.
func (sw *Switch) Received() []map[string]any {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return append([]map[string]any(nil), sw.received...)
}

// ReceivedTypes returns the type of every message the switch was sent.
func (sw *Switch) ReceivedTypes() []string {
	var types []string
	for _, m := range sw.Received() {
		t, _ := m["type"].(string)
		types = append(types, t)
	}
	return types
}

// Attach connects sw to the Sim's driver. The driver sees CHANNEL_UP with
// the switch's ports in the features reply. It returns the connection id.
func (s *Sim) Attach(sw *Switch) uint64 {
	l := &link{local: s.net.newConnID(), endpoint: "127.0.0.1:6653", sw: sw}
	s.addLink(l)
	s.channelUp(l, sw.DatapathID, sw.Ports)
	return l.local
}

// Detach disconnects the switch on connID. The driver sees CHANNEL_DOWN.
func (s *Sim) Detach(connID uint64) {
	s.hangup(connID)
}

// EmitFrom writes an OpenFlow message as if sent by the switch on connID.
func (s *Sim) EmitFrom(connID uint64, msg map[string]any) error {
	l := s.link(connID)
	ev := copyMap(msg)
	ev["conn_id"] = connID
	if l != nil && l.sw != nil {
		ev["datapath_id"] = l.sw.DatapathID
	}
	if _, ok := ev["version"]; !ok {
		ev["version"] = DefaultVersion
	}
	if _, ok := ev["xid"]; !ok {
		ev["xid"] = 0
	}
	return s.emit(ev)
}

func (sw *Switch) handle(s *Sim, l *link, msg map[string]any) {
	sw.mu.Lock()
	sw.received = append(sw.received, msg)
	sw.mu.Unlock()

	if sw.Silent {
		return
	}

	xid := msg["xid"]
	typ, _ := msg["type"].(string)

	switch typ {
	case "BARRIER_REQUEST":
		s.EmitFrom(l.local, map[string]any{"type": "BARRIER_REPLY", "xid": xid})
	case "ECHO_REQUEST":
		s.EmitFrom(l.local, map[string]any{"type": "ECHO_REPLY", "xid": xid, "msg": msg["msg"]})
	case "FEATURES_REQUEST":
		s.EmitFrom(l.local, map[string]any{
			"type": "FEATURES_REPLY",
			"xid":  xid,
			"msg": map[string]any{
				"datapath_id": sw.DatapathID,
				"n_buffers":   0,
				"n_tables":    254,
				"ports":       sw.ports(),
			},
		})
	case "REQUEST.DESC":
		s.EmitFrom(l.local, map[string]any{
			"type": "REPLY.DESC",
			"xid":  xid,
			"msg": map[string]any{
				"mfr_desc":   "zof",
				"hw_desc":    "oftrtest",
				"sw_desc":    SwDesc,
				"serial_num": sw.DatapathID,
				"dp_desc":    "simulated switch",
			},
		})
	case "REQUEST.PORT_DESC":
		sw.replyPortDesc(s, l, xid)
	default:
		if strings.HasPrefix(typ, "REQUEST.") {
			s.EmitFrom(l.local, map[string]any{
				"type": rpc.TypeError,
				"xid":  xid,
				"msg":  map[string]any{"type": "BAD_REQUEST", "code": "BAD_MULTIPART"},
			})
		}
	}
}

// replyPortDesc answers with one multipart part per port.
func (sw *Switch) replyPortDesc(s *Sim, l *link, xid any) {
	ports := sw.ports()
	if len(ports) == 0 {
		s.EmitFrom(l.local, map[string]any{"type": "REPLY.PORT_DESC", "xid": xid, "msg": ports})
		return
	}
	for i, p := range ports {
		part := map[string]any{"type": "REPLY.PORT_DESC", "xid": xid, "msg": []map[string]any{p}}
		if i < len(ports)-1 {
			part["flags"] = []string{rpc.FlagMore}
		}
		s.EmitFrom(l.local, part)
	}
}

func (sw *Switch) ports() []map[string]any {
	if sw.Ports == nil {
		return []map[string]any{}
	}
	return sw.Ports
}

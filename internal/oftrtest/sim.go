package oftrtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/zofgo/zof/pkg/rpc"
)

// JSON-RPC error codes used by the simulator.
const (
	CodeInvalidRequest = -32600
	CodeUnknownMethod  = -32601
	CodeConnection     = -32000
)

// Description values reported for OFP.DESCRIPTION.
const (
	APIVersion = "0.9"
	SwDesc     = "0.9.0 (oftrtest)"
)

// DefaultVersion is the OpenFlow version reported on simulated channels.
const DefaultVersion = 4

// Sim is one simulated oftr process.
type Sim struct {
	net  *Network
	dpid string

	mu       sync.Mutex
	writer   *rpc.FrameWriter
	pipe     net.Conn
	links    map[uint64]*link
	requests []map[string]any
	done     chan struct{}
}

// link is one OpenFlow channel as seen from a Sim.
type link struct {
	local    uint64
	endpoint string

	// The far end is either another Sim or a simulated switch.
	remote     *Sim
	remoteConn uint64
	sw         *Switch
}

// New creates a simulator on n. A nil network gives the Sim a private one.
// dpid is the datapath id the Sim reports to peers it connects to.
func New(n *Network, dpid string) *Sim {
	if n == nil {
		n = NewNetwork()
	}
	if dpid == "" {
		dpid = "00:00:00:00:00:00:00:00"
	}
	return &Sim{
		net:   n,
		dpid:  dpid,
		links: make(map[uint64]*link),
	}
}

// Dial starts the simulator and returns the driver's end of the stream.
// Its signature matches driver.Dialer.
func (s *Sim) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipe != nil {
		return nil, errors.New("oftrtest: sim already dialed")
	}

	client, server := net.Pipe()
	s.pipe = server
	s.writer = rpc.NewFrameWriterWithMaxSize(server, 1<<30)
	s.done = make(chan struct{})

	go s.serve(server, s.done)
	return client, nil
}

// Done is closed when the current stream ends.
func (s *Sim) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Crash ends the stream from the simulator's side, as if oftr exited.
func (s *Sim) Crash() {
	s.mu.Lock()
	pipe := s.pipe
	s.mu.Unlock()
	if pipe != nil {
		pipe.Close()
	}
}

// Requests returns every request received so far.
func (s *Sim) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.requests...)
}

// Methods returns the method of every request received so far.
func (s *Sim) Methods() []string {
	var methods []string
	for _, r := range s.Requests() {
		m, _ := r["method"].(string)
		methods = append(methods, m)
	}
	return methods
}

// ConnIDs returns the ids of the Sim's open channels.
func (s *Sim) ConnIDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	return ids
}

func (s *Sim) serve(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer s.shutdown(conn)

	reader := rpc.NewFrameReader(conn)
	for {
		data, err := reader.ReadFrame()
		if err != nil {
			return
		}
		s.handle(data)
	}
}

// shutdown hangs up every channel as oftr does when it exits.
func (s *Sim) shutdown(conn net.Conn) {
	s.net.unlisten(s, 0)

	s.mu.Lock()
	links := s.links
	s.links = make(map[uint64]*link)
	s.writer = nil
	s.pipe = nil
	s.mu.Unlock()

	for _, l := range links {
		if l.remote != nil {
			l.remote.hangup(l.remoteConn)
		}
	}
	conn.Close()
}

func (s *Sim) handle(data []byte) {
	var req map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		s.write(map[string]any{"error": map[string]any{"code": CodeInvalidRequest, "message": "parse error"}})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	id := req["id"]
	method, _ := req["method"].(string)
	params, _ := req["params"].(map[string]any)

	if method == "" {
		s.replyError(id, CodeInvalidRequest, "missing required key 'method'")
		return
	}

	switch method {
	case rpc.MethodDescription:
		s.reply(id, map[string]any{
			"api_version": APIVersion,
			"sw_desc":     SwDesc,
			"versions":    []int{1, 2, 3, 4, 5, 6},
		})
	case rpc.MethodListen:
		s.handleListen(id, params)
	case rpc.MethodConnect:
		s.handleConnect(id, params)
	case rpc.MethodClose:
		count := s.closeConn(toUint(params["conn_id"]))
		s.reply(id, map[string]any{"count": count})
	case rpc.MethodAddIdentity:
		if _, ok := params["cert"].(string); !ok {
			s.replyError(id, CodeInvalidRequest, "missing required key 'cert'")
			return
		}
		s.reply(id, map[string]any{"tls_id": s.net.newTLSID()})
	case rpc.MethodSend:
		s.handleSend(id, params)
	default:
		s.replyError(id, CodeUnknownMethod, fmt.Sprintf("unknown method '%s'", method))
	}
}

func (s *Sim) handleListen(id any, params map[string]any) {
	endpoint, _ := params["endpoint"].(string)
	if endpoint == "" {
		s.replyError(id, CodeInvalidRequest, "missing required key 'endpoint'")
		return
	}

	connID := s.net.newConnID()
	if !s.net.listen(endpoint, s, connID) {
		s.replyError(id, CodeConnection, "address in use: "+endpoint)
		return
	}
	s.reply(id, map[string]any{"conn_id": connID})
}

func (s *Sim) handleConnect(id any, params map[string]any) {
	endpoint, _ := params["endpoint"].(string)
	if endpoint == "" {
		s.replyError(id, CodeInvalidRequest, "missing required key 'endpoint'")
		return
	}

	l, ok := s.net.lookup(endpoint)
	if !ok {
		s.replyError(id, CodeConnection, "connection refused: "+endpoint)
		return
	}

	peer := l.sim
	local := &link{local: s.net.newConnID(), endpoint: endpoint, remote: peer}
	remote := &link{local: s.net.newConnID(), endpoint: endpoint, remote: s, remoteConn: local.local}
	local.remoteConn = remote.local

	s.addLink(local)
	peer.addLink(remote)

	peer.channelUp(remote, s.dpid, nil)
	s.channelUp(local, peer.dpid, nil)
	s.reply(id, map[string]any{"conn_id": local.local})
}

func (s *Sim) handleSend(id any, params map[string]any) {
	replyID := id
	if replyID == nil {
		replyID = params["xid"]
	}

	typ, _ := params["type"].(string)
	if typ == "" {
		s.replyError(replyID, CodeInvalidRequest, "missing required key 'type'")
		return
	}

	connID := toUint(params["conn_id"])
	l := s.link(connID)
	if l == nil {
		s.emit(map[string]any{
			"type":    rpc.TypeChannelAlert,
			"xid":     params["xid"],
			"conn_id": connID,
			"alert":   fmt.Sprintf("unknown conn_id %d", connID),
		})
		return
	}

	switch {
	case l.sw != nil:
		l.sw.handle(s, l, params)
	case l.remote != nil:
		msg := copyMap(params)
		msg["conn_id"] = l.remoteConn
		msg["datapath_id"] = s.dpid
		if _, ok := msg["version"]; !ok {
			msg["version"] = DefaultVersion
		}
		l.remote.emit(msg)
	}
}

// closeConn closes a listener or channel and returns the number closed.
func (s *Sim) closeConn(connID uint64) int {
	if n := s.net.unlisten(s, connID); n > 0 {
		return n
	}

	l := s.removeLink(connID)
	if l == nil {
		return 0
	}
	s.channelDown(l)
	if l.remote != nil {
		l.remote.hangup(l.remoteConn)
	}
	return 1
}

// hangup closes a channel from the far end.
func (s *Sim) hangup(connID uint64) {
	if l := s.removeLink(connID); l != nil {
		s.channelDown(l)
	}
}

func (s *Sim) addLink(l *link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.local] = l
}

func (s *Sim) link(connID uint64) *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[connID]
}

func (s *Sim) removeLink(connID uint64) *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.links[connID]
	delete(s.links, connID)
	return l
}

func (s *Sim) channelUp(l *link, dpid string, ports []map[string]any) {
	if ports == nil {
		ports = []map[string]any{}
	}
	s.emit(map[string]any{
		"type":        rpc.TypeChannelUp,
		"xid":         0,
		"conn_id":     l.local,
		"datapath_id": dpid,
		"version":     DefaultVersion,
		"msg": map[string]any{
			"endpoint": l.endpoint,
			"features": map[string]any{
				"datapath_id": dpid,
				"n_buffers":   0,
				"n_tables":    254,
				"ports":       ports,
			},
		},
	})
}

func (s *Sim) channelDown(l *link) {
	dpid := s.dpid
	switch {
	case l.sw != nil:
		dpid = l.sw.DatapathID
	case l.remote != nil:
		dpid = l.remote.dpid
	}
	s.emit(map[string]any{
		"type":        rpc.TypeChannelDown,
		"xid":         0,
		"conn_id":     l.local,
		"datapath_id": dpid,
		"version":     DefaultVersion,
		"msg":         map[string]any{"endpoint": l.endpoint},
	})
}

// Emit writes an OFP.MESSAGE notification carrying ev.
func (s *Sim) Emit(ev map[string]any) error {
	return s.emit(ev)
}

func (s *Sim) emit(ev map[string]any) error {
	return s.write(map[string]any{"method": rpc.MethodMessage, "params": ev})
}

// Notify writes a notification with an arbitrary method.
func (s *Sim) Notify(method string, params any) error {
	return s.write(map[string]any{"method": method, "params": params})
}

// EmitRaw writes data as one frame, valid JSON or not.
func (s *Sim) EmitRaw(data []byte) error {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()
	if w == nil {
		return io.ErrClosedPipe
	}
	return w.WriteFrame(data)
}

func (s *Sim) reply(id any, result any) {
	if id == nil {
		return
	}
	s.write(map[string]any{"id": id, "result": result})
}

func (s *Sim) replyError(id any, code int, message string) {
	if id == nil {
		return
	}
	s.write(map[string]any{"id": id, "error": map[string]any{"code": code, "message": message}})
}

func (s *Sim) write(obj any) error {
	data, err := rpc.Marshal(obj)
	if err != nil {
		return err
	}
	return s.EmitRaw(data)
}

func toUint(v any) uint64 {
	switch n := v.(type) {
	case json.Number:
		u, _ := strconv.ParseUint(n.String(), 10, 64)
		return u
	case uint64:
		return n
	case int:
		return uint64(n)
	case float64:
		return uint64(n)
	}
	return 0
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package datapath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zofgo/zof/pkg/rpc"
	"github.com/zofgo/zof/pkg/taskset"
)

// ErrClosed is returned by Send and Request once a datapath is no longer live.
var ErrClosed = errors.New("datapath closed")

// Conn is the driver surface a datapath sends through.
type Conn interface {
	Send(msg *rpc.Message) error
	Request(ctx context.Context, msg *rpc.Message) (*rpc.Event, error)
	CloseNowait(connID uint64) error
}

// Datapath is one connected switch.
type Datapath struct {
	id     ID
	connID uint64
	conn   Conn
	tasks  *taskset.TaskSet
	logger *slog.Logger

	mu    sync.RWMutex
	live  bool
	ready bool
	ports map[PortNo]*Port
	order []PortNo
	attrs map[string]any
}

func newDatapath(id ID, connID uint64, cfg *Config) *Datapath {
	dp := &Datapath{
		id:     id,
		connID: connID,
		conn:   cfg.Conn,
		live:   true,
		ports:  make(map[PortNo]*Port),
		attrs:  make(map[string]any),
	}
	dp.logger = cfg.logger().With("dpid", id.String(), "conn_id", connID)
	dp.tasks = taskset.New(cfg.context(), func(t *taskset.Task, err error) {
		if cfg.OnTaskFailure != nil {
			cfg.OnTaskFailure(dp, t, err)
			return
		}
		dp.logger.Error("datapath task failed", "task", t.String(), "error", err)
	})
	return dp
}

// ID returns the datapath id.
func (dp *Datapath) ID() ID {
	return dp.id
}

// ConnID returns the connection id assigned by oftr.
func (dp *Datapath) ConnID() uint64 {
	return dp.connID
}

// IsLive reports whether the connection is still up.
func (dp *Datapath) IsLive() bool {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.live
}

// IsReady reports whether connection setup has completed.
func (dp *Datapath) IsReady() bool {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	return dp.ready
}

// SetReady marks connection setup as complete. It has no effect on a
// detached datapath.
func (dp *Datapath) SetReady() {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.live {
		dp.ready = true
	}
}

// Tasks returns the task set scoped to this connection.
func (dp *Datapath) Tasks() *taskset.TaskSet {
	return dp.tasks
}

// CreateTask runs fn for the lifetime of this connection.
func (dp *Datapath) CreateTask(fn func(ctx context.Context) error) *taskset.Task {
	return dp.tasks.Create(fn)
}

// Send sends msg on this connection without waiting for a reply. The
// caller's message is not modified.
func (dp *Datapath) Send(msg *rpc.Message) error {
	if !dp.IsLive() {
		return fmt.Errorf("send %s to %s: %w", msg.Type, dp, ErrClosed)
	}
	dp.logger.Debug("send", "type", msg.Type)
	return dp.conn.Send(dp.scoped(msg))
}

// Request sends msg on this connection and waits for the reply.
func (dp *Datapath) Request(ctx context.Context, msg *rpc.Message) (*rpc.Event, error) {
	if !dp.IsLive() {
		return nil, fmt.Errorf("request %s from %s: %w", msg.Type, dp, ErrClosed)
	}
	dp.logger.Debug("request", "type", msg.Type)
	return dp.conn.Request(ctx, dp.scoped(msg))
}

func (dp *Datapath) scoped(msg *rpc.Message) *rpc.Message {
	m := *msg
	m.ConnID = dp.connID
	m.DatapathID = ""
	return &m
}

// Close closes the connection ahead of the switch. The datapath must be
// ready; closing it twice is a programming error and panics. Tasks are
// cancelled and the close request is sent without waiting for the result.
func (dp *Datapath) Close() error {
	dp.mu.Lock()
	if !dp.live {
		dp.mu.Unlock()
		panic(fmt.Sprintf("datapath: close of closed %s", dp))
	}
	if !dp.ready {
		dp.mu.Unlock()
		panic(fmt.Sprintf("datapath: close of %s before it is ready", dp))
	}
	dp.live = false
	dp.ready = false
	dp.mu.Unlock()

	dp.logger.Debug("close")
	dp.tasks.Cancel()
	return dp.conn.CloseNowait(dp.connID)
}

// Detach marks the connection as gone and cancels its tasks. Ports and
// attributes stay readable. Detach is idempotent.
func (dp *Datapath) Detach() {
	dp.mu.Lock()
	dp.live = false
	dp.ready = false
	dp.mu.Unlock()

	dp.tasks.Cancel()
}

// AddPort makes sure port no exists and returns it.
func (dp *Datapath) AddPort(no any) (Port, error) {
	portNo, err := ParsePortNo(no)
	if err != nil {
		return Port{}, err
	}

	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.portLocked(portNo).clone(), nil
}

// UpdatePort creates or replaces a port from its description and returns
// the previous state, if any.
func (dp *Datapath) UpdatePort(desc PortDesc) (old Port, existed bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if p, ok := dp.ports[desc.PortNo]; ok {
		old, existed = p.clone(), true
	}
	dp.portLocked(desc.PortNo).apply(desc)
	return old, existed
}

// AddPorts applies UpdatePort to every description.
func (dp *Datapath) AddPorts(descs []PortDesc) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	for _, desc := range descs {
		dp.portLocked(desc.PortNo).apply(desc)
	}
}

// DeletePort removes port no and returns its last state.
func (dp *Datapath) DeletePort(no PortNo) (Port, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	p, ok := dp.ports[no]
	if !ok {
		return Port{}, false
	}
	delete(dp.ports, no)
	for i, n := range dp.order {
		if n == no {
			dp.order = append(dp.order[:i], dp.order[i+1:]...)
			break
		}
	}
	return p.clone(), true
}

// Port returns port no.
func (dp *Datapath) Port(no PortNo) (Port, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()

	p, ok := dp.ports[no]
	if !ok {
		return Port{}, false
	}
	return p.clone(), true
}

// Ports returns every port in the order it was first added.
func (dp *Datapath) Ports() []Port {
	dp.mu.RLock()
	defer dp.mu.RUnlock()

	ports := make([]Port, 0, len(dp.order))
	for _, no := range dp.order {
		ports = append(ports, dp.ports[no].clone())
	}
	return ports
}

func (dp *Datapath) portLocked(no PortNo) *Port {
	p, ok := dp.ports[no]
	if !ok {
		p = &Port{No: no}
		dp.ports[no] = p
		dp.order = append(dp.order, no)
	}
	return p
}

// Set stores an application attribute.
func (dp *Datapath) Set(key string, value any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.attrs[key] = value
}

// Get returns an application attribute.
func (dp *Datapath) Get(key string) (any, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	v, ok := dp.attrs[key]
	return v, ok
}

func (dp *Datapath) String() string {
	return fmt.Sprintf("datapath %s (conn %d)", dp.id, dp.connID)
}

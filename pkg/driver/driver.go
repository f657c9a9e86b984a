package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zofgo/zof/pkg/log"
	"github.com/zofgo/zof/pkg/rpc"
)

// Driver owns one oftr stream and correlates its replies.
type Driver struct {
	config Config
	id     string
	logger *slog.Logger
	xids   *rpc.XidAllocator

	mu         sync.Mutex
	open       bool
	conn       io.ReadWriteCloser
	framer     *rpc.Framer
	queue      *eventQueue
	events     chan *rpc.Event
	stop       chan struct{}
	readerDone chan struct{}
	pumpDone   chan struct{}

	pendingMu sync.Mutex
	pending   map[uint32]*pendingRequest
	accepting bool
}

// pendingRequest is a request waiting for its reply.
type pendingRequest struct {
	id        uint32
	method    string
	connID    uint64
	sent      time.Time
	done      chan reply
	multipart *rpc.Event
}

// reply resolves a pendingRequest. Exactly one of the fields is set.
type reply struct {
	result json.RawMessage
	event  *rpc.Event
	err    error
}

// New creates a driver. It does nothing until Open.
func New(config Config) *Driver {
	if config.Xids == nil {
		config.Xids = &rpc.XidAllocator{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Driver{
		config:  config,
		id:      id,
		logger:  logger.With("component", "driver", "driver_id", id),
		xids:    config.Xids,
		pending: make(map[uint32]*pendingRequest),
	}
}

// ID returns the driver's instance id.
func (d *Driver) ID() string {
	return d.id
}

// Xids returns the driver's transaction id allocator.
func (d *Driver) Xids() *rpc.XidAllocator {
	return d.xids
}

// IsOpen reports whether the driver is open.
func (d *Driver) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Open starts oftr (or dials the configured transport) and the reader.
// Opening a driver that is already open is a programming error and panics.
func (d *Driver) Open(ctx context.Context) error {
	d.mu.Lock()
	if d.open {
		d.mu.Unlock()
		panic("driver: Open called on an open driver")
	}
	d.open = true
	d.mu.Unlock()

	conn, err := d.dial(ctx)
	if err != nil {
		d.mu.Lock()
		d.open = false
		d.mu.Unlock()
		return fmt.Errorf("driver: open: %w", err)
	}

	framer := rpc.NewFramer(conn, conn)
	if d.config.ProtocolLogger != nil {
		framer.SetLogger(d.config.ProtocolLogger, d.id)
	}

	queue := newEventQueue()
	events := make(chan *rpc.Event)
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	d.pendingMu.Lock()
	d.accepting = true
	d.pendingMu.Unlock()

	d.mu.Lock()
	d.conn = conn
	d.framer = framer
	d.queue = queue
	d.events = events
	d.stop = stop
	d.readerDone = readerDone
	d.pumpDone = pumpDone
	d.mu.Unlock()

	go d.readLoop(framer, queue, readerDone)
	go queue.pump(events, stop, readerDone, pumpDone)

	d.logger.Debug("driver open")
	d.traceState("CLOSED", "OPEN")
	return nil
}

func (d *Driver) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if d.config.Dialer != nil {
		return d.config.Dialer(ctx)
	}
	return startProcess(ctx, d.config.command(), d.logger)
}

// Close terminates oftr, fails every pending request with
// rpc.ErrConnectionClosed and closes the Events channel. Events not yet
// received from Events are discarded. Closing a closed driver is a no-op.
func (d *Driver) Close() error {
	d.mu.Lock()
	if !d.open || d.conn == nil {
		d.mu.Unlock()
		return nil
	}
	conn, queue, stop := d.conn, d.queue, d.stop
	readerDone, pumpDone := d.readerDone, d.pumpDone
	d.open = false
	d.conn = nil
	d.framer = nil
	d.mu.Unlock()

	if n := queue.len(); n > 0 {
		d.logger.Warn("closing with events in queue", "count", n)
	}

	err := conn.Close()
	<-readerDone
	d.failPending(rpc.ErrConnectionClosed)

	close(stop)
	<-pumpDone

	d.logger.Debug("driver closed")
	d.traceState("OPEN", "CLOSED")
	return err
}

// Events returns the channel of unsolicited events. The channel is replaced
// on every Open. It is closed by Close, or once oftr has exited and every
// event read before the exit has been received.
func (d *Driver) Events() <-chan *rpc.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events
}

// Done is closed when the reader stops, either because oftr exited or
// because the driver was closed. It is nil before the first Open.
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readerDone
}

// PostEvent queues ev behind every event already received, as if oftr had
// sent it. After oftr has exited it fails with rpc.ErrConnectionClosed.
func (d *Driver) PostEvent(ev *rpc.Event) error {
	d.mu.Lock()
	queue, readerDone, open := d.queue, d.readerDone, d.open && d.conn != nil
	d.mu.Unlock()

	if !open {
		return rpc.ErrNotOpen
	}
	select {
	case <-readerDone:
		return rpc.ErrConnectionClosed
	default:
	}
	queue.push(ev)
	return nil
}

// PendingCount returns the number of requests waiting for a reply.
func (d *Driver) PendingCount() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pending)
}

// Send writes an OpenFlow message without waiting for a reply. A zero xid
// is assigned on a copy; msg itself is not modified.
func (d *Driver) Send(msg *rpc.Message) error {
	framer, err := d.currentFramer()
	if err != nil {
		return err
	}

	m := *msg
	if m.Xid == 0 {
		m.Xid = d.nextXid()
	} else if !rpc.IsReserved(m.Xid) {
		return fmt.Errorf("%w: %d", rpc.ErrInvalidXid, m.Xid)
	}

	return d.write(framer, &rpc.Request{Method: rpc.MethodSend, Params: &m}, frameMeta{
		kind:   log.MessageTypeNotification,
		xid:    m.Xid,
		ofType: m.Type,
		connID: m.ConnID,
	})
}

// Request writes an OpenFlow message and waits for the reply with the same
// xid. Multipart replies are returned as one event holding every part's msg
// list. ERROR and CHANNEL_ALERT replies fail with *rpc.RequestError.
func (d *Driver) Request(ctx context.Context, msg *rpc.Message) (*rpc.Event, error) {
	framer, err := d.currentFramer()
	if err != nil {
		return nil, err
	}

	m := *msg
	if m.Xid != 0 && !rpc.IsReserved(m.Xid) {
		return nil, fmt.Errorf("%w: %d", rpc.ErrInvalidXid, m.Xid)
	}

	p, err := d.register(&m.Xid, rpc.MethodSend, m.ConnID)
	if err != nil {
		return nil, err
	}

	err = d.write(framer, &rpc.Request{Method: rpc.MethodSend, Params: &m}, frameMeta{
		kind:   log.MessageTypeRequest,
		xid:    m.Xid,
		ofType: m.Type,
		connID: m.ConnID,
	})
	if err != nil {
		d.unregister(p)
		return nil, err
	}

	r := d.wait(ctx, p)
	if r.err != nil {
		return nil, r.err
	}
	if r.event != nil {
		return r.event, nil
	}

	ev, err := rpc.DecodeEvent(r.result)
	if err != nil {
		return nil, fmt.Errorf("driver: reply to xid %d: %w", m.Xid, err)
	}
	return ev, nil
}

// Call issues a JSON-RPC request and returns its result. A zero id is
// assigned on a copy; a caller-chosen id that is already outstanding fails
// with rpc.ErrDuplicateXid.
func (d *Driver) Call(ctx context.Context, req *rpc.Request) (json.RawMessage, error) {
	framer, err := d.currentFramer()
	if err != nil {
		return nil, err
	}

	r := *req
	p, err := d.register(&r.ID, r.Method, 0)
	if err != nil {
		return nil, err
	}

	err = d.write(framer, &r, frameMeta{
		kind:   log.MessageTypeRequest,
		xid:    r.ID,
		method: r.Method,
	})
	if err != nil {
		d.unregister(p)
		return nil, err
	}

	res := d.wait(ctx, p)
	if res.err != nil {
		return nil, res.err
	}
	if res.event != nil {
		return res.event.Raw, nil
	}
	return res.result, nil
}

// Notify writes a JSON-RPC request without an id; no reply is expected.
func (d *Driver) Notify(req *rpc.Request) error {
	framer, err := d.currentFramer()
	if err != nil {
		return err
	}

	r := *req
	r.ID = 0
	return d.write(framer, &r, frameMeta{
		kind:   log.MessageTypeNotification,
		method: r.Method,
	})
}

func (d *Driver) currentFramer() (*rpc.Framer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.framer == nil {
		return nil, rpc.ErrNotOpen
	}
	return d.framer, nil
}

// frameMeta describes an outbound frame for the protocol log.
type frameMeta struct {
	kind   log.MessageType
	xid    uint32
	method string
	ofType string
	connID uint64
}

func (d *Driver) write(framer *rpc.Framer, req *rpc.Request, meta frameMeta) error {
	data, err := rpc.Marshal(req)
	if err != nil {
		stats.RequestFailed("encode")
		return fmt.Errorf("driver: encode %s: %w", req.Method, err)
	}

	if err := framer.WriteFrame(data); err != nil {
		if errors.Is(err, rpc.ErrMessageTooLarge) {
			stats.RequestFailed("too_large")
		} else {
			stats.RequestFailed("write")
		}
		return fmt.Errorf("driver: %s: %w", req.Method, err)
	}
	stats.SentFrame()

	method := meta.method
	if method == "" {
		method = req.Method
	}
	d.trace(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerRPC,
		Category:  log.CategoryMessage,
		ConnID:    meta.connID,
		Message: &log.MessageEvent{
			Type:   meta.kind,
			Xid:    meta.xid,
			Method: method,
			OFType: meta.ofType,
		},
	})
	return nil
}

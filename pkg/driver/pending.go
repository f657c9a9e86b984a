package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/zofgo/zof/pkg/log"
	"github.com/zofgo/zof/pkg/rpc"
)

// nextXid returns a dynamic xid that is not outstanding.
func (d *Driver) nextXid() uint32 {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return d.freeXidLocked()
}

func (d *Driver) freeXidLocked() uint32 {
	for {
		x := d.xids.Next()
		if _, busy := d.pending[x]; !busy {
			return x
		}
	}
}

// register adds a pending request, assigning *id when it is zero.
func (d *Driver) register(id *uint32, method string, connID uint64) (*pendingRequest, error) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if !d.accepting {
		return nil, rpc.ErrConnectionClosed
	}

	if *id == 0 {
		*id = d.freeXidLocked()
	} else if _, busy := d.pending[*id]; busy {
		return nil, fmt.Errorf("%w: %d", rpc.ErrDuplicateXid, *id)
	}

	p := &pendingRequest{
		id:     *id,
		method: method,
		connID: connID,
		sent:   time.Now(),
		done:   make(chan reply, 1),
	}
	d.pending[*id] = p
	stats.PendingDelta(1)
	return p, nil
}

// unregister removes p if it is still pending. It reports whether p was
// removed; false means a reply was already delivered.
func (d *Driver) unregister(p *pendingRequest) bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if d.pending[p.id] != p {
		return false
	}
	delete(d.pending, p.id)
	stats.PendingDelta(-1)
	return true
}

func (d *Driver) wait(ctx context.Context, p *pendingRequest) reply {
	select {
	case r := <-p.done:
		return r
	case <-ctx.Done():
		if d.unregister(p) {
			stats.RequestFailed("cancelled")
			return reply{err: ctx.Err()}
		}
		return <-p.done
	}
}

// deliverLocked resolves p and removes it. Caller holds pendingMu.
func (d *Driver) deliverLocked(p *pendingRequest, r reply) {
	delete(d.pending, p.id)
	stats.PendingDelta(-1)
	if r.err != nil {
		stats.RequestFailed("reply")
	}
	p.done <- r

	latency := time.Since(p.sent)
	d.trace(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerRPC,
		Category:  log.CategoryMessage,
		ConnID:    p.connID,
		Message: &log.MessageEvent{
			Type:    log.MessageTypeReply,
			Xid:     p.id,
			Method:  p.method,
			OFType:  replyType(r),
			Failed:  r.err != nil,
			Latency: &latency,
		},
	})
}

// failPending fails every outstanding request with err and stops accepting
// new ones until the next Open.
func (d *Driver) failPending(err error) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	d.accepting = false
	for id, p := range d.pending {
		p.done <- reply{err: fmt.Errorf("request %d: %w", id, err)}
	}
	if n := len(d.pending); n > 0 {
		d.logger.Debug("failed pending requests", "count", n, "error", err)
		stats.PendingDelta(-n)
		d.pending = make(map[uint32]*pendingRequest)
	}
}

// resolveEvent correlates an OFP.MESSAGE event with a pending request.
func (d *Driver) resolveEvent(ev *rpc.Event) bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	p, ok := d.pending[ev.Xid]
	if !ok {
		return false
	}

	switch {
	case ev.Type == rpc.TypeError || ev.Type == rpc.TypeChannelAlert:
		d.deliverLocked(p, reply{err: rpc.NewEventError(ev)})
	case ev.HasFlag(rpc.FlagMore):
		if p.multipart == nil {
			p.multipart = ev
		} else if err := p.multipart.AppendMultipart(ev); err != nil {
			d.logger.Warn("dropped multipart reply", "xid", ev.Xid, "error", err)
		}
	case p.multipart != nil:
		if err := p.multipart.AppendMultipart(ev); err != nil {
			d.logger.Warn("dropped multipart reply", "xid", ev.Xid, "error", err)
		}
		d.deliverLocked(p, reply{event: p.multipart})
	default:
		d.deliverLocked(p, reply{event: ev})
	}
	return true
}

// resolveFrame correlates a JSON-RPC reply with a pending request.
func (d *Driver) resolveFrame(id uint32, f *rpc.Frame) bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	p, ok := d.pending[id]
	if !ok {
		return false
	}

	switch {
	case f.Error != nil:
		d.deliverLocked(p, reply{err: f.RequestError()})
	case f.Result != nil:
		d.deliverLocked(p, reply{result: f.Result})
	default:
		d.deliverLocked(p, reply{err: &rpc.RequestError{
			ID:      id,
			Message: "reply has neither result nor error",
			Reply:   f.Raw,
		}})
	}
	return true
}

func replyType(r reply) string {
	if r.event != nil {
		return r.event.Type
	}
	return ""
}

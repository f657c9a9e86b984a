package driver

import (
	"github.com/zofgo/zof/pkg/log"
	"github.com/zofgo/zof/pkg/rpc"
)

// readLoop decodes frames until the stream ends, then fails whatever is
// still pending.
func (d *Driver) readLoop(framer *rpc.Framer, queue *eventQueue, done chan<- struct{}) {
	defer close(done)
	defer d.failPending(rpc.ErrConnectionClosed)

	for {
		data, err := framer.ReadFrame()
		if err != nil {
			if d.IsOpen() {
				d.logger.Warn("oftr stream ended", "error", err)
			}
			return
		}
		stats.ReceivedFrame()
		d.handleFrame(data, queue)
	}
}

func (d *Driver) handleFrame(data []byte, queue *eventQueue) {
	frame, err := rpc.DecodeFrame(data)
	if err != nil {
		d.enqueueAlert(queue, err, data)
		return
	}

	switch {
	case frame.IsMessage():
		ev, err := rpc.DecodeEvent(frame.Params)
		if err != nil {
			d.enqueueAlert(queue, err, data)
			return
		}
		ev.OpenFlow = true
		if d.resolveEvent(ev) {
			return
		}
		d.enqueue(queue, ev)

	case frame.ID != nil:
		if !d.resolveFrame(*frame.ID, frame) {
			d.logger.Warn("dropped reply with no pending request", "xid", *frame.ID)
		}

	case frame.Method != "":
		fields := map[string]any{}
		if len(frame.Params) > 0 {
			fields["msg"] = frame.Params
		}
		ev, err := rpc.NewEvent(frame.Method, fields)
		if err != nil {
			d.enqueueAlert(queue, err, data)
			return
		}
		d.enqueue(queue, ev)

	default:
		d.logger.Warn("dropped frame with neither id nor method", "frame", string(data))
	}
}

func (d *Driver) enqueue(queue *eventQueue, ev *rpc.Event) {
	d.trace(log.Event{
		Direction:  log.DirectionIn,
		Layer:      log.LayerRPC,
		Category:   log.CategoryMessage,
		ConnID:     ev.ConnID,
		DatapathID: ev.DatapathID,
		Message: &log.MessageEvent{
			Type:   log.MessageTypeNotification,
			Xid:    ev.Xid,
			OFType: ev.Type,
		},
	})
	queue.push(ev)
}

func (d *Driver) enqueueAlert(queue *eventQueue, err error, data []byte) {
	d.logger.Warn("undecodable frame", "error", err)
	d.trace(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerRPC,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerRPC,
			Message: err.Error(),
			Context: "decode frame",
		},
	})
	queue.push(rpc.DriverAlert(err, data))
}

package driver

import (
	"time"

	"github.com/zofgo/zof/pkg/log"
)

func (d *Driver) trace(ev log.Event) {
	if d.config.ProtocolLogger == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.DriverID = d.id
	d.config.ProtocolLogger.Log(ev)
}

func (d *Driver) traceState(from, to string) {
	d.trace(log.Event{
		Layer:    log.LayerRPC,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDriver,
			OldState: from,
			NewState: to,
		},
	})
}

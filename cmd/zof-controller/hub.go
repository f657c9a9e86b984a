package main

import (
	"fmt"

	"github.com/zofgo/zof/pkg/controller"
	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/handler"
	"github.com/zofgo/zof/pkg/rpc"
)

// hub floods every packet the switches send up.
type hub struct {
	app *controller.App
}

func newHub(c *controller.Controller) (*hub, error) {
	app, err := c.NewApp("hub")
	if err != nil {
		return nil, err
	}

	h := &hub{app: app}
	app.Subscribe(h.channelUp, handler.KindMessage, rpc.TypeChannelUp, handler.Options{})
	app.Subscribe(h.packetIn, handler.KindMessage, "PACKET_IN", handler.Options{})
	return h, nil
}

// channelUp installs a table-miss flow that sends everything to the controller.
func (h *hub) channelUp(dp *datapath.Datapath, ev *rpc.Event) (handler.Result, error) {
	if dp == nil {
		return handler.FallThrough, nil
	}
	if err := dp.Send(tableMiss()); err != nil {
		return handler.Handled, fmt.Errorf("table-miss flow: %w", err)
	}
	h.app.Logger().Info("hub ready", "datapath", dp.ID())
	return handler.FallThrough, nil
}

func (h *hub) packetIn(dp *datapath.Datapath, ev *rpc.Event) (handler.Result, error) {
	if dp == nil {
		return handler.Handled, nil
	}
	out, err := packetOut(ev)
	if err != nil {
		return handler.Handled, err
	}
	return handler.Handled, dp.Send(out)
}

func tableMiss() *rpc.Message {
	return &rpc.Message{
		Type: "FLOW_MOD",
		Msg: map[string]any{
			"command":  "ADD",
			"table_id": 0,
			"priority": 0,
			"match":    []any{},
			"instructions": []any{
				map[string]any{
					"instruction": "APPLY_ACTIONS",
					"actions": []any{
						map[string]any{"action": "OUTPUT", "port_no": "CONTROLLER", "max_len": "NO_BUFFER"},
					},
				},
			},
		},
	}
}

// packetIn is the part of a PACKET_IN the hub echoes back.
type packetIn struct {
	BufferID any            `json:"buffer_id"`
	InPort   datapath.PortNo `json:"in_port"`
	Data     string          `json:"data"`
}

// packetOut builds a PACKET_OUT sending the packet of ev to every port but
// the one it arrived on.
func packetOut(ev *rpc.Event) (*rpc.Message, error) {
	var in packetIn
	if err := ev.DecodeMsg(&in); err != nil {
		return nil, fmt.Errorf("decode PACKET_IN: %w", err)
	}

	msg := map[string]any{
		"in_port": in.InPort,
		"actions": []any{
			map[string]any{"action": "OUTPUT", "port_no": datapath.PortAll},
		},
	}
	// A buffered packet is released by id; otherwise the payload is sent back.
	if in.BufferID != nil && in.BufferID != "NO_BUFFER" {
		msg["buffer_id"] = in.BufferID
	} else {
		msg["buffer_id"] = "NO_BUFFER"
		msg["data"] = in.Data
	}
	return &rpc.Message{Type: "PACKET_OUT", Msg: msg}, nil
}

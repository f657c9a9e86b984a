package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/log"
	"github.com/zofgo/zof/pkg/rpc"
)

// Events posted when a PORT_STATUS changes a port.
const (
	EventPortAdded    = "PORT_ADDED"
	EventPortDeleted  = "PORT_DELETED"
	EventPortUp       = "PORT_UP"
	EventPortDown     = "PORT_DOWN"
	EventPortModified = "PORT_MODIFIED"
)

type channelUpMsg struct {
	Endpoint string `json:"endpoint"`
	Features struct {
		Ports []datapath.PortDesc `json:"ports"`
	} `json:"features"`
}

type portStatusMsg struct {
	Reason string             `json:"reason"`
	Port   *datapath.PortDesc `json:"port"`
}

// channelUp registers the datapath and merges the ports from the features
// reply carried in the event. A conflicting connection is closed.
func (c *Controller) channelUp(ev *rpc.Event) (*datapath.Datapath, bool) {
	dp, err := c.datapaths.Add(ev.DatapathID, ev.ConnID)
	switch {
	case errors.Is(err, datapath.ErrConflict):
		c.logger.Warn("closing duplicate connection", "dpid", ev.DatapathID, "conn_id", ev.ConnID, "error", err)
		c.rejected[ev.ConnID] = struct{}{}
		if err := c.driver.CloseNowait(ev.ConnID); err != nil {
			c.logger.Warn("close duplicate connection", "conn_id", ev.ConnID, "error", err)
		}
		return nil, false
	case err != nil:
		c.logger.Warn("ignoring channel with bad datapath id", "dpid", ev.DatapathID, "conn_id", ev.ConnID, "error", err)
		c.rejected[ev.ConnID] = struct{}{}
		return nil, false
	}

	var msg channelUpMsg
	if len(ev.Msg) > 0 {
		if err := ev.DecodeMsg(&msg); err != nil {
			c.logger.Warn("undecodable CHANNEL_UP", "dpid", ev.DatapathID, "error", err)
		}
	}
	dp.AddPorts(msg.Features.Ports)
	dp.SetReady()

	stats.Datapaths(c.datapaths.Len())
	c.logger.Info("datapath up", "dpid", dp.ID().String(), "conn_id", dp.ConnID(), "endpoint", msg.Endpoint, "ports", len(msg.Features.Ports))
	c.traceDatapath(dp, "", "UP", msg.Endpoint)
	return dp, true
}

// channelDown removes the datapath, clears its liveness and cancels its
// tasks. The detached datapath is still passed to handlers.
func (c *Controller) channelDown(ev *rpc.Event) (*datapath.Datapath, bool) {
	if _, ok := c.rejected[ev.ConnID]; ok {
		delete(c.rejected, ev.ConnID)
		return nil, false
	}

	dp, ok := c.datapaths.FindConn(ev.ConnID)
	if !ok {
		c.logger.Warn("CHANNEL_DOWN for unknown connection", "conn_id", ev.ConnID, "dpid", ev.DatapathID)
		return nil, true
	}
	c.datapaths.Delete(dp.ID())
	dp.Detach()

	stats.Datapaths(c.datapaths.Len())
	c.logger.Info("datapath down", "dpid", dp.ID().String(), "conn_id", dp.ConnID())
	c.traceDatapath(dp, "UP", "DOWN", "")
	return dp, true
}

func (c *Controller) findDatapath(ev *rpc.Event) *datapath.Datapath {
	if ev.ConnID == 0 {
		return nil
	}
	dp, ok := c.datapaths.FindConn(ev.ConnID)
	if !ok {
		if ev.OpenFlow {
			c.logger.Warn("event for unknown connection", "type", ev.Type, "conn_id", ev.ConnID)
		}
		return nil
	}
	return dp
}

// portStatus merges a PORT_STATUS into the datapath's ports and posts the
// matching PORT_* event. oftr either nests the description under "port" or
// puts it at the top of msg.
func (c *Controller) portStatus(dp *datapath.Datapath, ev *rpc.Event) {
	var msg portStatusMsg
	if err := ev.DecodeMsg(&msg); err != nil {
		c.logger.Warn("undecodable PORT_STATUS", "dpid", dp.ID().String(), "error", err)
		return
	}
	if msg.Port == nil {
		var desc datapath.PortDesc
		if err := ev.DecodeMsg(&desc); err != nil {
			c.logger.Warn("undecodable PORT_STATUS", "dpid", dp.ID().String(), "error", err)
			return
		}
		msg.Port = &desc
	}
	desc := *msg.Port

	var name string
	switch strings.ToUpper(msg.Reason) {
	case "ADD":
		dp.UpdatePort(desc)
		name = EventPortAdded
	case "MODIFY":
		old, existed := dp.UpdatePort(desc)
		now, _ := dp.Port(desc.PortNo)
		switch {
		case !existed:
			name = EventPortAdded
		case old.Up() != now.Up() && now.Up():
			name = EventPortUp
		case old.Up() != now.Up():
			name = EventPortDown
		default:
			name = EventPortModified
		}
	case "DELETE":
		if _, ok := dp.DeletePort(desc.PortNo); !ok {
			return
		}
		name = EventPortDeleted
	default:
		c.logger.Warn("unknown PORT_STATUS reason", "dpid", dp.ID().String(), "reason", msg.Reason)
		return
	}

	post, err := rpc.NewEvent(name, map[string]any{
		"datapath_id": dp.ID().String(),
		"conn_id":     dp.ConnID(),
		"port_no":     desc.PortNo,
		"name":        desc.Name,
	})
	if err == nil {
		err = c.driver.PostEvent(post)
	}
	if err != nil {
		c.logger.Debug("port event not posted", "type", name, "error", err)
	}
}

func (c *Controller) traceDatapath(dp *datapath.Datapath, from, to, reason string) {
	pl := c.config.Driver.ProtocolLogger
	if pl == nil {
		return
	}
	pl.Log(log.Event{
		Timestamp:  time.Now(),
		DriverID:   c.driver.ID(),
		Layer:      log.LayerController,
		Category:   log.CategoryState,
		ConnID:     dp.ConnID(),
		DatapathID: dp.ID().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDatapath,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

// Package controller runs the dispatch loop that connects oftr to
// applications.
//
// A Controller owns one driver, the list of connected datapaths and the
// registered applications. It reads events from the driver in order, keeps
// the datapath list current, then hands each event to every application in
// registration order. Each application subscribes handlers through its App
// handle and gets its own task set.
//
// Basic usage:
//
//	c, err := controller.New(controller.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	hub, _ := c.NewApp("hub")
//	hub.Subscribe(onPacketIn, handler.KindMessage, "PACKET_IN", handler.Options{})
//	return c.Run(ctx)
package controller

// Package driver manages one oftr process and the JSON-RPC conversation
// with it.
//
// A Driver writes requests and OpenFlow messages to oftr and correlates the
// replies: JSON-RPC replies by id, OFP.MESSAGE notifications by xid.
// Multipart replies are accumulated until the part without the MORE flag
// arrives. Everything that is not a reply is delivered, in arrival order, on
// the channel returned by Events.
//
// Typical use:
//
//	d := driver.New(driver.DefaultConfig())
//	if err := d.Open(ctx); err != nil {
//		return err
//	}
//	defer d.Close()
//
//	connID, err := d.Connect(ctx, "127.0.0.1:6653", driver.ConnectOptions{})
//	...
//	reply, err := d.Request(ctx, &rpc.Message{Type: "REQUEST.DESC", ConnID: connID})
//
// Requests carry no timeout of their own; callers bound them with the
// context. Closing the driver fails every outstanding request with
// rpc.ErrConnectionClosed.
package driver

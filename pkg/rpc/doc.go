// Package rpc implements the JSON-RPC frame model spoken with oftr.
//
// Frames are single JSON objects terminated by a NUL byte. Outbound frames
// are requests (with an id), notifications (without one) or OpenFlow
// messages wrapped in OFP.SEND. Inbound frames are replies carrying the id
// of a request, or notifications. OFP.MESSAGE notifications carry an
// OpenFlow message in their params and are correlated by xid instead of id.
//
// Example request:
//
//	{"id":1,"method":"OFP.DESCRIPTION"}
//
// Example OpenFlow notification:
//
//	{"method":"OFP.MESSAGE","params":{"type":"PACKET_IN","xid":0,"conn_id":3,...}}
//
// Outbound frames of MaxMessageSize bytes or more are rejected before any byte
// is written, since a partial frame would corrupt the stream for every later
// message.
package rpc

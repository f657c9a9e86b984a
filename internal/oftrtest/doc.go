// Package oftrtest provides an in-process stand-in for the oftr process.
//
// A Sim speaks oftr's NUL-delimited JSON-RPC over a net.Pipe. Sims on the
// same Network can listen for and connect to each other, and a Sim can host
// simulated switches that answer the common OpenFlow requests (barrier,
// echo, features, description, port description as a multipart reply).
package oftrtest

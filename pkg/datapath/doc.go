// Package datapath models connected switches and their ports.
//
// A Datapath is created when a connection comes up and is detached when it
// goes down. Detached datapaths keep their ports for inspection but reject
// further traffic with ErrClosed. Identities and port numbers are
// normalized on input so that every textual form of the same value selects
// the same entry.
package datapath

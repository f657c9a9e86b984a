package oftrtest

import (
	"strings"
	"sync"
)

// Network connects Sims. Connection ids are unique across a Network.
type Network struct {
	mu        sync.Mutex
	listeners map[string]listener
	nextConn  uint64
	nextTLS   uint64
}

type listener struct {
	sim    *Sim
	connID uint64
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{listeners: make(map[string]listener)}
}

func (n *Network) newConnID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextConn++
	return n.nextConn
}

func (n *Network) newTLSID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextTLS++
	return n.nextTLS
}

func (n *Network) listen(endpoint string, s *Sim, connID uint64) bool {
	port := endpointPort(endpoint)

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, busy := n.listeners[port]; busy {
		return false
	}
	n.listeners[port] = listener{sim: s, connID: connID}
	return true
}

func (n *Network) lookup(endpoint string) (listener, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.listeners[endpointPort(endpoint)]
	return l, ok
}

// unlisten removes the listener with connID, or every listener of s when
// connID is zero. It returns the number removed.
func (n *Network) unlisten(s *Sim, connID uint64) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for port, l := range n.listeners {
		if l.sim == s && (connID == 0 || l.connID == connID) {
			delete(n.listeners, port)
			count++
		}
	}
	return count
}

// endpointPort reduces "host:port", "[v6]:port" and "port" to the port.
func endpointPort(endpoint string) string {
	if i := strings.LastIndexByte(endpoint, ':'); i >= 0 {
		return endpoint[i+1:]
	}
	return endpoint
}

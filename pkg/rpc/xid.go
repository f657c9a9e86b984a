package rpc

import "sync"

const (
	// MaxReservedXid is the highest id reserved for callers that pick their own.
	MaxReservedXid uint32 = 255

	// MaxDynamicXid is the highest id handed out before wrapping.
	MaxDynamicXid uint32 = 0xffffff00
)

// XidAllocator hands out transaction ids in (MaxReservedXid, MaxDynamicXid],
// wrapping back to MaxReservedXid+1. The zero value is ready to use.
type XidAllocator struct {
	mu   sync.Mutex
	last uint32
}

// Next returns the next transaction id.
func (a *XidAllocator) Next() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.last < MaxReservedXid || a.last >= MaxDynamicXid {
		a.last = MaxReservedXid
	}
	a.last++
	return a.last
}

// IsReserved reports whether xid lies in the caller-reserved range.
func IsReserved(xid uint32) bool {
	return xid <= MaxReservedXid
}

package datapath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zofgo/zof/pkg/taskset"
)

// ErrConflict is returned by Add when the id is already held by a
// different connection.
var ErrConflict = errors.New("datapath id in use by another connection")

// Config holds what every datapath in a List shares.
type Config struct {
	// Conn carries Send, Request and CloseNowait. Usually a *driver.Driver.
	Conn Conn

	// Context is the parent of every datapath's task set.
	// Defaults to context.Background().
	Context context.Context

	// OnTaskFailure receives task failures. Nil logs them.
	OnTaskFailure func(dp *Datapath, t *taskset.Task, err error)

	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) context() context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// List is the set of connected datapaths keyed by id.
type List struct {
	config Config

	mu    sync.RWMutex
	byID  map[ID]*Datapath
	order []ID
}

// NewList creates an empty list.
func NewList(config Config) *List {
	return &List{
		config: config,
		byID:   make(map[ID]*Datapath),
	}
}

// Add registers a datapath for id on connID. Adding the same pair again
// returns the existing datapath. An id held by another connection fails
// with ErrConflict and leaves the list unchanged.
func (l *List) Add(id any, connID uint64) (*Datapath, error) {
	dpid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dp, ok := l.byID[dpid]; ok {
		if dp.connID != connID {
			return nil, fmt.Errorf("%w: %s held by conn %d, offered by conn %d",
				ErrConflict, dpid, dp.connID, connID)
		}
		return dp, nil
	}

	dp := newDatapath(dpid, connID, &l.config)
	l.byID[dpid] = dp
	l.order = append(l.order, dpid)
	return dp, nil
}

// Delete removes and returns the datapath for id, or nil if absent.
func (l *List) Delete(id any) *Datapath {
	dpid, err := ParseID(id)
	if err != nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dp, ok := l.byID[dpid]
	if !ok {
		return nil
	}
	delete(l.byID, dpid)
	for i, n := range l.order {
		if n == dpid {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return dp
}

// Get returns the datapath for id.
func (l *List) Get(id any) (*Datapath, bool) {
	dpid, err := ParseID(id)
	if err != nil {
		return nil, false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	dp, ok := l.byID[dpid]
	return dp, ok
}

// FindConn returns the datapath on connID.
func (l *List) FindConn(connID uint64) (*Datapath, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, dp := range l.byID {
		if dp.connID == connID {
			return dp, true
		}
	}
	return nil, false
}

// All returns every datapath in the order it connected.
func (l *List) All() []*Datapath {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := make([]*Datapath, 0, len(l.order))
	for _, id := range l.order {
		all = append(all, l.byID[id])
	}
	return all
}

// Len returns the number of datapaths.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

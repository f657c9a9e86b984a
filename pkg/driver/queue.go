package driver

import (
	"sync"

	"github.com/zofgo/zof/pkg/rpc"
)

// eventQueue is an unbounded FIFO between the reader and the consumer of
// Events, so that a slow consumer never stalls reply correlation.
type eventQueue struct {
	mu     sync.Mutex
	items  []*rpc.Event
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev *rpc.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (*rpc.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pump moves queued events to out, then closes out. Once the reader has
// ended it keeps going until the queue is empty, so nothing oftr sent before
// exiting is lost. Events still queued when stop is closed are discarded.
func (q *eventQueue) pump(out chan<- *rpc.Event, stop, readerDone <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	for {
		ev, ok := q.pop()
		if !ok {
			select {
			case <-q.notify:
				continue
			case <-readerDone:
				if q.len() > 0 {
					continue
				}
				return
			case <-stop:
				return
			}
		}

		select {
		case out <- ev:
		case <-stop:
			return
		}
	}
}

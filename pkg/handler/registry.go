package handler

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/rpc"
)

// Result tells Dispatch whether to keep looking for handlers.
type Result int

const (
	// Handled stops dispatch for this event.
	Handled Result = iota
	// FallThrough passes the event to the next matching handler.
	FallThrough
)

// Callback handles one event. dp is nil when the event has no datapath.
type Callback func(dp *datapath.Datapath, ev *rpc.Event) (Result, error)

// Handler is one subscription.
type Handler struct {
	kind     Kind
	matcher  *Matcher
	callback Callback
	seq      uint64
}

// Kind returns the handler's bucket.
func (h *Handler) Kind() Kind {
	return h.kind
}

// Matcher returns the handler's matcher.
func (h *Handler) Matcher() *Matcher {
	return h.matcher
}

func (h *Handler) String() string {
	return fmt.Sprintf("%s %s", h.matcher, funcName(h.callback))
}

// Registry holds the handlers of one application.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[Kind][]*Handler
	seq     uint64
}

// NewRegistry creates an empty registry. A nil logger means slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		buckets: make(map[Kind][]*Handler),
	}
}

// Subscribe appends cb to the bucket for kind. An invalid subscription is
// logged and yields nil.
func (r *Registry) Subscribe(cb Callback, kind Kind, subtype any, opts Options) *Handler {
	h, err := r.TrySubscribe(cb, kind, subtype, opts)
	if err != nil {
		r.logger.Error("subscribe failed", "kind", kind, "callback", funcName(cb), "error", err)
		return nil
	}
	return h
}

// TrySubscribe is Subscribe with the validation error returned.
func (r *Registry) TrySubscribe(cb Callback, kind Kind, subtype any, opts Options) (*Handler, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidSubscription)
	}
	m, err := NewMatcher(kind, subtype, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	h := &Handler{kind: kind, matcher: m, callback: cb, seq: r.seq}
	r.buckets[kind] = append(r.buckets[kind], h)
	return h, nil
}

// Unsubscribe removes the first handler subscribed with the func value cb.
// A named function matches every reference to it. Every closure is its own
// value, even two made from one literal, and so is every evaluation of a
// method value: pass the value given to Subscribe, or use Remove.
func (r *Registry) Unsubscribe(cb Callback) bool {
	if cb == nil {
		return false
	}
	target := funcIdentity(cb)

	r.mu.Lock()
	defer r.mu.Unlock()

	var first *Handler
	for _, bucket := range r.buckets {
		for _, h := range bucket {
			if funcIdentity(h.callback) != target {
				continue
			}
			if first == nil || h.seq < first.seq {
				first = h
			}
		}
	}
	if first == nil {
		return false
	}
	return r.removeLocked(first)
}

// funcIdentity returns the closure pointer behind cb. Unlike the code pointer
// from reflect, it differs between closures that share code.
func funcIdentity(cb Callback) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&cb))
}

// Remove removes h.
func (r *Registry) Remove(h *Handler) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(h)
}

func (r *Registry) removeLocked(h *Handler) bool {
	bucket := r.buckets[h.kind]
	for i, x := range bucket {
		if x == h {
			r.buckets[h.kind] = append(bucket[:i:i], bucket[i+1:]...)
			return true
		}
	}
	return false
}

// Handlers returns the handlers for kind in subscription order.
func (r *Registry) Handlers(kind Kind) []*Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Handler(nil), r.buckets[kind]...)
}

// Len returns the number of handlers across buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, bucket := range r.buckets {
		n += len(bucket)
	}
	return n
}

// Dispatch runs the matching handlers for ev in subscription order and
// returns how many ran. A failing or panicking callback is logged, counts
// as Handled and its error is returned.
func (r *Registry) Dispatch(dp *datapath.Datapath, ev *rpc.Event) (int, error) {
	handlers := r.Handlers(KindOf(ev))

	invoked := 0
	for _, h := range handlers {
		if !h.matcher.Match(ev) {
			continue
		}
		invoked++

		result, err := h.invoke(dp, ev)
		if err != nil {
			r.logger.Error("handler failed",
				"handler", h.String(),
				"type", ev.Type,
				"xid", ev.Xid,
				"conn_id", ev.ConnID,
				"dpid", ev.DatapathID,
				"error", err)
			return invoked, fmt.Errorf("%s: %w", h, err)
		}
		if result != FallThrough {
			break
		}
	}
	return invoked, nil
}

func (h *Handler) invoke(dp *datapath.Datapath, ev *rpc.Event) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			result = Handled
		}
	}()
	return h.callback(dp, ev)
}

func funcName(cb Callback) string {
	if cb == nil {
		return "<nil>"
	}
	if fn := runtime.FuncForPC(reflect.ValueOf(cb).Pointer()); fn != nil {
		return fn.Name()
	}
	return "<unknown>"
}

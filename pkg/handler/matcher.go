package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/rpc"
)

// ErrInvalidSubscription is returned for a kind, subtype or option that
// cannot be matched.
var ErrInvalidSubscription = errors.New("invalid subscription")

// Kind selects a handler bucket.
type Kind string

const (
	KindMessage Kind = "message"
	KindEvent   Kind = "event"
)

// KindOf returns the bucket an event dispatches to.
func KindOf(ev *rpc.Event) Kind {
	if ev.OpenFlow {
		return KindMessage
	}
	return KindEvent
}

// SubtypeFunc selects event types by predicate.
type SubtypeFunc func(typ string) bool

// Options narrow a subscription beyond its subtype.
type Options struct {
	// DatapathID restricts matches to one switch. Any form accepted by
	// datapath.ParseID.
	DatapathID any

	// NoDatapath opts a message handler in to messages that carry no
	// datapath id, and out of those that do.
	NoDatapath bool

	// ConnID restricts matches to one connection.
	ConnID uint64

	// Fields must all be present with equal values, compared as upper-case
	// strings. Keys are looked up at the top level of the event, then in
	// msg, then in msg.pkt.
	Fields map[string]any
}

// Matcher decides whether a handler applies to an event.
type Matcher struct {
	kind        Kind
	subtype     string
	subtypeFunc SubtypeFunc
	dpid        *datapath.ID
	noDatapath  bool
	connID      uint64
	fields      map[string]string
}

// NewMatcher validates a subscription. subtype is a string or a SubtypeFunc.
// Message subtypes must name an OpenFlow message type.
func NewMatcher(kind Kind, subtype any, opts Options) (*Matcher, error) {
	m := &Matcher{
		kind:       kind,
		noDatapath: opts.NoDatapath,
		connID:     opts.ConnID,
	}

	if kind != KindMessage && kind != KindEvent {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSubscription, kind)
	}

	switch st := subtype.(type) {
	case string:
		st = strings.ToUpper(strings.TrimSpace(st))
		if st == "" {
			return nil, fmt.Errorf("%w: empty subtype", ErrInvalidSubscription)
		}
		if kind == KindMessage && !IsMessageType(st) {
			return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidSubscription, st)
		}
		m.subtype = st
	case SubtypeFunc:
		m.subtypeFunc = st
	case func(string) bool:
		m.subtypeFunc = st
	default:
		return nil, fmt.Errorf("%w: subtype of type %T", ErrInvalidSubscription, subtype)
	}
	if m.subtypeFunc == nil && m.subtype == "" {
		return nil, fmt.Errorf("%w: nil subtype func", ErrInvalidSubscription)
	}

	if opts.DatapathID != nil {
		if opts.NoDatapath {
			return nil, fmt.Errorf("%w: DatapathID and NoDatapath both set", ErrInvalidSubscription)
		}
		id, err := datapath.ParseID(opts.DatapathID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
		}
		m.dpid = &id
	}

	if len(opts.Fields) > 0 {
		m.fields = make(map[string]string, len(opts.Fields))
		for k, v := range opts.Fields {
			m.fields[k] = normalizeValue(v)
		}
	}
	return m, nil
}

// Match reports whether ev satisfies every criterion.
func (m *Matcher) Match(ev *rpc.Event) bool {
	typ := strings.ToUpper(ev.Type)
	if m.subtypeFunc != nil {
		if !m.subtypeFunc(typ) {
			return false
		}
	} else if m.subtype != typ {
		return false
	}

	if m.kind == KindMessage && (ev.DatapathID == "") != m.noDatapath {
		return false
	}
	if m.dpid != nil {
		id, err := datapath.ParseID(ev.DatapathID)
		if err != nil || id != *m.dpid {
			return false
		}
	}
	if m.connID != 0 && ev.ConnID != m.connID {
		return false
	}

	for key, want := range m.fields {
		got, ok := lookupField(ev, key)
		if !ok || normalizeValue(got) != want {
			return false
		}
	}
	return true
}

// String describes the matcher for logs.
func (m *Matcher) String() string {
	var b strings.Builder
	b.WriteString(string(m.kind))
	b.WriteByte('[')
	if m.subtypeFunc != nil {
		b.WriteString("func")
	} else {
		b.WriteString(m.subtype)
	}
	b.WriteByte(']')
	if m.dpid != nil {
		fmt.Fprintf(&b, " dpid=%s", m.dpid)
	}
	if m.noDatapath {
		b.WriteString(" dpid=none")
	}
	if m.connID != 0 {
		fmt.Fprintf(&b, " conn_id=%d", m.connID)
	}
	for k, v := range m.fields {
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	return b.String()
}

func lookupField(ev *rpc.Event, key string) (any, bool) {
	fields := ev.Fields()
	if v, ok := fields[key]; ok {
		return v, true
	}
	msg, _ := fields["msg"].(map[string]any)
	if v, ok := msg[key]; ok {
		return v, true
	}
	pkt, _ := msg["pkt"].(map[string]any)
	if v, ok := pkt[key]; ok {
		return v, true
	}
	return nil, false
}

func normalizeValue(v any) string {
	return strings.ToUpper(fmt.Sprint(v))
}

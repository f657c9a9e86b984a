package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON-RPC methods understood by oftr.
const (
	MethodMessage     = "OFP.MESSAGE"
	MethodSend        = "OFP.SEND"
	MethodDescription = "OFP.DESCRIPTION"
	MethodListen      = "OFP.LISTEN"
	MethodConnect     = "OFP.CONNECT"
	MethodClose       = "OFP.CLOSE"
	MethodAddIdentity = "OFP.ADD_IDENTITY"
)

// Event types with special meaning to the driver or controller.
const (
	TypeChannelUp    = "CHANNEL_UP"
	TypeChannelDown  = "CHANNEL_DOWN"
	TypeChannelAlert = "CHANNEL_ALERT"
	TypeError        = "ERROR"
	TypePortStatus   = "PORT_STATUS"
	TypeDriverAlert  = "DRIVER_ALERT"
	TypeStart        = "START"
	TypeStop         = "STOP"
	TypeException    = "EXCEPTION"
)

// FlagMore marks a multipart reply that has further parts.
const FlagMore = "MORE"

// Request is an outbound JSON-RPC request. A zero ID means the driver
// assigns one; requests sent with Notify have no ID on the wire.
type Request struct {
	ID     uint32 `json:"id,omitempty"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// ErrorObject is the error member of a JSON-RPC error reply.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is an outbound OpenFlow message. It travels as the params of an
// OFP.SEND request.
type Message struct {
	Type       string   `json:"type"`
	Xid        uint32   `json:"xid,omitempty"`
	ConnID     uint64   `json:"conn_id,omitempty"`
	DatapathID string   `json:"datapath_id,omitempty"`
	Version    int      `json:"version,omitempty"`
	Flags      []string `json:"flags,omitempty"`
	Msg        any      `json:"msg,omitempty"`
}

// Frame is one decoded inbound frame.
type Frame struct {
	ID     *uint32         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`

	// Raw is the complete frame as received.
	Raw json.RawMessage `json:"-"`
}

// DecodeFrame parses one frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	f.Raw = json.RawMessage(data)
	return &f, nil
}

// IsMessage reports whether the frame is an OFP.MESSAGE notification.
func (f *Frame) IsMessage() bool {
	return f.Method == MethodMessage
}

// RequestError returns the *RequestError for an error reply, or nil.
func (f *Frame) RequestError() *RequestError {
	if f.Error == nil {
		return nil
	}
	var id uint32
	if f.ID != nil {
		id = *f.ID
	}
	return newRPCError(id, f.Error, f.Raw)
}

// Event is an inbound notification or correlated OpenFlow reply.
type Event struct {
	Type       string          `json:"type"`
	Xid        uint32          `json:"xid,omitempty"`
	ConnID     uint64          `json:"conn_id,omitempty"`
	DatapathID string          `json:"datapath_id,omitempty"`
	Version    int             `json:"version,omitempty"`
	Flags      []string        `json:"flags,omitempty"`
	Msg        json.RawMessage `json:"msg,omitempty"`

	// OpenFlow is set when the event arrived as an OFP.MESSAGE notification.
	OpenFlow bool `json:"-"`

	// Raw is the complete event object.
	Raw json.RawMessage `json:"-"`

	// Err is the parse failure carried by a DRIVER_ALERT.
	Err error `json:"-"`

	fields map[string]any
}

// DecodeEvent parses an event object.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	fields, err := decodeFields(data)
	if err != nil {
		return nil, err
	}
	ev.fields = fields
	ev.Raw = append(json.RawMessage(nil), data...)
	return &ev, nil
}

// NewEvent builds an event of the given type from top-level fields.
func NewEvent(typ string, fields map[string]any) (*Event, error) {
	obj := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		obj[k] = v
	}
	obj["type"] = typ

	data, err := Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", typ, err)
	}
	return DecodeEvent(data)
}

// DriverAlert builds the DRIVER_ALERT event for a frame that failed to parse.
func DriverAlert(cause error, data []byte) *Event {
	ev, err := NewEvent(TypeDriverAlert, map[string]any{
		"alert": cause.Error(),
		"data":  string(data),
	})
	if err != nil {
		ev = &Event{Type: TypeDriverAlert}
	}
	ev.Err = cause
	return ev
}

// Fields returns the event's top-level fields. Numbers decode as json.Number.
func (e *Event) Fields() map[string]any {
	return e.fields
}

// HasFlag reports whether the event carries the named flag.
func (e *Event) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// DecodeMsg unmarshals the event's msg member into v.
func (e *Event) DecodeMsg(v any) error {
	if len(e.Msg) == 0 {
		return fmt.Errorf("%s: no msg", e.Type)
	}
	return json.Unmarshal(e.Msg, v)
}

// AppendMultipart appends the msg list of a later multipart part to e.
func (e *Event) AppendMultipart(part *Event) error {
	if part.Type != e.Type {
		return fmt.Errorf("inconsistent multipart type: %s (expected %s)", part.Type, e.Type)
	}

	var head, tail []json.RawMessage
	if err := json.Unmarshal(e.Msg, &head); err != nil {
		return fmt.Errorf("multipart %s: %w", e.Type, err)
	}
	if err := json.Unmarshal(part.Msg, &tail); err != nil {
		return fmt.Errorf("multipart %s: %w", part.Type, err)
	}

	msg, err := Marshal(append(head, tail...))
	if err != nil {
		return err
	}
	e.Msg = msg
	e.Flags = part.Flags

	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	var decoded any
	if err := unmarshalNumber(msg, &decoded); err != nil {
		return err
	}
	e.fields["msg"] = decoded
	if flags, ok := part.fields["flags"]; ok {
		e.fields["flags"] = flags
	} else {
		delete(e.fields, "flags")
	}

	raw, err := Marshal(e.fields)
	if err != nil {
		return err
	}
	e.Raw = raw
	return nil
}

// Marshal encodes v as JSON without HTML escaping or a trailing newline.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func decodeFields(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := unmarshalNumber(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func unmarshalNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

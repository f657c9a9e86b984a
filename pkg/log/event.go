package log

import "time"

// Event is one protocol trace record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// DriverID identifies the driver instance (UUID) that saw the event.
	DriverID string `cbor:"2,keyasint"`

	// Direction indicates message flow relative to the controller.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// ConnID is the OpenFlow connection id, when the frame names one.
	ConnID uint64 `cbor:"6,keyasint,omitempty"`

	// DatapathID is the switch's datapath id in colon-hex form, when known.
	DatapathID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn is a frame read from oftr.
	DirectionIn Direction = 0
	// DirectionOut is a frame written to oftr.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerRPC is the JSON-RPC layer (decoded frames).
	LayerRPC Layer = 1
	// LayerController is the dispatch/bookkeeping layer.
	LayerController Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerRPC:
		return "RPC"
	case LayerController:
		return "CONTROLLER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is a request, reply or notification.
	CategoryMessage Category = 0
	// CategoryState is a lifecycle change.
	CategoryState Category = 2
	// CategoryError is an error at any layer.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including the NUL delimiter).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent summarizes a decoded frame at the RPC layer.
type MessageEvent struct {
	// Type distinguishes request/reply/notification.
	Type MessageType `cbor:"1,keyasint"`

	// Xid is the JSON-RPC id or OpenFlow xid (0 when absent).
	Xid uint32 `cbor:"2,keyasint"`

	// Method is the JSON-RPC method, if any.
	Method string `cbor:"3,keyasint,omitempty"`

	// OFType is the OpenFlow message type, if any (e.g. "PACKET_IN").
	OFType string `cbor:"4,keyasint,omitempty"`

	// Failed is set on error replies.
	Failed bool `cbor:"5,keyasint,omitempty"`

	// Latency is the round trip time of a correlated reply.
	Latency *time.Duration `cbor:"6,keyasint,omitempty"`
}

// MessageType distinguishes request/reply/notification.
type MessageType uint8

const (
	// MessageTypeRequest is an outbound call or send.
	MessageTypeRequest MessageType = 0
	// MessageTypeReply is a frame correlated with a pending request.
	MessageTypeReply MessageType = 1
	// MessageTypeNotification is an unsolicited inbound frame.
	MessageTypeNotification MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeReply:
		return "REPLY"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures driver and datapath lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityDriver is the oftr process.
	StateEntityDriver StateEntity = 0
	// StateEntityDatapath is a connected switch.
	StateEntityDatapath StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityDriver:
		return "DRIVER"
	case StateEntityDatapath:
		return "DATAPATH"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the JSON-RPC error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

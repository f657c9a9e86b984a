package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrMessageTooLarge indicates a serialized frame exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates an empty frame.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrConnectionClosed is returned to requests pending when the driver closes.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotOpen indicates the driver has not been opened.
	ErrNotOpen = errors.New("driver not open")

	// ErrDuplicateXid indicates a caller-chosen id is already outstanding.
	ErrDuplicateXid = errors.New("duplicate xid")

	// ErrInvalidXid indicates a caller-chosen xid outside the reserved range.
	ErrInvalidXid = errors.New("invalid xid")
)

// RequestError is returned when oftr answers a request with an error reply,
// or when an OpenFlow request is answered with an ERROR or CHANNEL_ALERT
// message.
type RequestError struct {
	// ID is the request id or OpenFlow xid.
	ID uint32

	// Code is the JSON-RPC error code (0 for OpenFlow replies).
	Code int

	// Message is the human-readable reason.
	Message string

	// Reply is the complete reply object that caused the failure.
	Reply json.RawMessage
}

// Error implements error.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request %d failed: %s", e.ID, e.Message)
}

// newRPCError builds a RequestError from a JSON-RPC error reply.
func newRPCError(id uint32, obj *ErrorObject, raw json.RawMessage) *RequestError {
	return &RequestError{
		ID:      id,
		Code:    obj.Code,
		Message: obj.Message,
		Reply:   raw,
	}
}

// NewEventError builds a RequestError from an ERROR or CHANNEL_ALERT reply.
func NewEventError(ev *Event) *RequestError {
	msg := ev.Type
	if alert, ok := ev.Fields()["alert"].(string); ok && alert != "" {
		msg = fmt.Sprintf("%s: %s", ev.Type, alert)
	} else if len(ev.Msg) > 0 {
		msg = fmt.Sprintf("%s: %s", ev.Type, string(ev.Msg))
	}
	return &RequestError{
		ID:      ev.Xid,
		Message: msg,
		Reply:   ev.Raw,
	}
}

// IsRequestError reports whether err wraps a *RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

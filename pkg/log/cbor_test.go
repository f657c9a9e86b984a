package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEventCBORRoundTrip(t *testing.T) {
	latency := 3 * time.Millisecond
	code := -32601
	ts := time.Date(2026, 3, 2, 9, 30, 0, 123456789, time.UTC)

	tests := []struct {
		name  string
		event Event
		check func(t *testing.T, got Event)
	}{
		{
			name: "frame",
			event: Event{
				Timestamp: ts,
				DriverID:  "6f1c2a80-0000-4000-8000-000000000001",
				Direction: DirectionOut,
				Layer:     LayerTransport,
				Category:  CategoryMessage,
				Frame:     &FrameEvent{Size: 42, Data: []byte(`{"id":1}`)},
			},
			check: func(t *testing.T, got Event) {
				if got.Frame == nil || got.Frame.Size != 42 || string(got.Frame.Data) != `{"id":1}` {
					t.Errorf("frame mismatch: %+v", got.Frame)
				}
			},
		},
		{
			name: "reply",
			event: Event{
				Timestamp: ts,
				Direction: DirectionIn,
				Layer:     LayerRPC,
				Category:  CategoryMessage,
				ConnID:    7,
				Message: &MessageEvent{
					Type:    MessageTypeReply,
					Xid:     256,
					OFType:  "FEATURES_REPLY",
					Latency: &latency,
				},
			},
			check: func(t *testing.T, got Event) {
				if got.ConnID != 7 {
					t.Errorf("ConnID = %d, want 7", got.ConnID)
				}
				if got.Message == nil || got.Message.Xid != 256 || got.Message.OFType != "FEATURES_REPLY" {
					t.Fatalf("message mismatch: %+v", got.Message)
				}
				if got.Message.Latency == nil || *got.Message.Latency != latency {
					t.Errorf("Latency = %v, want %v", got.Message.Latency, latency)
				}
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp:   ts,
				Layer:       LayerController,
				Category:    CategoryState,
				DatapathID:  "00:00:00:00:00:00:00:01",
				StateChange: &StateChangeEvent{Entity: StateEntityDatapath, OldState: "UP", NewState: "DOWN"},
			},
			check: func(t *testing.T, got Event) {
				if got.StateChange == nil || got.StateChange.NewState != "DOWN" {
					t.Errorf("state mismatch: %+v", got.StateChange)
				}
				if got.DatapathID != "00:00:00:00:00:00:00:01" {
					t.Errorf("DatapathID = %q", got.DatapathID)
				}
			},
		},
		{
			name: "error",
			event: Event{
				Timestamp: ts,
				Layer:     LayerRPC,
				Category:  CategoryError,
				Error:     &ErrorEventData{Layer: LayerRPC, Message: "unknown method", Code: &code},
			},
			check: func(t *testing.T, got Event) {
				if got.Error == nil || got.Error.Code == nil || *got.Error.Code != code {
					t.Errorf("error mismatch: %+v", got.Error)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}
			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if !got.Timestamp.Equal(tt.event.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.event.Timestamp)
			}
			if got.Layer != tt.event.Layer || got.Category != tt.event.Category {
				t.Errorf("layer/category = %v/%v", got.Layer, got.Category)
			}
			tt.check(t, got)
		})
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := uint32(1); i <= 3; i++ {
		if err := enc.Encode(Event{Message: &MessageEvent{Xid: i}}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for i := uint32(1); i <= 3; i++ {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if ev.Message.Xid != i {
			t.Errorf("event %d: Xid = %d", i, ev.Message.Xid)
		}
	}
}

func TestDecodeEventGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterFrame(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Timestamp: time.Now(),
		DriverID:  "drv-1",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Frame:     &FrameEvent{Size: 256},
	})

	entry := decodeLine(t, &buf)
	if entry["driver_id"] != "drv-1" {
		t.Errorf("driver_id = %v", entry["driver_id"])
	}
	if entry["direction"] != "IN" {
		t.Errorf("direction = %v", entry["direction"])
	}
	if entry["frame_size"] != float64(256) {
		t.Errorf("frame_size = %v", entry["frame_size"])
	}
	if _, ok := entry["conn_id"]; ok {
		t.Error("conn_id should be omitted when zero")
	}
}

func TestSlogAdapterMessage(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		ConnID: 3,
		Layer:  LayerRPC,
		Message: &MessageEvent{
			Type:   MessageTypeReply,
			Xid:    300,
			Method: "OFP.SEND",
			OFType: "BARRIER_REPLY",
			Failed: true,
		},
	})

	entry := decodeLine(t, &buf)
	if entry["conn_id"] != float64(3) {
		t.Errorf("conn_id = %v", entry["conn_id"])
	}
	if entry["xid"] != float64(300) {
		t.Errorf("xid = %v", entry["xid"])
	}
	if entry["type"] != "BARRIER_REPLY" {
		t.Errorf("type = %v", entry["type"])
	}
	if entry["failed"] != true {
		t.Errorf("failed = %v", entry["failed"])
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	adapter.Log(Event{Error: &ErrorEventData{Message: "boom"}})
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %s", buf.String())
	}
}

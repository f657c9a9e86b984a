package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zofgo/zof/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	latency := 1500 * time.Microsecond
	code := -32000
	return []log.Event{
		{
			Timestamp: ts,
			DriverID:  "d1",
			Direction: log.DirectionOut,
			Layer:     log.LayerTransport,
			Category:  log.CategoryMessage,
			Frame:     &log.FrameEvent{Size: 40, Data: []byte(`{"method":"OFP.LISTEN"}`)},
		},
		{
			Timestamp:  ts.Add(time.Second),
			DriverID:   "d1",
			Direction:  log.DirectionIn,
			Layer:      log.LayerRPC,
			Category:   log.CategoryMessage,
			ConnID:     7,
			DatapathID: "00:00:00:00:00:00:00:01",
			Message: &log.MessageEvent{
				Type:    log.MessageTypeReply,
				Xid:     300,
				OFType:  "FEATURES_REPLY",
				Latency: &latency,
			},
		},
		{
			Timestamp:  ts.Add(2 * time.Second),
			DriverID:   "d1",
			Direction:  log.DirectionIn,
			Layer:      log.LayerController,
			Category:   log.CategoryState,
			ConnID:     7,
			DatapathID: "00:00:00:00:00:00:00:01",
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityDatapath,
				OldState: "down",
				NewState: "up",
			},
		},
		{
			Timestamp: ts.Add(3 * time.Second),
			DriverID:  "d1",
			Direction: log.DirectionIn,
			Layer:     log.LayerRPC,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerRPC,
				Message: "invalid frame",
				Code:    &code,
				Context: "decode",
			},
		},
	}
}

func TestFormatEvents(t *testing.T) {
	events := sampleEvents()

	tests := []struct {
		name  string
		event log.Event
		want  []string
	}{
		{"frame", events[0], []string{"2026-01-28T10:15:32.123456Z", "[conn:-]", "OUT", "TRANSPORT", "Frame", "40 bytes", `{"method":"OFP.LISTEN"}`}},
		{"message", events[1], []string{"[conn:7]", "RPC REPLY", "Datapath: 00:00:00:00:00:00:00:01", "Xid: 300", "Type: FEATURES_REPLY", "Latency: 1.500ms"}},
		{"state", events[2], []string{"CONTROLLER State", "Entity: DATAPATH", "down -> up"}},
		{"error", events[3], []string{"Error", "Message: invalid frame", "Code: -32000", "Context: decode"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatEvent(&buf, tt.event)
			for _, s := range tt.want {
				if !strings.Contains(buf.String(), s) {
					t.Errorf("expected %q in output:\n%s", s, buf.String())
				}
			}
		})
	}
}

func TestFormatBinaryFrame(t *testing.T) {
	var buf bytes.Buffer
	formatFrameDetails(&buf, &log.FrameEvent{Size: 3, Data: []byte{0x00, 0xff, 0x10}, Truncated: true})
	if !strings.Contains(buf.String(), "00ff10 (truncated)") {
		t.Errorf("expected hex data, got: %s", buf.String())
	}
}

func TestRunViewFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	filter, err := FilterOptions{Layer: "rpc", Direction: "in"}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "FEATURES_REPLY") || !strings.Contains(out, "invalid frame") {
		t.Errorf("expected both RPC events, got:\n%s", out)
	}
	if strings.Contains(out, "TRANSPORT") || strings.Contains(out, "Entity:") {
		t.Errorf("expected other layers filtered out, got:\n%s", out)
	}
}

func TestFilterOptionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"layer", FilterOptions{Layer: "wire"}},
		{"direction", FilterOptions{Direction: "sideways"}},
		{"category", FilterOptions{Category: "snapshot"}},
		{"time-start", FilterOptions{TimeStart: "yesterday"}},
		{"time-end", FilterOptions{TimeEnd: "2026-13-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.zlog")

	filter, err := FilterOptions{ConnID: 7, TimeStart: "2026-01-28T10:15:33Z"}.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	n, err := RunFilter(path, out, filter)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}

	stats, err := Collect(out)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("expected 2 events in output, got %d", stats.TotalEvents)
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunExport(path, "jsonl", &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	var ev log.Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if ev.ConnID != 7 || ev.Message == nil || ev.Message.Xid != 300 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunExport(path, "csv", &buf); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(rows))
	}
	if rows[2][2] != "7" || rows[2][8] != "300" || rows[2][9] != "FEATURES_REPLY" {
		t.Errorf("unexpected row: %v", rows[2])
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	if err := RunExport("unused.zlog", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error")
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	out := buf.String()

	for _, s := range []string{
		"Total Events: 4",
		"TRANSPORT:",
		"RPC:",
		"CONTROLLER:",
		"FEATURES_REPLY:",
		"Connections: 1",
		"[conn:7] 2 events",
		"Datapath: 00:00:00:00:00:00:00:01",
		"Errors: 1",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("expected %q in output:\n%s", s, out)
		}
	}
}

func TestRunStatsMissingFile(t *testing.T) {
	if err := RunStats(filepath.Join(t.TempDir(), "nope.zlog"), &bytes.Buffer{}); err == nil {
		t.Error("expected error")
	}
}

package log

import "testing"

type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.events = append(r.events, event)
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{Frame: &FrameEvent{Size: 1}})
	logger.Log(Event{Error: &ErrorEventData{Message: "x"}})
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	multi := NewMultiLogger(a, nil, b)

	multi.Log(Event{ConnID: 1})
	multi.Log(Event{ConnID: 2})

	for name, r := range map[string]*recordingLogger{"a": a, "b": b} {
		if len(r.events) != 2 {
			t.Fatalf("%s: got %d events, want 2", name, len(r.events))
		}
		if r.events[1].ConnID != 2 {
			t.Errorf("%s: second event ConnID = %d", name, r.events[1].ConnID)
		}
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	NewMultiLogger().Log(Event{})
}

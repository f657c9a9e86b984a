package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects trace events. Zero-valued fields match everything.
type Filter struct {
	DriverID   string
	ConnID     uint64
	DatapathID string
	Direction  *Direction
	Layer      *Layer
	Category   *Category

	// OFType matches MessageEvent.OFType exactly.
	OFType string

	// TimeStart/TimeEnd bound the event timestamp to [start, end).
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Matches reports whether the event satisfies every criterion.
func (f *Filter) Matches(event Event) bool {
	if f.DriverID != "" && event.DriverID != f.DriverID {
		return false
	}
	if f.ConnID != 0 && event.ConnID != f.ConnID {
		return false
	}
	if f.DatapathID != "" && event.DatapathID != f.DatapathID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.OFType != "" && (event.Message == nil || event.Message.OFType != f.OFType) {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams events from a trace file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and reads only events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at end of file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

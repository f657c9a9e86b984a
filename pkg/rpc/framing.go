package rpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zofgo/zof/pkg/log"
)

// Framing constants.
const (
	// Delimiter terminates every frame.
	Delimiter byte = 0

	// MaxMessageSize is the smallest serialized message size oftr rejects.
	MaxMessageSize = 1048575

	// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
	// Larger frames are truncated in log events to avoid excessive memory usage.
	MaxLogFrameDataSize = 4096
)

// ErrFrameTruncated indicates the stream ended inside a frame.
var ErrFrameTruncated = errors.New("frame truncated")

// FrameWriter writes NUL-terminated frames to an underlying writer.
type FrameWriter struct {
	w              io.Writer
	maxMessageSize int
	mu             sync.Mutex

	logger   log.Logger
	driverID string
}

// NewFrameWriter creates a frame writer enforcing MaxMessageSize.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, MaxMessageSize)
}

// NewFrameWriterWithMaxSize creates a frame writer with a custom max size.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize int) *FrameWriter {
	return &FrameWriter{
		w:              w,
		maxMessageSize: maxSize,
	}
}

// SetLogger configures protocol logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, driverID string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.logger = logger
	fw.driverID = driverID
}

// WriteFrame writes data followed by the delimiter in a single write.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) >= fw.maxMessageSize {
		return fmt.Errorf("%w: %d >= %d", ErrMessageTooLarge, len(data), fw.maxMessageSize)
	}

	frame := make([]byte, len(data)+1)
	copy(frame, data)
	frame[len(data)] = Delimiter

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(makeFrameEvent(fw.driverID, data, log.DirectionOut))
	}
	return nil
}

// FrameReader reads NUL-terminated frames from an underlying reader.
type FrameReader struct {
	r *bufio.Reader

	logger   log.Logger
	driverID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// SetLogger configures protocol logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, driverID string) {
	fr.logger = logger
	fr.driverID = driverID
}

// ReadFrame returns the next non-empty frame without its delimiter.
// It returns io.EOF when the stream ends on a frame boundary.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		data, err := fr.r.ReadBytes(Delimiter)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(data) > 0 {
					return nil, ErrFrameTruncated
				}
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}

		data = data[:len(data)-1]
		if len(data) == 0 {
			continue
		}

		if fr.logger != nil {
			fr.logger.Log(makeFrameEvent(fr.driverID, data, log.DirectionIn))
		}
		return data, nil
	}
}

// makeFrameEvent creates a log event for a frame.
func makeFrameEvent(driverID string, data []byte, direction log.Direction) log.Event {
	frameData := data
	truncated := false

	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp: time.Now(),
		DriverID:  driverID,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      FrameSize(len(data)),
			Data:      append([]byte(nil), frameData...),
			Truncated: truncated,
		},
	}
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer reading from r and writing to w.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(r),
		FrameWriter: NewFrameWriter(w),
	}
}

// SetLogger configures logging for both reader and writer.
func (f *Framer) SetLogger(logger log.Logger, driverID string) {
	f.FrameReader.SetLogger(logger, driverID)
	f.FrameWriter.SetLogger(logger, driverID)
}

// FrameSize returns the total frame size including the delimiter.
func FrameSize(payloadSize int) int {
	return payloadSize + 1
}

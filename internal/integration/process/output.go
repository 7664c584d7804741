package process

import (
	"errors"
	"io"
	"os"
	"sync"
)

const defaultBufferSize = 32 * 1024

// Color is a display hint attached to a Sink.
type Color int

const (
	// ColorDefault leaves output in the terminal's default colour.
	ColorDefault Color = iota
	// ColorRed is used for compiler output.
	ColorRed
	// ColorGreen marks successful status lines.
	ColorGreen
	// ColorYellow marks warnings.
	ColorYellow
	// ColorBlue marks informational output.
	ColorBlue
	// ColorGray marks low-priority output.
	ColorGray
)

// String returns the colour name.
func (c Color) String() string {
	switch c {
	case ColorDefault:
		return "default"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorYellow:
		return "yellow"
	case ColorBlue:
		return "blue"
	case ColorGray:
		return "gray"
	default:
		return "unknown"
	}
}

// ansi returns the escape sequence that selects the colour.
func (c Color) ansi() string {
	switch c {
	case ColorRed:
		return "\x1b[31m"
	case ColorGreen:
		return "\x1b[32m"
	case ColorYellow:
		return "\x1b[33m"
	case ColorBlue:
		return "\x1b[34m"
	case ColorGray:
		return "\x1b[90m"
	default:
		return ""
	}
}

const ansiReset = "\x1b[0m"

// Sink is a byte-accepting output target with a colour side channel.
// Implementations must accept writes from background goroutines.
type Sink interface {
	io.Writer
	SetColor(Color)
}

// WriterSink adapts an io.Writer into a Sink.
//
// Writes are serialized, so a single WriterSink may receive both stdout
// and stderr of a process.
type WriterSink struct {
	mu    sync.Mutex
	w     io.Writer
	color Color
	ansi  bool
}

// SinkOption configures a WriterSink.
type SinkOption func(*WriterSink)

// WithANSI enables rendering of the colour hint as ANSI escape codes.
func WithANSI(enable bool) SinkOption {
	return func(s *WriterSink) {
		s.ansi = enable
	}
}

// NewWriterSink wraps w in a Sink.
func NewWriterSink(w io.Writer, opts ...SinkOption) *WriterSink {
	s := &WriterSink{w: w}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DiscardSink returns a Sink that drops everything written to it.
func DiscardSink() *WriterSink {
	return NewWriterSink(io.Discard)
}

// Write implements io.Writer.
func (s *WriterSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := ""
	if s.ansi {
		prefix = s.color.ansi()
	}
	if prefix == "" {
		return s.w.Write(p)
	}

	if _, err := io.WriteString(s.w, prefix); err != nil {
		return 0, err
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(s.w, ansiReset); err != nil {
		return n, err
	}
	return n, nil
}

// SetColor implements Sink.
func (s *WriterSink) SetColor(c Color) {
	s.mu.Lock()
	s.color = c
	s.mu.Unlock()
}

// Color returns the current colour hint.
func (s *WriterSink) Color() Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

// lockedWriter serializes writes to a shared writer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// streamOutput copies r to w chunk by chunk as data arrives, so output is
// visible before the process exits. A closed pipe ends the stream cleanly.
func streamOutput(r io.Reader, w io.Writer, bufSize int) error {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	buf := make([]byte, bufSize)

	var writeErr error
	for {
		n, err := r.Read(buf)
		if n > 0 && writeErr == nil {
			// Drain the pipe even after a write failure.
			if _, werr := w.Write(buf[:n]); werr != nil {
				writeErr = werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return writeErr
			}
			if writeErr != nil {
				return writeErr
			}
			return err
		}
	}
}

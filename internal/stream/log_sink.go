package stream

import (
	"bytes"
	"sync"

	applogger "Pattas/pkg/logger"
)

// LogSink reassembles the stream into lines and logs each one. Used for
// headless runs that have no client attached.
type LogSink struct {
	log *applogger.Logger
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewLogSink(l *applogger.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Write(p)
	for {
		line, err := s.buf.ReadBytes('\n')
		if err != nil {
			// Partial line: keep it for the next chunk.
			s.buf.Reset()
			s.buf.Write(line)
			return nil
		}
		s.emit(line[:len(line)-1])
	}
}

// Flush logs whatever partial line is left.
func (s *LogSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf.Len() > 0 {
		s.emit(s.buf.Bytes())
		s.buf.Reset()
	}
}

func (s *LogSink) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	s.log.Info("analysis output", applogger.String("line", string(line)))
}

package stream

import (
	"net/http"
)

// HTTPSink writes chunks to a chunked HTTP response, flushing after each.
type HTTPSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	return &HTTPSink{w: w, rc: http.NewResponseController(w)}
}

// Open commits the 200 status and whatever headers the caller set.
func (s *HTTPSink) Open() error {
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

func (s *HTTPSink) Send(p []byte) error {
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return s.rc.Flush()
}

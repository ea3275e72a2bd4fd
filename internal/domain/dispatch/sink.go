package dispatch

import "net/http"

// recordingSink wraps a ResponseSink and remembers what reached it.
type recordingSink struct {
	w           ResponseSink
	status      int
	wroteHeader bool
	written     int64
}

func newRecordingSink(w ResponseSink) *recordingSink {
	return &recordingSink{w: w}
}

func (s *recordingSink) Header() http.Header { return s.w.Header() }

func (s *recordingSink) WriteHeader(status int) {
	if s.wroteHeader {
		return
	}
	s.status = status
	s.wroteHeader = true
	s.w.WriteHeader(status)
}

func (s *recordingSink) Write(p []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

// Flush forwards to the wrapped sink when it supports streaming.
func (s *recordingSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *recordingSink) started() bool { return s.wroteHeader }

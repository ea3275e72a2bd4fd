package dispatch

import (
	"net/http"
	"time"
)

// Log phases.
const (
	PhaseRequest  = "request"
	PhaseResponse = "response"
)

// Response results.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultAborted = "aborted"
)

// LogEntry is one half of the request/response pair written per matched
// dispatch. Both halves share DispatchID.
type LogEntry struct {
	ID            string              `json:"id"`
	DispatchID    string              `json:"dispatch_id"`
	Phase         string              `json:"phase"`
	ProjectID     string              `json:"project_id"`
	ExpectationID string              `json:"expectation_id,omitempty"`
	Method        string              `json:"method"`
	Path          string              `json:"path"`
	Query         string              `json:"query,omitempty"`
	Headers       map[string][]string `json:"headers,omitempty"`
	Body          string              `json:"body,omitempty"`
	RemoteAddr    string              `json:"remote_addr,omitempty"`
	ReceivedAt    time.Time           `json:"received_at"`

	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	Status          int                 `json:"status,omitempty"`
	ResponseHeaders map[string][]string `json:"response_headers,omitempty"`
	BytesWritten    int64               `json:"bytes_written,omitempty"`
	Result          string              `json:"result,omitempty"`
	Error           string              `json:"error,omitempty"`
}

func cloneHeader(h http.Header) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	return h.Clone()
}

package dispatch

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Request is the inbound request as seen by matchers and actions.
type Request struct {
	ProjectID string
	Method    string
	Path      string
	Headers   http.Header
	Query     url.Values
	// Body holds the raw body when BodyAvailable is true. Bodies larger than
	// the transport's cap are not buffered, and matchers that need the body
	// fail closed.
	Body          []byte
	BodyAvailable bool
	// BodyStream replays the complete body, buffered prefix included, when
	// the body exceeded the cap. It can be consumed once.
	BodyStream io.Reader
	Host       string
	RemoteAddr string
	ReceivedAt time.Time
}

// BodyReader returns a reader over the full request body.
func (r *Request) BodyReader() io.Reader {
	if r.BodyStream != nil {
		return r.BodyStream
	}
	return bytes.NewReader(r.Body)
}

// ResponseSink is the subset of http.ResponseWriter that actions write to.
type ResponseSink interface {
	Header() http.Header
	WriteHeader(status int)
	Write(p []byte) (int, error)
}

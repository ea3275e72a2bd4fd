package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
)

// hopHeaders are connection-scoped and never forwarded (RFC 9110 §7.6.1).
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// proxyAction forwards the request to an upstream and streams the reply back.
// Upstream errors are returned as-is; there is no retry.
type proxyAction struct {
	target      *url.URL
	stripPrefix string
	headers     map[string]string
	timeout     time.Duration
	client      *http.Client
}

func (r *Registry) buildProxy(spec expectation.ActionSpec) (dispatch.Action, error) {
	p := spec.Proxy
	if p == nil {
		return nil, fmt.Errorf("proxy action has no proxy configuration")
	}
	target, err := url.Parse(p.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", p.Target, err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("proxy target %q must be an absolute http(s) URL", p.Target)
	}
	if p.Timeout < 0 {
		return nil, fmt.Errorf("proxy timeout must be >= 0, got %s", p.Timeout)
	}
	return &proxyAction{
		target:      target,
		stripPrefix: p.StripPrefix,
		headers:     p.Headers,
		timeout:     p.Timeout,
		client:      r.opts.Client,
	}, nil
}

func (a *proxyAction) Process(ctx context.Context, req *dispatch.Request, w dispatch.ResponseSink) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	out, err := a.outboundRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(out)
	if err != nil {
		return fmt.Errorf("proxy to %s: %w", a.target.Host, err)
	}
	defer resp.Body.Close()

	h := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	removeHopHeaders(h)
	w.WriteHeader(resp.StatusCode)

	if err := streamBody(w, resp.Body); err != nil {
		return fmt.Errorf("proxy to %s: stream response: %w", a.target.Host, err)
	}
	return nil
}

func (a *proxyAction) outboundRequest(ctx context.Context, req *dispatch.Request) (*http.Request, error) {
	u := *a.target
	rest := strings.TrimPrefix(req.Path, a.stripPrefix)
	u.Path = joinPath(a.target.Path, rest)
	u.RawPath = ""
	u.RawQuery = req.Query.Encode()

	var body io.Reader = http.NoBody
	if req.BodyStream != nil || len(req.Body) > 0 {
		body = req.BodyReader()
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	if req.BodyStream == nil {
		out.ContentLength = int64(len(req.Body))
	} else {
		out.ContentLength = -1
	}

	out.Header = req.Headers.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopHeaders(out.Header)
	out.Header.Del("Content-Length")

	if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		out.Header.Set("X-Forwarded-For", ip)
	}
	if req.Host != "" {
		out.Header.Set("X-Forwarded-Host", req.Host)
	}
	if out.Header.Get("X-Forwarded-Proto") == "" {
		out.Header.Set("X-Forwarded-Proto", "http")
	}
	for k, v := range a.headers {
		out.Header.Set(k, v)
	}
	return out, nil
}

func joinPath(base, rest string) string {
	if rest == "" {
		rest = "/"
	}
	joined := path.Join("/", base, rest)
	if strings.HasSuffix(rest, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// streamBody copies src to w, flushing after each chunk when w supports it.
func streamBody(w dispatch.ResponseSink, src io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

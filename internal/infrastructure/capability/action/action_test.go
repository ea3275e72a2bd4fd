package action_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability/action"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mockexpect/internal/testutil"
)

var fixedNow = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newRegistry(t *testing.T, opts action.Options) (*action.Registry, *testutil.FixedClock) {
	t.Helper()
	clk := &testutil.FixedClock{T: fixedNow}
	if opts.Clock == nil {
		opts.Clock = clk
	}
	return action.NewRegistry(opts), clk
}

func mockSpec(m expectation.MockSpec) expectation.ActionSpec {
	return expectation.ActionSpec{ID: "a1", Kind: expectation.ActionMock, Mock: &m}
}

func run(t *testing.T, a dispatch.Action, req *dispatch.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, a.Process(context.Background(), req, rec))
	return rec
}

func getRequest() *dispatch.Request {
	return &dispatch.Request{
		ProjectID:     "shop",
		Method:        http.MethodGet,
		Path:          "/orders/7",
		Headers:       http.Header{"X-Tenant": {"acme"}},
		Query:         url.Values{"page": {"2"}},
		BodyAvailable: true,
		RemoteAddr:    "10.0.0.9:5555",
		Host:          "mock.local",
	}
}

func TestMock_StaticDefaults(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{Body: `{"ok":true}`}), 0)
	require.NoError(t, err)

	rec := run(t, a, getRequest())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, rec.Body.String())
}

func TestMock_StatusHeadersAndExplicitContentType(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{
		Status:      http.StatusTeapot,
		Headers:     map[string]string{"X-Mock": "yes"},
		Body:        "short and stout",
		ContentType: "text/plain",
	}), 0)
	require.NoError(t, err)

	rec := run(t, a, getRequest())
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Mock"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "15", rec.Header().Get("Content-Length"))
}

func TestMock_Templates(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{})

	a, err := reg.Resolve(mockSpec(expectation.MockSpec{
		Engine: "expr",
		Body:   `{"project":"${project()}","page":${queryParam("page")},"at":"${now()}"}`,
	}), 0)
	require.NoError(t, err)
	rec := run(t, a, getRequest())
	assert.JSONEq(t, `{"project":"shop","page":2,"at":"2025-01-15T10:30:00Z"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	a, err = reg.Resolve(mockSpec(expectation.MockSpec{
		Engine: "jinja2",
		Body:   `{{ method }} {{ path }} {{ header("x-tenant") }}`,
	}), 0)
	require.NoError(t, err)
	rec = run(t, a, getRequest())
	assert.Equal(t, "GET /orders/7 acme", rec.Body.String())
}

func TestMock_DefaultEngine(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{DefaultEngine: "expr"})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{Body: `${1 + 1}`}), 0)
	require.NoError(t, err)
	assert.Equal(t, "2", run(t, a, getRequest()).Body.String())
}

func TestMock_BodyFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bodies"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bodies", "order.xml"), []byte("<order/>"), 0o644))

	reg, _ := newRegistry(t, action.Options{BodyRoot: root})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{BodyFile: "bodies/order.xml"}), 0)
	require.NoError(t, err)

	rec := run(t, a, getRequest())
	assert.Equal(t, "<order/>", rec.Body.String())
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
}

func TestMock_BodyFileEscapesRoot(t *testing.T) {
	root := t.TempDir()
	reg, _ := newRegistry(t, action.Options{BodyRoot: root})

	for _, p := range []string{"../secret.txt", "/etc/passwd", "a/../../b"} {
		_, err := reg.Resolve(mockSpec(expectation.MockSpec{BodyFile: p}), 0)
		assert.Error(t, err, p)
	}
}

func TestMock_BadTemplateFailsResolution(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{})
	_, err := reg.Resolve(mockSpec(expectation.MockSpec{Engine: "expr", Body: "${"}), 0)
	assert.Error(t, err)

	_, err = reg.Resolve(mockSpec(expectation.MockSpec{Engine: "handlebars", Body: "x"}), 0)
	assert.Error(t, err)
}

func TestResolve_UnknownKindAndMissingConfig(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{})

	_, err := reg.Resolve(expectation.ActionSpec{Kind: "webhook"}, 0)
	assert.ErrorIs(t, err, action.ErrUnknownKind)

	_, err = reg.Resolve(expectation.ActionSpec{Kind: expectation.ActionMock}, 0)
	assert.Error(t, err)

	_, err = reg.Resolve(expectation.ActionSpec{Kind: expectation.ActionProxy}, 0)
	assert.Error(t, err)

	_, err = reg.Resolve(expectation.ActionSpec{
		Kind:  expectation.ActionProxy,
		Proxy: &expectation.ProxySpec{Target: "not a url"},
	}, 0)
	assert.Error(t, err)
}

func TestDelay_WaitsBeforeInnerAction(t *testing.T) {
	reg, clk := newRegistry(t, action.Options{})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{Body: "x"}), 250*time.Millisecond)
	require.NoError(t, err)

	run(t, a, getRequest())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, clk.Slept())
}

func TestDelay_ZeroDoesNotSleep(t *testing.T) {
	reg, clk := newRegistry(t, action.Options{})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{Body: "x"}), 0)
	require.NoError(t, err)

	run(t, a, getRequest())
	assert.Empty(t, clk.Slept())
}

func TestDelay_RealClockHonoured(t *testing.T) {
	reg := action.NewRegistry(action.Options{Clock: clock.New()})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{Body: "x"}), 40*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	run(t, a, getRequest())
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDelay_CancelledBeforeWrite(t *testing.T) {
	reg := action.NewRegistry(action.Options{Clock: clock.New()})
	a, err := reg.Resolve(mockSpec(expectation.MockSpec{Body: "x"}), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	err = a.Process(ctx, getRequest(), rec)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rec.Body.Len())
	assert.False(t, rec.Flushed)
}

func TestProxy_ForwardsAndStreams(t *testing.T) {
	var got *http.Request
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Upstream", "1")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer upstream.Close()

	reg, _ := newRegistry(t, action.Options{})
	a, err := reg.Resolve(expectation.ActionSpec{
		Kind: expectation.ActionProxy,
		Proxy: &expectation.ProxySpec{
			Target:      upstream.URL + "/base",
			StripPrefix: "/orders",
			Headers:     map[string]string{"Authorization": "Bearer upstream"},
		},
	}, 0)
	require.NoError(t, err)

	req := getRequest()
	req.Method = http.MethodPost
	req.Body = []byte(`{"sku":"A-1"}`)
	req.Headers.Set("Connection", "keep-alive")
	req.Headers.Set("Keep-Alive", "timeout=5")

	rec := run(t, a, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Upstream"))
	assert.Empty(t, rec.Header().Get("Connection"))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/base/7", got.URL.Path)
	assert.Equal(t, "page=2", got.URL.RawQuery)
	assert.Equal(t, `{"sku":"A-1"}`, gotBody)
	assert.Equal(t, "acme", got.Header.Get("X-Tenant"))
	assert.Equal(t, "Bearer upstream", got.Header.Get("Authorization"))
	assert.Equal(t, "10.0.0.9", got.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "mock.local", got.Header.Get("X-Forwarded-Host"))
	assert.Empty(t, got.Header.Get("Keep-Alive"))
}

func TestProxy_StreamsOversizedBody(t *testing.T) {
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer upstream.Close()

	reg, _ := newRegistry(t, action.Options{})
	a, err := reg.Resolve(expectation.ActionSpec{
		Kind:  expectation.ActionProxy,
		Proxy: &expectation.ProxySpec{Target: upstream.URL},
	}, 0)
	require.NoError(t, err)

	req := getRequest()
	req.Method = http.MethodPut
	req.BodyAvailable = false
	req.BodyStream = strings.NewReader(strings.Repeat("z", 4096))

	run(t, a, req)
	assert.Len(t, gotBody, 4096)
}

func TestProxy_UpstreamErrorIsFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := upstream.URL
	upstream.Close()

	reg, _ := newRegistry(t, action.Options{})
	a, err := reg.Resolve(expectation.ActionSpec{
		Kind:  expectation.ActionProxy,
		Proxy: &expectation.ProxySpec{Target: target},
	}, 0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = a.Process(context.Background(), getRequest(), rec)
	assert.Error(t, err)
	assert.Zero(t, rec.Body.Len())
}

func TestProxy_OwnTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	reg, _ := newRegistry(t, action.Options{})
	a, err := reg.Resolve(expectation.ActionSpec{
		Kind:  expectation.ActionProxy,
		Proxy: &expectation.ProxySpec{Target: upstream.URL, Timeout: 20 * time.Millisecond},
	}, 0)
	require.NoError(t, err)

	err = a.Process(context.Background(), getRequest(), httptest.NewRecorder())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestRegistry_CachesResolvedActions(t *testing.T) {
	reg, _ := newRegistry(t, action.Options{CacheSize: 8})
	calls := 0
	reg.Register("custom", func(expectation.ActionSpec) (dispatch.Action, error) {
		calls++
		return dispatch.ActionFunc(func(context.Context, *dispatch.Request, dispatch.ResponseSink) error { return nil }), nil
	})

	_, err := reg.Resolve(expectation.ActionSpec{ID: "a", Kind: "custom"}, 0)
	require.NoError(t, err)
	_, err = reg.Resolve(expectation.ActionSpec{ID: "b", Kind: "custom"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	reg.Reset()
	_, err = reg.Resolve(expectation.ActionSpec{ID: "a", Kind: "custom"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

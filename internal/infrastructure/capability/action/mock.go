package action

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/template"
)

// mockAction writes a fixed or templated response.
type mockAction struct {
	status      int
	headers     map[string]string
	contentType string
	body        []byte
	renderer    template.Renderer // nil for static bodies
	now         func() time.Time
}

func (r *Registry) buildMock(spec expectation.ActionSpec) (dispatch.Action, error) {
	m := spec.Mock
	if m == nil {
		return nil, fmt.Errorf("mock action has no mock configuration")
	}

	source := m.Body
	if m.BodyFile != "" {
		path, err := resolveBodyFile(r.opts.BodyRoot, m.BodyFile)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read body_file %q: %w", m.BodyFile, err)
		}
		source = string(data)
	}

	a := &mockAction{
		status:  m.Status,
		headers: m.Headers,
		now:     r.opts.Now,
	}
	if a.status == 0 {
		a.status = http.StatusOK
	}

	engine := m.Engine
	if engine == "" {
		engine = r.opts.DefaultEngine
	}
	if engine != "" {
		name := m.BodyFile
		if name == "" {
			name = "inline"
		}
		renderer, err := r.opts.Templates.Compile(engine, name, source)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template (engine=%s): %w", engine, err)
		}
		a.renderer = renderer
		a.contentType = inferContentType(m.ContentType, m.BodyFile, nil)
	} else {
		a.body = []byte(source)
		a.contentType = inferContentType(m.ContentType, m.BodyFile, a.body)
	}
	return a, nil
}

func (a *mockAction) Process(_ context.Context, req *dispatch.Request, w dispatch.ResponseSink) error {
	body := a.body
	contentType := a.contentType
	if a.renderer != nil {
		rendered, err := a.renderer.Render(renderContext(req, a.now()))
		if err != nil {
			return fmt.Errorf("render body: %w", err)
		}
		body = rendered
		if contentType == "application/octet-stream" {
			contentType = inferContentType("", "", body)
		}
	}

	h := w.Header()
	for k, v := range a.headers {
		h.Set(k, v)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(a.status)
	_, err := w.Write(body)
	return err
}

func renderContext(req *dispatch.Request, now time.Time) template.Context {
	ctx := template.Context{
		Project: req.ProjectID,
		Method:  req.Method,
		Path:    req.Path,
		Headers: make(map[string]string, len(req.Headers)),
		Query:   make(map[string]string, len(req.Query)),
		Now:     now.UTC().Format(time.RFC3339),
	}
	for k := range req.Headers {
		ctx.Headers[k] = req.Headers.Get(k)
	}
	for k := range req.Query {
		ctx.Query[k] = req.Query.Get(k)
	}
	if req.BodyAvailable {
		ctx.Body = req.Body
	}
	return ctx
}

// resolveBodyFile resolves path under root and rejects anything that would
// escape it, symlinks included.
func resolveBodyFile(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed in body_file: %s", path)
	}
	if root == "" {
		return "", fmt.Errorf("body_file %q used but no body root configured", path)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve body root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = real
	}

	resolved := filepath.Join(absRoot, path)
	real, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		real = filepath.Clean(resolved)
	}

	rel, err := filepath.Rel(absRoot, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("body_file path %q escapes root directory", path)
	}
	return resolved, nil
}

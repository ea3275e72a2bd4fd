// Package template renders dynamic response bodies for mock actions.
package template

import (
	"fmt"
	"sort"
	"strings"
)

// Renderer renders a response body for one request.
type Renderer interface {
	Render(ctx Context) ([]byte, error)
}

// Context is the request data visible to templates.
type Context struct {
	Project string
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	Now     string // RFC 3339
}

// EngineCompiler compiles a template source string into a Renderer.
type EngineCompiler interface {
	Compile(name, source string) (Renderer, error)
}

// Registry maps engine names to their compilers.
type Registry struct {
	engines map[string]EngineCompiler
}

// NewRegistry creates a registry with the built-in engines (expr, jinja2).
func NewRegistry() *Registry {
	return &Registry{
		engines: map[string]EngineCompiler{
			"expr":   &ExprCompiler{},
			"jinja2": &Jinja2Compiler{},
		},
	}
}

// Compile resolves the engine by name and compiles the source.
func (r *Registry) Compile(engine, name, source string) (Renderer, error) {
	ec, ok := r.engines[engine]
	if !ok {
		return nil, fmt.Errorf("unknown template engine: %q (supported: %s)", engine, strings.Join(r.Engines(), ", "))
	}
	return ec.Compile(name, source)
}

// Engines lists the registered engine names.
func (r *Registry) Engines() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// staticRenderer returns a fixed body.
type staticRenderer struct {
	body []byte
}

func (r *staticRenderer) Render(Context) ([]byte, error) {
	return r.body, nil
}

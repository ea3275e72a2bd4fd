package template

import (
	"fmt"

	"github.com/flosch/pongo2/v6"
)

// Jinja2Compiler compiles body templates using Pongo2 (Django/Jinja2-style).
type Jinja2Compiler struct{}

// Compile parses the source as a Pongo2 template.
func (c *Jinja2Compiler) Compile(name, source string) (Renderer, error) {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template %q: %w", name, err)
	}
	return &jinja2Renderer{tpl: tpl}, nil
}

type jinja2Renderer struct {
	tpl *pongo2.Template
}

func (r *jinja2Renderer) Render(ctx Context) ([]byte, error) {
	data := pongo2.Context(helpers(ctx))
	data["method"] = ctx.Method
	data["path"] = ctx.Path
	data["headers"] = ctx.Headers
	data["query"] = ctx.Query

	result, err := r.tpl.Execute(data)
	if err != nil {
		return nil, fmt.Errorf("jinja2 template render failed: %w", err)
	}
	return []byte(result), nil
}

package template_test

import (
	"strings"
	"testing"

	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/template"
)

func render(t *testing.T, engine, source string, ctx template.Context) string {
	t.Helper()
	r, err := template.NewRegistry().Compile(engine, "test", source)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return string(out)
}

func TestRegistry_UnknownEngine(t *testing.T) {
	_, err := template.NewRegistry().Compile("mustache", "x", "{{a}}")
	if err == nil {
		t.Fatal("expected error for unknown engine")
	}
	if !strings.Contains(err.Error(), "expr, jinja2") {
		t.Errorf("error should list engines, got %v", err)
	}
}

func TestExpr_StaticSource(t *testing.T) {
	got := render(t, "expr", `{"ok":true}`, template.Context{})
	if got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
}

func TestExpr_Helpers(t *testing.T) {
	ctx := template.Context{
		Project: "shop",
		Headers: map[string]string{"X-Request-Id": "abc"},
		Query:   map[string]string{"page": "2"},
		Body:    []byte(`{"user":{"name":"ada"}}`),
		Now:     "2025-01-15T10:30:00Z",
	}
	tests := []struct {
		source string
		want   string
	}{
		{`${project()}`, "shop"},
		{`page=${queryParam("page")}`, "page=2"},
		{`${header("x-request-id")}`, "abc"},
		{`${jsonPath("$.user.name")}`, "ada"},
		{`${now()}`, "2025-01-15T10:30:00Z"},
		{`${nowFormat("2006-01-02")}`, "2025-01-15"},
		{`${toJSON(seq(1, 3))}`, "[1,2,3]"},
		{`${"}"}`, "}"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := render(t, "expr", tt.source, ctx); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpr_UUIDIsUnique(t *testing.T) {
	r, err := template.NewRegistry().Compile("expr", "id", `${uuid()}`)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := r.Render(template.Context{})
	b, _ := r.Render(template.Context{})
	if len(a) != 36 || string(a) == string(b) {
		t.Errorf("expected two distinct uuids, got %q and %q", a, b)
	}
}

func TestExpr_CompileErrors(t *testing.T) {
	for _, src := range []string{`${unclosed`, `${ 1 + }`, `${nosuchfn()}`} {
		if _, err := template.NewRegistry().Compile("expr", "bad", src); err == nil {
			t.Errorf("expected compile error for %q", src)
		}
	}
}

func TestJinja2_Render(t *testing.T) {
	ctx := template.Context{
		Project: "shop",
		Method:  "POST",
		Path:    "/orders",
		Query:   map[string]string{"id": "7"},
		Now:     "2025-01-15T10:30:00Z",
	}
	src := `{{ method }} {{ path }} id={{ query.id }} p={{ project() }} d={{ nowFormat("2006") }}`
	want := "POST /orders id=7 p=shop d=2025"
	if got := render(t, "jinja2", src, ctx); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJinja2_Loop(t *testing.T) {
	got := render(t, "jinja2", `{% for i in seq(1, 3) %}{{ i }}{% endfor %}`, template.Context{})
	if got != "123" {
		t.Errorf("got %q", got)
	}
}

func TestJinja2_CompileError(t *testing.T) {
	if _, err := template.NewRegistry().Compile("jinja2", "bad", `{% for %}`); err == nil {
		t.Fatal("expected compile error")
	}
}

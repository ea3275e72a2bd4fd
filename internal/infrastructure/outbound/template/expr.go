package template

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprCompiler compiles body templates using the Expr language with ${ } interpolation.
type ExprCompiler struct{}

// Compile splits the source on ${ } delimiters and compiles each expression.
// A source without expressions yields a static renderer.
func (c *ExprCompiler) Compile(name, source string) (Renderer, error) {
	segments, err := splitExpr(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expr template %q: %w", name, err)
	}
	for _, seg := range segments {
		if seg.program != nil {
			return &exprRenderer{segments: segments}, nil
		}
	}
	return &staticRenderer{body: []byte(source)}, nil
}

type exprSegment struct {
	text    string
	program *vm.Program
}

func splitExpr(source string) ([]exprSegment, error) {
	env := expr.Env(helpers(Context{}))
	var segments []exprSegment

	for offset := 0; ; {
		rest := source[offset:]
		open := strings.Index(rest, "${")
		if open < 0 {
			if rest != "" {
				segments = append(segments, exprSegment{text: rest})
			}
			return segments, nil
		}
		if open > 0 {
			segments = append(segments, exprSegment{text: rest[:open]})
		}

		inner := rest[open+2:]
		end := closingBrace(inner)
		if end < 0 {
			return nil, fmt.Errorf("unclosed ${ at offset %d", offset+open)
		}
		program, err := expr.Compile(inner[:end], env)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", inner[:end], err)
		}
		segments = append(segments, exprSegment{program: program})
		offset += open + 2 + end + 1
	}
}

// closingBrace returns the index of the } closing an expression, skipping
// nested braces and quoted strings, or -1.
func closingBrace(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '{':
			depth++
		case ch == '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

type exprRenderer struct {
	segments []exprSegment
}

func (r *exprRenderer) Render(ctx Context) ([]byte, error) {
	env := helpers(ctx)

	var buf strings.Builder
	for _, seg := range r.segments {
		if seg.program == nil {
			buf.WriteString(seg.text)
			continue
		}
		result, err := expr.Run(seg.program, env)
		if err != nil {
			return nil, fmt.Errorf("expression evaluation failed: %w", err)
		}
		fmt.Fprintf(&buf, "%v", result)
	}
	return []byte(buf.String()), nil
}

package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
)

// extractor pulls the value a matcher compares from the request.
type extractor func(req *dispatch.Request) (string, bool)

// fieldMatcher applies an operator to an extracted request field.
type fieldMatcher struct {
	extract   extractor
	cmp       compare
	needsBody bool
}

func (m *fieldMatcher) Matches(req *dispatch.Request) bool {
	if m.needsBody && !req.BodyAvailable {
		return false
	}
	v, ok := m.extract(req)
	return m.cmp(v, ok)
}

func newField(spec expectation.MatcherSpec, extract extractor, needsBody bool) (dispatch.Matcher, error) {
	cmp, err := compileOperator(spec.Operator, spec.Value)
	if err != nil {
		return nil, err
	}
	return &fieldMatcher{extract: extract, cmp: cmp, needsBody: needsBody}, nil
}

func buildPath(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	return newField(spec, func(req *dispatch.Request) (string, bool) {
		return req.Path, true
	}, false)
}

func buildMethod(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	switch strings.ToLower(spec.Operator) {
	case "", OpEqual, OpNotEqual:
		spec.Value = strings.ToUpper(spec.Value)
	}
	return newField(spec, func(req *dispatch.Request) (string, bool) {
		return strings.ToUpper(req.Method), true
	}, false)
}

func buildHeader(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("header matcher needs a key")
	}
	name := http.CanonicalHeaderKey(spec.Key)
	return newField(spec, func(req *dispatch.Request) (string, bool) {
		values := req.Headers.Values(name)
		if len(values) == 0 {
			return "", false
		}
		return values[0], true
	}, false)
}

func buildQuery(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("query matcher needs a key")
	}
	return newField(spec, func(req *dispatch.Request) (string, bool) {
		if !req.Query.Has(spec.Key) {
			return "", false
		}
		return req.Query.Get(spec.Key), true
	}, false)
}

func buildBody(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	return newField(spec, func(req *dispatch.Request) (string, bool) {
		return string(req.Body), true
	}, true)
}

func buildJSON(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	eval, err := jsonpath.New(spec.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath %q: %w", spec.Key, err)
	}
	return newField(spec, func(req *dispatch.Request) (string, bool) {
		var data any
		if err := json.Unmarshal(req.Body, &data); err != nil {
			return "", false
		}
		result, err := eval(context.Background(), data)
		if err != nil || result == nil {
			return "", false
		}
		return scalarString(result), true
	}, true)
}

// buildXML accepts node-set expressions ("//order/sku") and scalar ones
// ("count(//item)", "string(//sku/@code)"). A node set compares the value of
// its first node.
func buildXML(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	compiled, err := xpath.Compile(spec.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", spec.Key, err)
	}
	// Evaluation mutates the compiled query.
	queries := &sync.Pool{New: func() any { return xpath.MustCompile(spec.Key) }}
	queries.Put(compiled)

	return newField(spec, func(req *dispatch.Request) (string, bool) {
		doc, err := xmlquery.Parse(bytes.NewReader(req.Body))
		if err != nil {
			return "", false
		}
		q := queries.Get().(*xpath.Expr)
		defer queries.Put(q)

		switch v := q.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
		case *xpath.NodeIterator:
			if !v.MoveNext() {
				return "", false
			}
			return v.Current().Value(), true
		case string, float64, bool:
			return scalarString(v), true
		default:
			return "", false
		}
	}, true)
}

// exprEnv is the environment visible to expr matcher programs.
type exprEnv struct {
	Project       string            `expr:"project"`
	Method        string            `expr:"method"`
	Path          string            `expr:"path"`
	Headers       map[string]string `expr:"headers"`
	Query         map[string]string `expr:"query"`
	Body          string            `expr:"body"`
	BodyAvailable bool              `expr:"bodyAvailable"`
}

type exprMatcher struct {
	program *vm.Program
}

func buildExpr(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	program, err := expr.Compile(spec.Value, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expr program %q: %w", spec.Value, err)
	}
	return &exprMatcher{program: program}, nil
}

func (m *exprMatcher) Matches(req *dispatch.Request) bool {
	env := exprEnv{
		Project:       req.ProjectID,
		Method:        req.Method,
		Path:          req.Path,
		Headers:       flatten(req.Headers),
		Query:         flatten(req.Query),
		BodyAvailable: req.BodyAvailable,
	}
	if req.BodyAvailable {
		env.Body = string(req.Body)
	}
	out, err := expr.Run(m.program, env)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func flatten(values map[string][]string) map[string]string {
	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return flat
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64, bool:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

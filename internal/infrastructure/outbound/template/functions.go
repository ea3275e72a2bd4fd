package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"
)

// helpers returns the functions shared by every engine, bound to ctx.
func helpers(ctx Context) map[string]any {
	return map[string]any{
		"project": func() string { return ctx.Project },
		"queryParam": func(name string) string {
			return ctx.Query[name]
		},
		"header": func(name string) string {
			for k, v := range ctx.Headers {
				if strings.EqualFold(k, name) {
					return v
				}
			}
			return ""
		},
		"body": func() string { return string(ctx.Body) },
		"now":  func() string { return ctx.Now },
		"nowFormat": func(layout string) string {
			t, err := time.Parse(time.RFC3339, ctx.Now)
			if err != nil {
				return ctx.Now
			}
			return t.Format(layout)
		},
		"uuid":      uuid.NewString,
		"randomInt": randomInt,
		"seq":       seqInts,
		"toJSON":    toJSONString,
		"jsonPath": func(expression string) string {
			return extractJSONPath(ctx.Body, expression)
		},
	}
}

func randomInt(lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

func seqInts(start, end int) []int {
	if end < start {
		return nil
	}
	s := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, i)
	}
	return s
}

func toJSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func extractJSONPath(body []byte, expression string) string {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	result, err := jsonpath.Get(expression, data)
	if err != nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	return toJSONString(result)
}

package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Operator names accepted in MatcherSpec.Operator. An empty operator means equal.
const (
	OpEqual    = "equal"
	OpNotEqual = "not_equal"
	OpContains = "contains"
	OpPrefix   = "prefix"
	OpRegex    = "regex"
	OpGlob     = "glob"
	OpGreater  = "greater"
	OpLess     = "less"
	OpExists   = "exists"
)

// compare reports whether an extracted value satisfies an operator.
// present is false when the request has no value at all (missing header,
// JSONPath with no result).
type compare func(value string, present bool) bool

func compileOperator(op, want string) (compare, error) {
	switch strings.ToLower(op) {
	case "", OpEqual:
		return func(v string, ok bool) bool { return ok && v == want }, nil
	case OpNotEqual:
		return func(v string, ok bool) bool { return !ok || v != want }, nil
	case OpContains:
		return func(v string, ok bool) bool { return ok && strings.Contains(v, want) }, nil
	case OpPrefix:
		return func(v string, ok bool) bool { return ok && strings.HasPrefix(v, want) }, nil
	case OpRegex:
		re, err := regexp.Compile(want)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", want, err)
		}
		return func(v string, ok bool) bool { return ok && re.MatchString(v) }, nil
	case OpGlob:
		if !doublestar.ValidatePattern(want) {
			return nil, fmt.Errorf("invalid glob pattern %q", want)
		}
		return func(v string, ok bool) bool {
			if !ok {
				return false
			}
			matched, err := doublestar.Match(want, v)
			return err == nil && matched
		}, nil
	case OpGreater, OpLess:
		bound, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return nil, fmt.Errorf("operator %s needs a numeric value, got %q", op, want)
		}
		greater := strings.ToLower(op) == OpGreater
		return func(v string, ok bool) bool {
			if !ok {
				return false
			}
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return false
			}
			if greater {
				return n > bound
			}
			return n < bound
		}, nil
	case OpExists:
		return func(_ string, ok bool) bool { return ok }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

// Package matcher resolves stored matcher configuration into runtime
// predicates over dispatch requests.
package matcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability"
)

var (
	ErrUnknownKind     = errors.New("unknown matcher kind")
	ErrUnknownOperator = errors.New("unknown matcher operator")
)

// Builder constructs a matcher for one variant.
type Builder func(spec expectation.MatcherSpec) (dispatch.Matcher, error)

// Registry maps matcher kinds to builders and caches resolved matchers.
// Register must not be called concurrently with Resolve.
type Registry struct {
	builders map[string]Builder
	cache    *capability.Cache[dispatch.Matcher]
}

// NewRegistry creates a registry with every built-in kind. cacheSize bounds
// the resolved-matcher cache; 0 disables caching.
func NewRegistry(cacheSize int) *Registry {
	r := &Registry{
		builders: make(map[string]Builder),
		cache:    capability.NewCache[dispatch.Matcher](cacheSize),
	}
	r.Register(expectation.MatcherPath, buildPath)
	r.Register(expectation.MatcherMethod, buildMethod)
	r.Register(expectation.MatcherHeader, buildHeader)
	r.Register(expectation.MatcherQuery, buildQuery)
	r.Register(expectation.MatcherBody, buildBody)
	r.Register(expectation.MatcherJSON, buildJSON)
	r.Register(expectation.MatcherXML, buildXML)
	r.Register(expectation.MatcherExpr, buildExpr)
	return r
}

// Register adds or replaces the builder for kind.
func (r *Registry) Register(kind string, b Builder) {
	r.builders[kind] = b
	r.cache.Clear()
}

// Resolve returns the matcher for spec. Configuration errors (unknown kind,
// bad pattern, bad program) are returned and cached.
func (r *Registry) Resolve(spec expectation.MatcherSpec) (dispatch.Matcher, error) {
	build, ok := r.builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	return r.cache.GetOrBuild(fingerprint(spec), func() (dispatch.Matcher, error) {
		m, err := build(spec)
		if err != nil {
			return nil, fmt.Errorf("%s matcher: %w", spec.Kind, err)
		}
		return m, nil
	})
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func fingerprint(spec expectation.MatcherSpec) string {
	return strings.Join([]string{spec.Kind, spec.Key, spec.Operator, spec.Value}, "\x00")
}

// Package action resolves stored action configuration into runnable
// response producers: canned mock responses and upstream proxies.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/capability"
	"github.com/sophialabs/mockexpect/internal/infrastructure/outbound/template"
)

var ErrUnknownKind = errors.New("unknown action kind")

// Builder constructs the undelayed action for one variant.
type Builder func(spec expectation.ActionSpec) (dispatch.Action, error)

// Clock is what actions need from the time source.
type Clock interface {
	Sleeper
	Now() time.Time
}

// Options configures a Registry.
type Options struct {
	Clock         Clock
	Templates     *template.Registry
	BodyRoot      string // body_file paths resolve under this directory
	Client        *http.Client
	DefaultEngine string // template engine for mock bodies that name none
	CacheSize     int

	// Now defaults to Clock.Now.
	Now func() time.Time
}

// Registry maps action kinds to builders. Resolved actions are cached by
// configuration; the delay wrapper is applied per resolution.
// Register must not be called concurrently with Resolve.
type Registry struct {
	opts     Options
	builders map[string]Builder
	cache    *capability.Cache[dispatch.Action]
}

// NewRegistry creates a registry with the mock and proxy kinds.
func NewRegistry(opts Options) *Registry {
	if opts.Templates == nil {
		opts.Templates = template.NewRegistry()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	if opts.Now == nil {
		opts.Now = opts.Clock.Now
	}
	r := &Registry{
		opts:     opts,
		builders: make(map[string]Builder),
		cache:    capability.NewCache[dispatch.Action](opts.CacheSize),
	}
	r.Register(expectation.ActionMock, r.buildMock)
	r.Register(expectation.ActionProxy, r.buildProxy)
	return r
}

// Register adds or replaces the builder for kind.
func (r *Registry) Register(kind string, b Builder) {
	r.builders[kind] = b
	r.cache.Clear()
}

// Resolve returns the action for spec, wrapped to wait delay before running.
func (r *Registry) Resolve(spec expectation.ActionSpec, delay time.Duration) (dispatch.Action, error) {
	build, ok := r.builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	key, err := fingerprint(spec)
	if err != nil {
		return nil, err
	}
	inner, err := r.cache.GetOrBuild(key, func() (dispatch.Action, error) {
		a, err := build(spec)
		if err != nil {
			return nil, fmt.Errorf("%s action: %w", spec.Kind, err)
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return withDelay(inner, delay, r.opts.Clock), nil
}

// Reset drops every cached action, so body files are read again.
func (r *Registry) Reset() {
	r.cache.Clear()
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

func fingerprint(spec expectation.ActionSpec) (string, error) {
	spec.ID = ""
	b, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("fingerprint action: %w", err)
	}
	return string(b), nil
}

package expectation

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid indicates an expectation failed validation.
var ErrInvalid = errors.New("invalid expectation")

// Matcher kinds understood by the default matcher registry.
const (
	MatcherPath   = "path"
	MatcherMethod = "method"
	MatcherHeader = "header"
	MatcherQuery  = "query"
	MatcherBody   = "body"
	MatcherJSON   = "json"
	MatcherXML    = "xml"
	MatcherExpr   = "expr"
)

// Action kinds understood by the default action registry.
const (
	ActionMock  = "mock"
	ActionProxy = "proxy"
)

// Expectation is the unit of mock configuration: match rules plus the action
// that produces a response.
type Expectation struct {
	ID         string
	ProjectID  string
	Name       string
	Activate   bool
	Priority   int
	CreateTime time.Time
	Delay      time.Duration
	Matchers   []MatcherSpec
	// Actions keeps every configured action, but only Actions[0] is ever executed.
	Actions []ActionSpec
}

// MatcherSpec is the stored configuration of one matcher. Kind selects the
// runtime variant; Key, Operator and Value are interpreted by that variant.
type MatcherSpec struct {
	ID       string
	Kind     string
	Key      string
	Operator string
	Value    string
}

// ActionSpec is the stored configuration of one action.
type ActionSpec struct {
	ID    string
	Kind  string
	Mock  *MockSpec
	Proxy *ProxySpec
}

// MockSpec configures a static (optionally templated) response.
type MockSpec struct {
	Status      int
	Headers     map[string]string
	Body        string
	BodyFile    string
	ContentType string
	Engine      string // "" = static, "expr", "jinja2"
}

// ProxySpec configures forwarding to an upstream.
type ProxySpec struct {
	Target      string
	StripPrefix string
	Headers     map[string]string
	Timeout     time.Duration
}

// Validate checks the structural invariants of an expectation.
func (e *Expectation) Validate() error {
	if e.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalid)
	}
	if e.Delay < 0 {
		return fmt.Errorf("%w: delay must be >= 0, got %s", ErrInvalid, e.Delay)
	}
	for i, m := range e.Matchers {
		if m.Kind == "" {
			return fmt.Errorf("%w: matcher %d has no kind", ErrInvalid, i)
		}
	}
	for i, a := range e.Actions {
		if a.Kind == "" {
			return fmt.Errorf("%w: action %d has no kind", ErrInvalid, i)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can never mutate stored state.
func (e *Expectation) Clone() *Expectation {
	c := *e
	if e.Matchers != nil {
		c.Matchers = make([]MatcherSpec, len(e.Matchers))
		copy(c.Matchers, e.Matchers)
	}
	if e.Actions != nil {
		c.Actions = make([]ActionSpec, len(e.Actions))
		for i, a := range e.Actions {
			c.Actions[i] = a.clone()
		}
	}
	return &c
}

func (a ActionSpec) clone() ActionSpec {
	if a.Mock != nil {
		m := *a.Mock
		m.Headers = cloneMap(a.Mock.Headers)
		a.Mock = &m
	}
	if a.Proxy != nil {
		p := *a.Proxy
		p.Headers = cloneMap(a.Proxy.Headers)
		a.Proxy = &p
	}
	return a
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

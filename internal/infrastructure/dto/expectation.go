// Package dto holds the wire shapes of expectations, shared by the YAML
// files on disk and the admin JSON API.
package dto

import (
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/expectation"
)

// Expectation is the serialized form of expectation.Expectation. The project
// is implied by the directory on disk, so it is omitted from YAML.
type Expectation struct {
	ID         string     `yaml:"id,omitempty" json:"id"`
	ProjectID  string     `yaml:"-" json:"project_id"`
	Name       string     `yaml:"name,omitempty" json:"name,omitempty"`
	Activate   *bool      `yaml:"activate,omitempty" json:"activate,omitempty"`
	Priority   int        `yaml:"priority,omitempty" json:"priority"`
	CreateTime *time.Time `yaml:"create_time,omitempty" json:"create_time,omitempty"`
	Delay      Duration   `yaml:"delay,omitempty" json:"delay"`
	Matchers   []Matcher  `yaml:"matchers,omitempty" json:"matchers"`
	Actions    []Action   `yaml:"actions,omitempty" json:"actions"`
}

type Matcher struct {
	ID       string `yaml:"id,omitempty" json:"id"`
	Kind     string `yaml:"kind" json:"kind"`
	Key      string `yaml:"key,omitempty" json:"key,omitempty"`
	Operator string `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    string `yaml:"value,omitempty" json:"value,omitempty"`
}

type Action struct {
	ID    string `yaml:"id,omitempty" json:"id"`
	Kind  string `yaml:"kind" json:"kind"`
	Mock  *Mock  `yaml:"mock,omitempty" json:"mock,omitempty"`
	Proxy *Proxy `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}

type Mock struct {
	Status      int               `yaml:"status,omitempty" json:"status,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body        string            `yaml:"body,omitempty" json:"body,omitempty"`
	BodyFile    string            `yaml:"body_file,omitempty" json:"body_file,omitempty"`
	ContentType string            `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Engine      string            `yaml:"engine,omitempty" json:"engine,omitempty"`
}

type Proxy struct {
	Target      string            `yaml:"target" json:"target"`
	StripPrefix string            `yaml:"strip_prefix,omitempty" json:"strip_prefix,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Timeout     Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// FromDomain converts a domain expectation for serialization.
func FromDomain(e *expectation.Expectation) Expectation {
	activate := e.Activate
	out := Expectation{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Name:      e.Name,
		Activate:  &activate,
		Priority:  e.Priority,
		Delay:     Duration(e.Delay),
		Matchers:  make([]Matcher, 0, len(e.Matchers)),
		Actions:   make([]Action, 0, len(e.Actions)),
	}
	if !e.CreateTime.IsZero() {
		ct := e.CreateTime
		out.CreateTime = &ct
	}
	for _, m := range e.Matchers {
		out.Matchers = append(out.Matchers, MatcherFromDomain(m))
	}
	for _, a := range e.Actions {
		out.Actions = append(out.Actions, ActionFromDomain(a))
	}
	return out
}

// ToDomain converts to a domain expectation in projectID. A missing
// activate flag means active.
func (d Expectation) ToDomain(projectID string) *expectation.Expectation {
	e := &expectation.Expectation{
		ID:        d.ID,
		ProjectID: projectID,
		Name:      d.Name,
		Activate:  d.Activate == nil || *d.Activate,
		Priority:  d.Priority,
		Delay:     time.Duration(d.Delay),
	}
	if d.CreateTime != nil {
		e.CreateTime = *d.CreateTime
	}
	for _, m := range d.Matchers {
		e.Matchers = append(e.Matchers, m.ToDomain())
	}
	for _, a := range d.Actions {
		e.Actions = append(e.Actions, a.ToDomain())
	}
	return e
}

func MatcherFromDomain(m expectation.MatcherSpec) Matcher {
	return Matcher{ID: m.ID, Kind: m.Kind, Key: m.Key, Operator: m.Operator, Value: m.Value}
}

func (m Matcher) ToDomain() expectation.MatcherSpec {
	return expectation.MatcherSpec{ID: m.ID, Kind: m.Kind, Key: m.Key, Operator: m.Operator, Value: m.Value}
}

func ActionFromDomain(a expectation.ActionSpec) Action {
	out := Action{ID: a.ID, Kind: a.Kind}
	if a.Mock != nil {
		out.Mock = &Mock{
			Status:      a.Mock.Status,
			Headers:     a.Mock.Headers,
			Body:        a.Mock.Body,
			BodyFile:    a.Mock.BodyFile,
			ContentType: a.Mock.ContentType,
			Engine:      a.Mock.Engine,
		}
	}
	if a.Proxy != nil {
		out.Proxy = &Proxy{
			Target:      a.Proxy.Target,
			StripPrefix: a.Proxy.StripPrefix,
			Headers:     a.Proxy.Headers,
			Timeout:     Duration(a.Proxy.Timeout),
		}
	}
	return out
}

func (a Action) ToDomain() expectation.ActionSpec {
	out := expectation.ActionSpec{ID: a.ID, Kind: a.Kind}
	if a.Mock != nil {
		out.Mock = &expectation.MockSpec{
			Status:      a.Mock.Status,
			Headers:     a.Mock.Headers,
			Body:        a.Mock.Body,
			BodyFile:    a.Mock.BodyFile,
			ContentType: a.Mock.ContentType,
			Engine:      a.Mock.Engine,
		}
	}
	if a.Proxy != nil {
		out.Proxy = &expectation.ProxySpec{
			Target:      a.Proxy.Target,
			StripPrefix: a.Proxy.StripPrefix,
			Headers:     a.Proxy.Headers,
			Timeout:     time.Duration(a.Proxy.Timeout),
		}
	}
	return out
}

// Patch is the body of a partial update. Absent fields are left untouched.
type Patch struct {
	Name     *string    `json:"name"`
	Activate *bool      `json:"activate"`
	Priority *int       `json:"priority"`
	Delay    *Duration  `json:"delay"`
	Matchers *[]Matcher `json:"matchers"`
	Actions  *[]Action  `json:"actions"`
}

func (p Patch) ToDomain() expectation.Patch {
	out := expectation.Patch{
		Name:     p.Name,
		Activate: p.Activate,
		Priority: p.Priority,
	}
	if p.Delay != nil {
		d := time.Duration(*p.Delay)
		out.Delay = &d
	}
	if p.Matchers != nil {
		ms := make([]expectation.MatcherSpec, 0, len(*p.Matchers))
		for _, m := range *p.Matchers {
			ms = append(ms, m.ToDomain())
		}
		out.Matchers = &ms
	}
	if p.Actions != nil {
		as := make([]expectation.ActionSpec, 0, len(*p.Actions))
		for _, a := range *p.Actions {
			as = append(as, a.ToDomain())
		}
		out.Actions = &as
	}
	return out
}

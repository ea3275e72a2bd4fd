package dto_test

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mockexpect/internal/infrastructure/dto"
)

func TestDuration_Decode(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		json string
		want time.Duration
	}{
		{"string", `delay: 250ms`, `{"delay":"250ms"}`, 250 * time.Millisecond},
		{"milliseconds", `delay: 1500`, `{"delay":1500}`, 1500 * time.Millisecond},
		{"fractional string", `delay: 1.5s`, `{"delay":"1.5s"}`, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var y dto.Expectation
			if err := yaml.Unmarshal([]byte(tt.yaml), &y); err != nil {
				t.Fatalf("yaml: %v", err)
			}
			if time.Duration(y.Delay) != tt.want {
				t.Errorf("yaml: got %s, want %s", time.Duration(y.Delay), tt.want)
			}

			var j dto.Expectation
			if err := json.Unmarshal([]byte(tt.json), &j); err != nil {
				t.Fatalf("json: %v", err)
			}
			if time.Duration(j.Delay) != tt.want {
				t.Errorf("json: got %s, want %s", time.Duration(j.Delay), tt.want)
			}
		})
	}
}

func TestDuration_RejectsGarbage(t *testing.T) {
	var y dto.Expectation
	if err := yaml.Unmarshal([]byte(`delay: soon`), &y); err == nil {
		t.Error("expected yaml error")
	}
	var j dto.Expectation
	if err := json.Unmarshal([]byte(`{"delay":true}`), &j); err == nil {
		t.Error("expected json error")
	}
}

func TestExpectation_ActivateDefaultsToTrue(t *testing.T) {
	var d dto.Expectation
	if err := yaml.Unmarshal([]byte("name: x\n"), &d); err != nil {
		t.Fatal(err)
	}
	if !d.ToDomain("p").Activate {
		t.Error("missing activate should mean active")
	}

	if err := yaml.Unmarshal([]byte("activate: false\n"), &d); err != nil {
		t.Fatal(err)
	}
	if d.ToDomain("p").Activate {
		t.Error("explicit activate: false should be honoured")
	}
}

func TestExpectation_YAMLShape(t *testing.T) {
	src := `
id: e1
name: orders
priority: 5
delay: 100ms
matchers:
  - kind: method
    value: GET
  - kind: path
    operator: glob
    value: /orders/*
actions:
  - kind: mock
    mock:
      status: 201
      body_file: bodies/order.json
  - kind: proxy
    proxy:
      target: http://upstream:8080
      timeout: 2s
`
	var d dto.Expectation
	if err := yaml.Unmarshal([]byte(src), &d); err != nil {
		t.Fatal(err)
	}
	e := d.ToDomain("shop")

	if e.ProjectID != "shop" || e.ID != "e1" || e.Priority != 5 || e.Delay != 100*time.Millisecond {
		t.Errorf("unexpected header fields: %+v", e)
	}
	if len(e.Matchers) != 2 || e.Matchers[1].Operator != "glob" {
		t.Errorf("unexpected matchers: %+v", e.Matchers)
	}
	if len(e.Actions) != 2 || e.Actions[0].Mock.BodyFile != "bodies/order.json" || e.Actions[1].Proxy.Timeout != 2*time.Second {
		t.Errorf("unexpected actions: %+v", e.Actions)
	}

	out, err := yaml.Marshal(dto.FromDomain(e))
	if err != nil {
		t.Fatal(err)
	}
	var again dto.Expectation
	if err := yaml.Unmarshal(out, &again); err != nil {
		t.Fatal(err)
	}
	if time.Duration(again.Delay) != e.Delay || again.Actions[1].Proxy.Target != "http://upstream:8080" {
		t.Errorf("re-encoded YAML lost data:\n%s", out)
	}
}

func TestPatch_ToDomain(t *testing.T) {
	var p dto.Patch
	if err := json.Unmarshal([]byte(`{"priority":9,"delay":"2s","matchers":[]}`), &p); err != nil {
		t.Fatal(err)
	}
	dp := p.ToDomain()
	if dp.Name != nil || dp.Activate != nil || dp.Actions != nil {
		t.Error("absent fields must stay nil")
	}
	if dp.Priority == nil || *dp.Priority != 9 {
		t.Error("priority not carried")
	}
	if dp.Delay == nil || *dp.Delay != 2*time.Second {
		t.Error("delay not carried")
	}
	if dp.Matchers == nil || len(*dp.Matchers) != 0 {
		t.Error("explicit empty matcher list must clear matchers")
	}
}

package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/virtserve/virtserve/pkg/virt"
)

// Definition is one definition file: endpoints with their rules,
// scenarios with their steps and proxy configurations.
type Definition struct {
	Endpoints []EndpointDef `yaml:"endpoints,omitempty"`
	Scenarios []ScenarioDef `yaml:"scenarios,omitempty"`
	Proxies   []ProxyDef    `yaml:"proxyConfigs,omitempty"`
}

// EndpointDef declares an endpoint and its rules. Active defaults to true.
type EndpointDef struct {
	ID            string        `yaml:"id,omitempty"`
	ServiceID     string        `yaml:"serviceId,omitempty"`
	Name          string        `yaml:"name,omitempty"`
	Method        string        `yaml:"method"`
	Path          string        `yaml:"path"`
	Protocol      virt.Protocol `yaml:"protocol,omitempty"`
	Active        *bool         `yaml:"active,omitempty"`
	DefaultStatus int           `yaml:"defaultStatus,omitempty"`
	DefaultBody   Body          `yaml:"defaultBody,omitempty"`
	Rules         []RuleDef     `yaml:"rules,omitempty"`
}

// RuleDef declares a rule with structured conditions and headers; they are
// encoded to the JSON blobs the store keeps.
type RuleDef struct {
	ID              string                 `yaml:"id,omitempty"`
	Name            string                 `yaml:"name,omitempty"`
	Priority        int                    `yaml:"priority,omitempty"`
	LogicMode       virt.LogicMode         `yaml:"logicMode,omitempty"`
	Conditions      []virt.Condition       `yaml:"conditions,omitempty"`
	Status          int                    `yaml:"status,omitempty"`
	Body            Body                   `yaml:"body,omitempty"`
	Headers         map[string]string      `yaml:"headers,omitempty"`
	DelayMs         int                    `yaml:"delayMs,omitempty"`
	TemplateBody    bool                   `yaml:"templateBody,omitempty"`
	TemplateHeaders bool                   `yaml:"templateHeaders,omitempty"`
	Fault           virt.FaultType         `yaml:"fault,omitempty"`
	FaultConfig     map[string]interface{} `yaml:"faultConfig,omitempty"`
	Active          *bool                  `yaml:"active,omitempty"`
}

// ScenarioDef declares a scenario and its steps. Active defaults to true.
type ScenarioDef struct {
	ID           string    `yaml:"id,omitempty"`
	Name         string    `yaml:"name,omitempty"`
	InitialState string    `yaml:"initialState"`
	Active       *bool     `yaml:"active,omitempty"`
	Steps        []StepDef `yaml:"steps,omitempty"`
}

// StepDef declares one scenario step.
type StepDef struct {
	ID         string            `yaml:"id,omitempty"`
	StateName  string            `yaml:"stateName"`
	EndpointID string            `yaml:"endpointId"`
	Priority   int               `yaml:"priority,omitempty"`
	LogicMode  virt.LogicMode    `yaml:"logicMode,omitempty"`
	Conditions []virt.Condition  `yaml:"conditions,omitempty"`
	NextState  string            `yaml:"nextState,omitempty"`
	Status     int               `yaml:"status,omitempty"`
	Body       Body              `yaml:"body,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// ProxyDef declares a proxy configuration. Active defaults to true.
type ProxyDef struct {
	ID              string            `yaml:"id,omitempty"`
	EndpointID      string            `yaml:"endpointId,omitempty"`
	TargetBaseURL   string            `yaml:"targetBaseUrl"`
	Active          *bool             `yaml:"active,omitempty"`
	Recording       bool              `yaml:"recording,omitempty"`
	ForwardHeaders  bool              `yaml:"forwardHeaders,omitempty"`
	ExtraHeaders    map[string]string `yaml:"extraHeaders,omitempty"`
	TimeoutMs       int               `yaml:"timeoutMs,omitempty"`
	StripPathPrefix string            `yaml:"stripPathPrefix,omitempty"`
}

// Body accepts either a plain string or structured YAML; structured
// values are serialized to compact JSON so definitions can write response
// bodies naturally instead of as embedded JSON strings.
type Body string

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Body) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*b = Body(s)
		return nil
	}

	var val interface{}
	if err := node.Decode(&val); err != nil {
		return err
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}
	*b = Body(encoded)
	return nil
}

func encodeConditions(conds []virt.Condition) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(conds)
	if err != nil {
		return "", fmt.Errorf("encoding conditions: %w", err)
	}
	return string(encoded), nil
}

func encodeHeaders(headers map[string]string) (string, error) {
	if len(headers) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("encoding headers: %w", err)
	}
	return string(encoded), nil
}

func encodeFaultConfig(cfg map[string]interface{}) (string, error) {
	if len(cfg) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding fault config: %w", err)
	}
	return string(encoded), nil
}

func activeOrTrue(active *bool) bool {
	return active == nil || *active
}

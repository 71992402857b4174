// Package virt defines the data model shared by the request-matching and
// response-synthesis pipeline: endpoints, rules, match conditions, scenarios
// and proxy configurations.
package virt

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Protocol tags an endpoint with the payload dialect its bodies use.
// It determines how body conditions are extracted (JSONPath vs XPath) and
// which content type defaults apply.
type Protocol string

const (
	ProtocolREST Protocol = "rest"
	ProtocolSOAP Protocol = "soap"
)

// LogicMode controls how a rule's conditions combine.
type LogicMode string

const (
	// LogicAnd requires every condition to hold.
	LogicAnd LogicMode = "and"
	// LogicOr requires at least one condition to hold.
	LogicOr LogicMode = "or"
)

// ConditionSource identifies where a condition's actual value is read from.
type ConditionSource string

const (
	SourceBody     ConditionSource = "body"
	SourceHeader   ConditionSource = "header"
	SourceQuery    ConditionSource = "query"
	SourcePath     ConditionSource = "path"
	SourceMetadata ConditionSource = "metadata"
)

// Operator is a comparison applied to an extracted value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpRegex       Operator = "regex"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "notExists"
	OpIsEmpty     Operator = "isEmpty"
	OpJSONSchema  Operator = "jsonSchema"
	// OpExpression evaluates the expected value as a boolean expression with
	// the extracted value bound as "value".
	OpExpression Operator = "expression"
)

// FaultType selects the degraded behavior a rule injects before normal
// response rendering.
type FaultType string

const (
	FaultNone              FaultType = "none"
	FaultFixedDelay        FaultType = "fixedDelay"
	FaultRandomDelay       FaultType = "randomDelay"
	FaultConnectionReset   FaultType = "connectionReset"
	FaultEmptyResponse     FaultType = "emptyResponse"
	FaultMalformedResponse FaultType = "malformedResponse"
	FaultTimeout           FaultType = "timeout"
)

// Condition is one comparison contributing to a rule or scenario step match.
// Field is a JSONPath (REST body), an XPath (SOAP body), a raw key
// (header/query) or a {param} name (path).
type Condition struct {
	Source   ConditionSource `json:"source" yaml:"source"`
	Field    string          `json:"field" yaml:"field"`
	Operator Operator        `json:"operator" yaml:"operator"`
	Value    string          `json:"value" yaml:"value"`
}

// Endpoint is a registered (method, path template, protocol) triple as held
// by the configuration store. Rules are stored separately, keyed by
// EndpointID.
type Endpoint struct {
	ID            string    `json:"id" yaml:"id"`
	ServiceID     string    `json:"serviceId,omitempty" yaml:"serviceId,omitempty"`
	Name          string    `json:"name,omitempty" yaml:"name,omitempty"`
	Method        string    `json:"method" yaml:"method"`
	Path          string    `json:"path" yaml:"path"`
	Protocol      Protocol  `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Active        bool      `json:"active" yaml:"active"`
	DefaultStatus int       `json:"defaultStatus,omitempty" yaml:"defaultStatus,omitempty"`
	DefaultBody   string    `json:"defaultBody,omitempty" yaml:"defaultBody,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// Rule is a stored response specification attached to an endpoint.
// Conditions, Headers and FaultConfig are kept as raw JSON exactly as the
// store holds them; the rule cache decodes them leniently on load so one
// malformed rule cannot poison a reload.
type Rule struct {
	ID              string    `json:"id" yaml:"id"`
	EndpointID      string    `json:"endpointId" yaml:"endpointId"`
	Name            string    `json:"name,omitempty" yaml:"name,omitempty"`
	Priority        int       `json:"priority" yaml:"priority"`
	LogicMode       LogicMode `json:"logicMode,omitempty" yaml:"logicMode,omitempty"`
	Conditions      string    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Status          int       `json:"status" yaml:"status"`
	Body            string    `json:"body,omitempty" yaml:"body,omitempty"`
	Headers         string    `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs         int       `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
	TemplateBody    bool      `json:"templateBody,omitempty" yaml:"templateBody,omitempty"`
	TemplateHeaders bool      `json:"templateHeaders,omitempty" yaml:"templateHeaders,omitempty"`
	Fault           FaultType `json:"fault,omitempty" yaml:"fault,omitempty"`
	FaultConfig     string    `json:"faultConfig,omitempty" yaml:"faultConfig,omitempty"`
	Active          bool      `json:"active" yaml:"active"`
	CreatedAt       time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// Scenario is a named stateful flow. CurrentState is the persisted state;
// the scenario engine tracks its own in-memory copy and writes back
// asynchronously.
type Scenario struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	InitialState string `json:"initialState" yaml:"initialState"`
	CurrentState string `json:"currentState,omitempty" yaml:"currentState,omitempty"`
	Active       bool   `json:"active" yaml:"active"`
}

// ScenarioStep fires when its scenario is in StateName, the request hit
// EndpointID and its conditions hold. An empty NextState leaves the
// scenario where it is.
type ScenarioStep struct {
	ID         string    `json:"id" yaml:"id"`
	ScenarioID string    `json:"scenarioId" yaml:"scenarioId"`
	StateName  string    `json:"stateName" yaml:"stateName"`
	EndpointID string    `json:"endpointId" yaml:"endpointId"`
	Priority   int       `json:"priority" yaml:"priority"`
	LogicMode  LogicMode `json:"logicMode,omitempty" yaml:"logicMode,omitempty"`
	Conditions string    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	NextState  string    `json:"nextState,omitempty" yaml:"nextState,omitempty"`
	Status     int       `json:"status,omitempty" yaml:"status,omitempty"`
	Body       string    `json:"body,omitempty" yaml:"body,omitempty"`
	Headers    string    `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ProxyConfig describes an upstream to forward unmatched traffic to.
// An empty EndpointID makes the config service-wide.
type ProxyConfig struct {
	ID              string            `json:"id" yaml:"id"`
	EndpointID      string            `json:"endpointId,omitempty" yaml:"endpointId,omitempty"`
	TargetBaseURL   string            `json:"targetBaseUrl" yaml:"targetBaseUrl"`
	Active          bool              `json:"active" yaml:"active"`
	Recording       bool              `json:"recording,omitempty" yaml:"recording,omitempty"`
	ForwardHeaders  bool              `json:"forwardHeaders,omitempty" yaml:"forwardHeaders,omitempty"`
	ExtraHeaders    map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
	TimeoutMs       int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	StripPathPrefix string            `json:"stripPathPrefix,omitempty" yaml:"stripPathPrefix,omitempty"`
}

// RequestContext is the per-request view of an inbound HTTP request handed
// to the pipeline by the transport layer. It is request-local and never
// shared between goroutines.
type RequestContext struct {
	Method     string
	Path       string
	RawQuery   string
	Body       []byte
	Headers    map[string][]string
	Query      map[string][]string
	PathParams map[string]string
}

// NewRequestContext builds a RequestContext from an already-buffered request.
func NewRequestContext(r *http.Request, body []byte) *RequestContext {
	query, _ := url.ParseQuery(r.URL.RawQuery)
	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = v
	}
	return &RequestContext{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Body:     body,
		Headers:  headers,
		Query:    query,
	}
}

// Header returns the first value for a header, case-insensitively.
func (rc *RequestContext) Header(name string) (string, bool) {
	for k, vals := range rc.Headers {
		if len(vals) > 0 && strings.EqualFold(k, name) {
			return vals[0], true
		}
	}
	return "", false
}

// QueryParam returns the first value for a query parameter,
// case-insensitively.
func (rc *RequestContext) QueryParam(name string) (string, bool) {
	for k, vals := range rc.Query {
		if len(vals) > 0 && strings.EqualFold(k, name) {
			return vals[0], true
		}
	}
	return "", false
}

// PathParam returns a path parameter captured during path matching,
// case-insensitively.
func (rc *RequestContext) PathParam(name string) (string, bool) {
	for k, v := range rc.PathParams {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Package storage defines the configuration repository the pipeline reads
// from and its in-memory implementation. The rule cache, scenario engine and
// recorder each depend on a narrow slice of Repository; admin and config
// loading use the full surface.
package storage

import (
	"context"
	"errors"

	"github.com/virtserve/virtserve/pkg/virt"
)

// ErrNotFound is returned by mutating operations against a missing record.
var ErrNotFound = errors.New("storage: not found")

// Repository is the data-access interface for endpoints, rules, scenarios
// and proxy configurations. Implementations must be safe for concurrent use;
// callers never hold a reference across a request's lifetime beyond the
// single call.
type Repository interface {
	// ActiveEndpoints returns all active endpoints in insertion order.
	ActiveEndpoints(ctx context.Context) ([]*virt.Endpoint, error)
	// Endpoints returns every endpoint, active or not, in insertion order.
	Endpoints(ctx context.Context) ([]*virt.Endpoint, error)
	// Endpoint returns an endpoint by ID, or nil when it does not exist.
	// Inactive endpoints are still returned; the caller filters.
	Endpoint(ctx context.Context, id string) (*virt.Endpoint, error)
	// ActiveRules returns the active rules for an endpoint in insertion order.
	ActiveRules(ctx context.Context, endpointID string) ([]*virt.Rule, error)

	CreateEndpoint(ctx context.Context, ep *virt.Endpoint) error
	UpdateEndpoint(ctx context.Context, ep *virt.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error

	CreateRule(ctx context.Context, rule *virt.Rule) error
	UpdateRule(ctx context.Context, rule *virt.Rule) error
	DeleteRule(ctx context.Context, id string) error
	Rule(ctx context.Context, id string) (*virt.Rule, error)

	// ActiveScenarios returns all active scenarios.
	ActiveScenarios(ctx context.Context) ([]*virt.Scenario, error)
	Scenario(ctx context.Context, id string) (*virt.Scenario, error)
	// Steps returns a scenario's steps in insertion order.
	Steps(ctx context.Context, scenarioID string) ([]*virt.ScenarioStep, error)
	// UpdateScenarioState persists a scenario's current state.
	UpdateScenarioState(ctx context.Context, id, state string) error

	CreateScenario(ctx context.Context, sc *virt.Scenario) error
	DeleteScenario(ctx context.Context, id string) error
	CreateStep(ctx context.Context, step *virt.ScenarioStep) error

	// ActiveProxyConfigs returns all active proxy configurations.
	ActiveProxyConfigs(ctx context.Context) ([]*virt.ProxyConfig, error)
	SaveProxyConfig(ctx context.Context, cfg *virt.ProxyConfig) error
	DeleteProxyConfig(ctx context.Context, id string) error
}

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/virtserve/virtserve/pkg/virt"
)

// MemoryRepository is a thread-safe in-memory Repository. It preserves
// insertion order per record type so priority ties break deterministically.
type MemoryRepository struct {
	mu        sync.RWMutex
	seq       int64
	endpoints map[string]*record[virt.Endpoint]
	rules     map[string]*record[virt.Rule]
	scenarios map[string]*record[virt.Scenario]
	steps     map[string]*record[virt.ScenarioStep]
	proxies   map[string]*record[virt.ProxyConfig]
}

type record[T any] struct {
	seq   int64
	value T
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		endpoints: make(map[string]*record[virt.Endpoint]),
		rules:     make(map[string]*record[virt.Rule]),
		scenarios: make(map[string]*record[virt.Scenario]),
		steps:     make(map[string]*record[virt.ScenarioStep]),
		proxies:   make(map[string]*record[virt.ProxyConfig]),
	}
}

func (m *MemoryRepository) nextSeq() int64 {
	m.seq++
	return m.seq
}

// ActiveEndpoints returns active endpoints in insertion order.
func (m *MemoryRepository) ActiveEndpoints(_ context.Context) ([]*virt.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record[virt.Endpoint], 0, len(m.endpoints))
	for _, r := range m.endpoints {
		if r.value.Active {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*virt.Endpoint, len(recs))
	for i, r := range recs {
		ep := r.value
		out[i] = &ep
	}
	return out, nil
}

// Endpoints returns every endpoint in insertion order.
func (m *MemoryRepository) Endpoints(_ context.Context) ([]*virt.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record[virt.Endpoint], 0, len(m.endpoints))
	for _, r := range m.endpoints {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*virt.Endpoint, len(recs))
	for i, r := range recs {
		ep := r.value
		out[i] = &ep
	}
	return out, nil
}

// Endpoint returns an endpoint by ID, nil when missing.
func (m *MemoryRepository) Endpoint(_ context.Context, id string) (*virt.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.endpoints[id]
	if !ok {
		return nil, nil
	}
	ep := r.value
	return &ep, nil
}

// ActiveRules returns an endpoint's active rules in insertion order.
func (m *MemoryRepository) ActiveRules(_ context.Context, endpointID string) ([]*virt.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record[virt.Rule], 0)
	for _, r := range m.rules {
		if r.value.EndpointID == endpointID && r.value.Active {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*virt.Rule, len(recs))
	for i, r := range recs {
		rule := r.value
		out[i] = &rule
	}
	return out, nil
}

// CreateEndpoint stores a new endpoint.
func (m *MemoryRepository) CreateEndpoint(_ context.Context, ep *virt.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.ID] = &record[virt.Endpoint]{seq: m.nextSeq(), value: *ep}
	return nil
}

// UpdateEndpoint replaces an existing endpoint, keeping its insertion slot.
func (m *MemoryRepository) UpdateEndpoint(_ context.Context, ep *virt.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.endpoints[ep.ID]
	if !ok {
		return ErrNotFound
	}
	r.value = *ep
	return nil
}

// DeleteEndpoint removes an endpoint and its rules.
func (m *MemoryRepository) DeleteEndpoint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[id]; !ok {
		return ErrNotFound
	}
	delete(m.endpoints, id)
	for ruleID, r := range m.rules {
		if r.value.EndpointID == id {
			delete(m.rules, ruleID)
		}
	}
	return nil
}

// CreateRule stores a new rule.
func (m *MemoryRepository) CreateRule(_ context.Context, rule *virt.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = &record[virt.Rule]{seq: m.nextSeq(), value: *rule}
	return nil
}

// UpdateRule replaces an existing rule, keeping its insertion slot.
func (m *MemoryRepository) UpdateRule(_ context.Context, rule *virt.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[rule.ID]
	if !ok {
		return ErrNotFound
	}
	r.value = *rule
	return nil
}

// DeleteRule removes a rule.
func (m *MemoryRepository) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// Rule returns a rule by ID, nil when missing.
func (m *MemoryRepository) Rule(_ context.Context, id string) (*virt.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, nil
	}
	rule := r.value
	return &rule, nil
}

// ActiveScenarios returns active scenarios in insertion order.
func (m *MemoryRepository) ActiveScenarios(_ context.Context) ([]*virt.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record[virt.Scenario], 0, len(m.scenarios))
	for _, r := range m.scenarios {
		if r.value.Active {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*virt.Scenario, len(recs))
	for i, r := range recs {
		sc := r.value
		out[i] = &sc
	}
	return out, nil
}

// Scenario returns a scenario by ID, nil when missing.
func (m *MemoryRepository) Scenario(_ context.Context, id string) (*virt.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.scenarios[id]
	if !ok {
		return nil, nil
	}
	sc := r.value
	return &sc, nil
}

// Steps returns a scenario's steps in insertion order.
func (m *MemoryRepository) Steps(_ context.Context, scenarioID string) ([]*virt.ScenarioStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record[virt.ScenarioStep], 0)
	for _, r := range m.steps {
		if r.value.ScenarioID == scenarioID {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*virt.ScenarioStep, len(recs))
	for i, r := range recs {
		step := r.value
		out[i] = &step
	}
	return out, nil
}

// UpdateScenarioState persists a scenario's current state.
func (m *MemoryRepository) UpdateScenarioState(_ context.Context, id, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.scenarios[id]
	if !ok {
		return ErrNotFound
	}
	r.value.CurrentState = state
	return nil
}

// CreateScenario stores a new scenario.
func (m *MemoryRepository) CreateScenario(_ context.Context, sc *virt.Scenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[sc.ID] = &record[virt.Scenario]{seq: m.nextSeq(), value: *sc}
	return nil
}

// DeleteScenario removes a scenario and its steps.
func (m *MemoryRepository) DeleteScenario(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[id]; !ok {
		return ErrNotFound
	}
	delete(m.scenarios, id)
	for stepID, r := range m.steps {
		if r.value.ScenarioID == id {
			delete(m.steps, stepID)
		}
	}
	return nil
}

// CreateStep stores a new scenario step.
func (m *MemoryRepository) CreateStep(_ context.Context, step *virt.ScenarioStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[step.ID] = &record[virt.ScenarioStep]{seq: m.nextSeq(), value: *step}
	return nil
}

// ActiveProxyConfigs returns active proxy configurations in insertion order.
func (m *MemoryRepository) ActiveProxyConfigs(_ context.Context) ([]*virt.ProxyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record[virt.ProxyConfig], 0, len(m.proxies))
	for _, r := range m.proxies {
		if r.value.Active {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]*virt.ProxyConfig, len(recs))
	for i, r := range recs {
		cfg := r.value
		out[i] = &cfg
	}
	return out, nil
}

// SaveProxyConfig creates or replaces a proxy configuration.
func (m *MemoryRepository) SaveProxyConfig(_ context.Context, cfg *virt.ProxyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.proxies[cfg.ID]; ok {
		r.value = *cfg
		return nil
	}
	m.proxies[cfg.ID] = &record[virt.ProxyConfig]{seq: m.nextSeq(), value: *cfg}
	return nil
}

// DeleteProxyConfig removes a proxy configuration.
func (m *MemoryRepository) DeleteProxyConfig(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.proxies[id]; !ok {
		return ErrNotFound
	}
	delete(m.proxies, id)
	return nil
}

// Ensure MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

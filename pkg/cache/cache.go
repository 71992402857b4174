// Package cache holds read-optimized snapshots of active endpoints, rules
// and proxy configurations. Snapshots are immutable and swapped atomically
// so request handling never observes a partially rebuilt view.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/virtserve/virtserve/internal/matching"
	"github.com/virtserve/virtserve/pkg/virt"
)

// Store is the slice of the repository the rule cache reads from.
type Store interface {
	ActiveEndpoints(ctx context.Context) ([]*virt.Endpoint, error)
	Endpoint(ctx context.Context, id string) (*virt.Endpoint, error)
	ActiveRules(ctx context.Context, endpointID string) ([]*virt.Rule, error)
}

// CachedEndpoint is an immutable view of one endpoint and its rules,
// ready for matching. Rules are sorted by ascending priority.
type CachedEndpoint struct {
	ID            string
	ServiceID     string
	Name          string
	Method        string
	Path          string
	Protocol      virt.Protocol
	DefaultStatus int
	DefaultBody   string
	Rules         []CachedRule
}

// CachedRule is an immutable view of one rule with its stored JSON
// blobs already decoded.
type CachedRule struct {
	ID              string
	EndpointID      string
	Name            string
	Priority        int
	LogicMode       virt.LogicMode
	Conditions      []virt.Condition
	Status          int
	Body            string
	Headers         map[string]string
	DelayMs         int
	TemplateBody    bool
	TemplateHeaders bool
	Fault           virt.FaultType
	FaultConfig     map[string]interface{}
}

type snapshot struct {
	order []string
	byID  map[string]*CachedEndpoint
}

func emptySnapshot() *snapshot {
	return &snapshot{byID: make(map[string]*CachedEndpoint)}
}

// RuleCache maintains the endpoint snapshot. Reads are lock-free;
// reloads serialize behind a mutex and publish with an atomic swap.
type RuleCache struct {
	store  Store
	logger *slog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewRuleCache creates an empty cache backed by store.
func NewRuleCache(store Store, logger *slog.Logger) *RuleCache {
	c := &RuleCache{store: store, logger: logger}
	c.snap.Store(emptySnapshot())
	return c
}

// LoadAll rebuilds the snapshot from every active endpoint in the store.
func (c *RuleCache) LoadAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	endpoints, err := c.store.ActiveEndpoints(ctx)
	if err != nil {
		return err
	}

	next := emptySnapshot()
	for _, ep := range endpoints {
		cached, err := c.buildEndpoint(ctx, ep)
		if err != nil {
			return err
		}
		next.order = append(next.order, ep.ID)
		next.byID[ep.ID] = cached
	}

	c.snap.Store(next)
	c.logger.Info("rule cache loaded", "endpoints", len(next.order))
	return nil
}

// ReloadOne refreshes a single endpoint. A missing or inactive endpoint
// is evicted from the snapshot.
func (c *RuleCache) ReloadOne(ctx context.Context, endpointID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ep, err := c.store.Endpoint(ctx, endpointID)
	if err != nil {
		return err
	}
	if ep == nil || !ep.Active {
		c.snap.Store(c.snap.Load().without(endpointID))
		return nil
	}

	cached, err := c.buildEndpoint(ctx, ep)
	if err != nil {
		return err
	}
	c.snap.Store(c.snap.Load().with(endpointID, cached))
	return nil
}

// Remove evicts an endpoint from the snapshot unconditionally.
func (c *RuleCache) Remove(endpointID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Store(c.snap.Load().without(endpointID))
}

// GetAll returns the current snapshot's endpoints in load order. The
// returned slice is a copy; the cached values themselves are shared and
// must be treated as read-only.
func (c *RuleCache) GetAll() []*CachedEndpoint {
	snap := c.snap.Load()
	out := make([]*CachedEndpoint, 0, len(snap.order))
	for _, id := range snap.order {
		if ep, ok := snap.byID[id]; ok {
			out = append(out, ep)
		}
	}
	return out
}

// Get returns one cached endpoint, nil when absent.
func (c *RuleCache) Get(endpointID string) *CachedEndpoint {
	return c.snap.Load().byID[endpointID]
}

func (c *RuleCache) buildEndpoint(ctx context.Context, ep *virt.Endpoint) (*CachedEndpoint, error) {
	rules, err := c.store.ActiveRules(ctx, ep.ID)
	if err != nil {
		return nil, err
	}

	cached := &CachedEndpoint{
		ID:            ep.ID,
		ServiceID:     ep.ServiceID,
		Name:          ep.Name,
		Method:        ep.Method,
		Path:          ep.Path,
		Protocol:      ep.Protocol,
		DefaultStatus: ep.DefaultStatus,
		DefaultBody:   ep.DefaultBody,
		Rules:         make([]CachedRule, 0, len(rules)),
	}
	for _, rule := range rules {
		cached.Rules = append(cached.Rules, c.buildRule(rule))
	}
	sort.SliceStable(cached.Rules, func(i, j int) bool {
		return cached.Rules[i].Priority < cached.Rules[j].Priority
	})
	return cached, nil
}

func (c *RuleCache) buildRule(rule *virt.Rule) CachedRule {
	conditions, ok := matching.DecodeConditions(rule.Conditions)
	if !ok {
		c.logger.Warn("malformed rule conditions, treating as catch-all", "rule", rule.ID)
	}
	headers, ok := matching.DecodeHeaders(rule.Headers)
	if !ok {
		c.logger.Warn("malformed rule headers, dropping", "rule", rule.ID)
	}
	return CachedRule{
		ID:              rule.ID,
		EndpointID:      rule.EndpointID,
		Name:            rule.Name,
		Priority:        rule.Priority,
		LogicMode:       rule.LogicMode,
		Conditions:      conditions,
		Status:          rule.Status,
		Body:            rule.Body,
		Headers:         headers,
		DelayMs:         rule.DelayMs,
		TemplateBody:    rule.TemplateBody,
		TemplateHeaders: rule.TemplateHeaders,
		Fault:           rule.Fault,
		FaultConfig:     decodeFaultConfig(rule.FaultConfig),
	}
}

func decodeFaultConfig(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil
	}
	return cfg
}

func (s *snapshot) with(id string, ep *CachedEndpoint) *snapshot {
	next := &snapshot{byID: make(map[string]*CachedEndpoint, len(s.byID)+1)}
	for k, v := range s.byID {
		next.byID[k] = v
	}
	found := false
	next.order = make([]string, 0, len(s.order)+1)
	for _, existing := range s.order {
		next.order = append(next.order, existing)
		if existing == id {
			found = true
		}
	}
	if !found {
		next.order = append(next.order, id)
	}
	next.byID[id] = ep
	return next
}

func (s *snapshot) without(id string) *snapshot {
	next := &snapshot{byID: make(map[string]*CachedEndpoint, len(s.byID))}
	for k, v := range s.byID {
		if k != id {
			next.byID[k] = v
		}
	}
	next.order = make([]string, 0, len(s.order))
	for _, existing := range s.order {
		if existing != id {
			next.order = append(next.order, existing)
		}
	}
	return next
}

// Package engine ties the pipeline together: it matches inbound requests
// against the rule cache and renders the winning response, consulting the
// scenario engine, fault injector and proxy on the way.
package engine

import (
	"log/slog"
	"strings"

	"github.com/virtserve/virtserve/internal/matching"
	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/virt"
)

// MatchResult is the outcome of matching one request. Rule is nil for a
// default-response fallback.
type MatchResult struct {
	Endpoint *cache.CachedEndpoint
	Rule     *cache.CachedRule
	Default  bool
}

// Matcher finds the winning rule or default response for a request.
type Matcher struct {
	cache  *cache.RuleCache
	logger *slog.Logger
}

// NewMatcher creates a matcher reading from c.
func NewMatcher(c *cache.RuleCache, logger *slog.Logger) *Matcher {
	return &Matcher{cache: c, logger: logger}
}

// ResolveEndpoint finds the cached endpoint whose method and path template
// match the request and extracts its path parameters. Returns nil when no
// endpoint matches.
func (m *Matcher) ResolveEndpoint(req *virt.RequestContext) (*cache.CachedEndpoint, map[string]string) {
	for _, ep := range m.cache.GetAll() {
		if !strings.EqualFold(ep.Method, req.Method) {
			continue
		}
		if !matching.MatchPath(ep.Path, req.Path) {
			continue
		}
		return ep, matching.ExtractParams(ep.Path, req.Path)
	}
	return nil, nil
}

// FindMatch runs rule matching for a request whose endpoint was already
// resolved; path parameters must be present on the request context. The
// first rule in ascending priority order whose conditions hold wins. With
// no rule hit, a non-empty endpoint default yields a default result, and
// nil means the caller should proxy or 404.
func (m *Matcher) FindMatch(req *virt.RequestContext, ep *cache.CachedEndpoint) *MatchResult {
	for i := range ep.Rules {
		rule := &ep.Rules[i]
		if matching.EvaluateConditions(rule.Conditions, rule.LogicMode, req, ep.Protocol) {
			m.logger.Debug("rule matched",
				"endpoint", ep.ID, "rule", rule.ID, "priority", rule.Priority)
			return &MatchResult{Endpoint: ep, Rule: rule}
		}
	}

	if ep.DefaultBody != "" || ep.DefaultStatus != 0 {
		return &MatchResult{Endpoint: ep, Default: true}
	}
	return nil
}

// Match resolves the endpoint and runs rule matching in one call,
// mutating req with extracted path parameters.
func (m *Matcher) Match(req *virt.RequestContext) *MatchResult {
	ep, params := m.ResolveEndpoint(req)
	if ep == nil {
		return nil
	}
	req.PathParams = params
	return m.FindMatch(req, ep)
}

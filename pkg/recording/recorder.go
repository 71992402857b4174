// Package recording persists proxied exchanges as replayable rules: a
// recorded response becomes a catch-all rule on its endpoint, created on
// the fly when the request matched no registered endpoint.
package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/virtserve/virtserve/pkg/proxy"
	"github.com/virtserve/virtserve/pkg/virt"
)

// Recorded rules sit behind all hand-written rules so explicit stubs keep
// winning priority ties.
const recordedRulePriority = 100

// recordedServiceID groups endpoints synthesized by the recorder.
const recordedServiceID = "recorded"

// Store is the slice of the repository the recorder writes to.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *virt.Endpoint) error
	CreateRule(ctx context.Context, rule *virt.Rule) error
}

// CacheReloader refreshes one endpoint in the rule cache after recording.
type CacheReloader interface {
	ReloadOne(ctx context.Context, endpointID string) error
}

// Recorder turns proxied responses into rules. Recording is best-effort:
// every failure is logged and swallowed, the already-sent response is
// never affected.
type Recorder struct {
	store  Store
	cache  CacheReloader
	logger *slog.Logger
}

// NewRecorder creates a recorder writing through store and cache.
func NewRecorder(store Store, cache CacheReloader, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, cache: cache, logger: logger}
}

// Record persists one proxied exchange. With an empty endpointID a new
// endpoint named from the method and path is created first; either way a
// condition-free catch-all rule copying the upstream response is appended
// and the endpoint's cache entry reloaded.
func (r *Recorder) Record(ctx context.Context, req *virt.RequestContext, resp *proxy.Response, endpointID string) {
	if resp == nil {
		return
	}

	if endpointID == "" {
		ep := &virt.Endpoint{
			ID:        uuid.NewString(),
			ServiceID: recordedServiceID,
			Name:      fmt.Sprintf("%s %s", req.Method, req.Path),
			Method:    req.Method,
			Path:      req.Path,
			Protocol:  virt.ProtocolREST,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.store.CreateEndpoint(ctx, ep); err != nil {
			r.logger.Error("recording endpoint failed",
				"method", req.Method, "path", req.Path, "error", err)
			return
		}
		endpointID = ep.ID
	}

	rule := &virt.Rule{
		ID:         uuid.NewString(),
		EndpointID: endpointID,
		Name:       "recorded response",
		Priority:   recordedRulePriority,
		Status:     resp.Status,
		Body:       string(resp.Body),
		Headers:    encodeHeaders(resp),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.CreateRule(ctx, rule); err != nil {
		r.logger.Error("recording rule failed", "endpoint", endpointID, "error", err)
		return
	}

	if err := r.cache.ReloadOne(ctx, endpointID); err != nil {
		r.logger.Error("cache reload after recording failed", "endpoint", endpointID, "error", err)
		return
	}

	r.logger.Info("recorded proxied exchange",
		"endpoint", endpointID, "rule", rule.ID, "status", resp.Status)
}

func encodeHeaders(resp *proxy.Response) string {
	if len(resp.Headers) == 0 {
		return ""
	}
	flat := make(map[string]string, len(resp.Headers))
	for name, values := range resp.Headers {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	encoded, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return string(encoded)
}

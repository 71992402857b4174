package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/virtserve/virtserve/pkg/virt"
)

// ProxyStore is the slice of the repository the proxy cache reads from.
type ProxyStore interface {
	ActiveProxyConfigs(ctx context.Context) ([]*virt.ProxyConfig, error)
}

type proxySnapshot struct {
	byEndpoint map[string]*virt.ProxyConfig
	global     *virt.ProxyConfig
}

// ProxyCache holds active proxy configurations, indexed by endpoint.
// A configuration with no endpoint scope acts as the service-wide fallback.
type ProxyCache struct {
	store  ProxyStore
	logger *slog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[proxySnapshot]
}

// NewProxyCache creates an empty proxy cache backed by store.
func NewProxyCache(store ProxyStore, logger *slog.Logger) *ProxyCache {
	c := &ProxyCache{store: store, logger: logger}
	c.snap.Store(&proxySnapshot{byEndpoint: make(map[string]*virt.ProxyConfig)})
	return c
}

// LoadAll rebuilds the snapshot from every active proxy configuration.
func (c *ProxyCache) LoadAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	configs, err := c.store.ActiveProxyConfigs(ctx)
	if err != nil {
		return err
	}

	next := &proxySnapshot{byEndpoint: make(map[string]*virt.ProxyConfig, len(configs))}
	for _, cfg := range configs {
		if cfg.EndpointID == "" {
			next.global = cfg
			continue
		}
		next.byEndpoint[cfg.EndpointID] = cfg
	}

	c.snap.Store(next)
	c.logger.Info("proxy cache loaded", "configs", len(configs))
	return nil
}

// ForEndpoint returns the configuration scoped to an endpoint, falling
// back to the global configuration, nil when neither exists.
func (c *ProxyCache) ForEndpoint(endpointID string) *virt.ProxyConfig {
	snap := c.snap.Load()
	if cfg, ok := snap.byEndpoint[endpointID]; ok {
		return cfg
	}
	return snap.global
}

// Global returns the service-wide configuration, nil when none exists.
func (c *ProxyCache) Global() *virt.ProxyConfig {
	return c.snap.Load().global
}

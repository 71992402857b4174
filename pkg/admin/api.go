// Package admin exposes the management API: CRUD over endpoints, rules,
// scenarios and proxy configurations. Every mutation refreshes the
// affected cache entry so staleness is bounded by the last admin call.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/requestlog"
	"github.com/virtserve/virtserve/pkg/scenario"
)

// API serves the admin surface.
type API struct {
	repo      storage.Repository
	rules     *cache.RuleCache
	proxies   *cache.ProxyCache
	scenarios *scenario.Engine
	journal   *requestlog.Journal
	logger    *slog.Logger
}

// New creates the admin API over the repository and the live caches.
// journal may be nil; the /requests routes then report an empty journal.
func New(repo storage.Repository, rules *cache.RuleCache, proxies *cache.ProxyCache, scenarios *scenario.Engine, journal *requestlog.Journal, logger *slog.Logger) *API {
	return &API{
		repo:      repo,
		rules:     rules,
		proxies:   proxies,
		scenarios: scenarios,
		journal:   journal,
		logger:    logger,
	}
}

// Handler returns the admin mux, to be mounted under the admin prefix.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerRoutes(mux)
	return mux
}

// registerRoutes sets up all API routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /cache/reload", a.handleReloadAll)

	mux.HandleFunc("GET /endpoints", a.handleListEndpoints)
	mux.HandleFunc("POST /endpoints", a.handleCreateEndpoint)
	mux.HandleFunc("GET /endpoints/{id}", a.handleGetEndpoint)
	mux.HandleFunc("PUT /endpoints/{id}", a.handleUpdateEndpoint)
	mux.HandleFunc("DELETE /endpoints/{id}", a.handleDeleteEndpoint)

	mux.HandleFunc("GET /endpoints/{id}/rules", a.handleListRules)
	mux.HandleFunc("POST /endpoints/{id}/rules", a.handleCreateRule)
	mux.HandleFunc("PUT /rules/{id}", a.handleUpdateRule)
	mux.HandleFunc("DELETE /rules/{id}", a.handleDeleteRule)

	mux.HandleFunc("GET /scenarios", a.handleListScenarios)
	mux.HandleFunc("POST /scenarios", a.handleCreateScenario)
	mux.HandleFunc("DELETE /scenarios/{id}", a.handleDeleteScenario)
	mux.HandleFunc("GET /scenarios/{id}/state", a.handleGetScenarioState)
	mux.HandleFunc("POST /scenarios/{id}/reset", a.handleResetScenario)
	mux.HandleFunc("POST /scenarios/{id}/steps", a.handleCreateStep)

	mux.HandleFunc("GET /proxy-configs", a.handleListProxyConfigs)
	mux.HandleFunc("PUT /proxy-configs", a.handleSaveProxyConfig)
	mux.HandleFunc("DELETE /proxy-configs/{id}", a.handleDeleteProxyConfig)

	mux.HandleFunc("GET /requests", a.handleListRequests)
	mux.HandleFunc("GET /requests/{id}", a.handleGetRequest)
	mux.HandleFunc("DELETE /requests", a.handleClearRequests)
}

// reloadAll rebuilds every cache from the store.
func (a *API) reloadAll(ctx context.Context) error {
	if err := a.rules.LoadAll(ctx); err != nil {
		return err
	}
	if err := a.proxies.LoadAll(ctx); err != nil {
		return err
	}
	return a.scenarios.LoadAll(ctx)
}

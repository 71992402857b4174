package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/httputil"
	"github.com/virtserve/virtserve/pkg/virt"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]string{"status": "ok"})
}

func (a *API) handleReloadAll(w http.ResponseWriter, r *http.Request) {
	if err := a.reloadAll(r.Context()); err != nil {
		a.logger.Error("cache reload failed", "error", err)
		httputil.WriteInternalError(w, "reload_failed", err.Error())
		return
	}
	httputil.WriteNoContent(w)
}

func (a *API) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := a.repo.Endpoints(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, "list_failed", err.Error())
		return
	}
	httputil.WriteOK(w, endpoints)
}

func (a *API) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var ep virt.Endpoint
	if err := httputil.DecodeJSON(r, &ep); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if ep.Method == "" || ep.Path == "" {
		httputil.WriteBadRequest(w, "invalid_endpoint", "method and path are required")
		return
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Protocol == "" {
		ep.Protocol = virt.ProtocolREST
	}
	ep.CreatedAt = time.Now().UTC()

	if err := a.repo.CreateEndpoint(r.Context(), &ep); err != nil {
		httputil.WriteInternalError(w, "create_failed", err.Error())
		return
	}
	if err := a.rules.ReloadOne(r.Context(), ep.ID); err != nil {
		a.logger.Error("cache reload failed", "endpoint", ep.ID, "error", err)
	}
	httputil.WriteCreated(w, ep)
}

func (a *API) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, err := a.repo.Endpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteInternalError(w, "get_failed", err.Error())
		return
	}
	if ep == nil {
		httputil.WriteNotFound(w, "not_found", "endpoint not found")
		return
	}
	httputil.WriteOK(w, ep)
}

func (a *API) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	var ep virt.Endpoint
	if err := httputil.DecodeJSON(r, &ep); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	ep.ID = r.PathValue("id")

	if err := a.repo.UpdateEndpoint(r.Context(), &ep); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := a.rules.ReloadOne(r.Context(), ep.ID); err != nil {
		a.logger.Error("cache reload failed", "endpoint", ep.ID, "error", err)
	}
	httputil.WriteOK(w, ep)
}

func (a *API) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.repo.DeleteEndpoint(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	a.rules.Remove(id)
	httputil.WriteNoContent(w)
}

func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.repo.ActiveRules(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteInternalError(w, "list_failed", err.Error())
		return
	}
	httputil.WriteOK(w, rules)
}

func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	endpointID := r.PathValue("id")
	ep, err := a.repo.Endpoint(r.Context(), endpointID)
	if err != nil {
		httputil.WriteInternalError(w, "get_failed", err.Error())
		return
	}
	if ep == nil {
		httputil.WriteNotFound(w, "not_found", "endpoint not found")
		return
	}

	var rule virt.Rule
	if err := httputil.DecodeJSON(r, &rule); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.EndpointID = endpointID
	rule.CreatedAt = time.Now().UTC()

	if err := a.repo.CreateRule(r.Context(), &rule); err != nil {
		httputil.WriteInternalError(w, "create_failed", err.Error())
		return
	}
	if err := a.rules.ReloadOne(r.Context(), endpointID); err != nil {
		a.logger.Error("cache reload failed", "endpoint", endpointID, "error", err)
	}
	httputil.WriteCreated(w, rule)
}

func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := a.repo.Rule(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, "get_failed", err.Error())
		return
	}
	if existing == nil {
		httputil.WriteNotFound(w, "not_found", "rule not found")
		return
	}

	var rule virt.Rule
	if err := httputil.DecodeJSON(r, &rule); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	rule.ID = id
	rule.EndpointID = existing.EndpointID

	if err := a.repo.UpdateRule(r.Context(), &rule); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := a.rules.ReloadOne(r.Context(), rule.EndpointID); err != nil {
		a.logger.Error("cache reload failed", "endpoint", rule.EndpointID, "error", err)
	}
	httputil.WriteOK(w, rule)
}

func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := a.repo.Rule(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, "get_failed", err.Error())
		return
	}
	if existing == nil {
		httputil.WriteNotFound(w, "not_found", "rule not found")
		return
	}

	if err := a.repo.DeleteRule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := a.rules.ReloadOne(r.Context(), existing.EndpointID); err != nil {
		a.logger.Error("cache reload failed", "endpoint", existing.EndpointID, "error", err)
	}
	httputil.WriteNoContent(w)
}

// scenarioView is a scenario plus its live in-memory state.
type scenarioView struct {
	virt.Scenario
	TrackedState string `json:"trackedState,omitempty"`
}

func (a *API) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := a.repo.ActiveScenarios(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, "list_failed", err.Error())
		return
	}
	views := make([]scenarioView, 0, len(scenarios))
	for _, sc := range scenarios {
		view := scenarioView{Scenario: *sc}
		if state, ok := a.scenarios.GetCurrentState(sc.ID); ok {
			view.TrackedState = state
		}
		views = append(views, view)
	}
	httputil.WriteOK(w, views)
}

// createScenarioRequest creates a scenario together with its steps.
type createScenarioRequest struct {
	virt.Scenario
	Steps []virt.ScenarioStep `json:"steps,omitempty"`
}

func (a *API) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req createScenarioRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if req.InitialState == "" {
		httputil.WriteBadRequest(w, "invalid_scenario", "initialState is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CurrentState == "" {
		req.CurrentState = req.InitialState
	}

	if err := a.repo.CreateScenario(r.Context(), &req.Scenario); err != nil {
		httputil.WriteInternalError(w, "create_failed", err.Error())
		return
	}
	for i := range req.Steps {
		step := req.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.ScenarioID = req.ID
		if err := a.repo.CreateStep(r.Context(), &step); err != nil {
			httputil.WriteInternalError(w, "create_failed", err.Error())
			return
		}
	}

	if err := a.scenarios.LoadAll(r.Context()); err != nil {
		a.logger.Error("scenario reload failed", "error", err)
	}
	httputil.WriteCreated(w, req.Scenario)
}

func (a *API) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := a.repo.DeleteScenario(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := a.scenarios.LoadAll(r.Context()); err != nil {
		a.logger.Error("scenario reload failed", "error", err)
	}
	httputil.WriteNoContent(w)
}

func (a *API) handleGetScenarioState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, ok := a.scenarios.GetCurrentState(id)
	if !ok {
		httputil.WriteNotFound(w, "not_found", "scenario not tracked")
		return
	}
	httputil.WriteOK(w, map[string]string{"scenarioId": id, "currentState": state})
}

func (a *API) handleResetScenario(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.scenarios.Reset(r.Context(), id); err != nil {
		httputil.WriteInternalError(w, "reset_failed", err.Error())
		return
	}
	httputil.WriteNoContent(w)
}

func (a *API) handleCreateStep(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.PathValue("id")
	sc, err := a.repo.Scenario(r.Context(), scenarioID)
	if err != nil {
		httputil.WriteInternalError(w, "get_failed", err.Error())
		return
	}
	if sc == nil {
		httputil.WriteNotFound(w, "not_found", "scenario not found")
		return
	}

	var step virt.ScenarioStep
	if err := httputil.DecodeJSON(r, &step); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if step.StateName == "" || step.EndpointID == "" {
		httputil.WriteBadRequest(w, "invalid_step", "stateName and endpointId are required")
		return
	}
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	step.ScenarioID = scenarioID

	if err := a.repo.CreateStep(r.Context(), &step); err != nil {
		httputil.WriteInternalError(w, "create_failed", err.Error())
		return
	}
	if err := a.scenarios.LoadAll(r.Context()); err != nil {
		a.logger.Error("scenario reload failed", "error", err)
	}
	httputil.WriteCreated(w, step)
}

func (a *API) handleListProxyConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := a.repo.ActiveProxyConfigs(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, "list_failed", err.Error())
		return
	}
	httputil.WriteOK(w, configs)
}

func (a *API) handleSaveProxyConfig(w http.ResponseWriter, r *http.Request) {
	var cfg virt.ProxyConfig
	if err := httputil.DecodeJSON(r, &cfg); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if cfg.TargetBaseURL == "" {
		httputil.WriteBadRequest(w, "invalid_proxy_config", "targetBaseUrl is required")
		return
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if err := a.repo.SaveProxyConfig(r.Context(), &cfg); err != nil {
		httputil.WriteInternalError(w, "save_failed", err.Error())
		return
	}
	if err := a.proxies.LoadAll(r.Context()); err != nil {
		a.logger.Error("proxy cache reload failed", "error", err)
	}
	httputil.WriteOK(w, cfg)
}

func (a *API) handleDeleteProxyConfig(w http.ResponseWriter, r *http.Request) {
	if err := a.repo.DeleteProxyConfig(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := a.proxies.LoadAll(r.Context()); err != nil {
		a.logger.Error("proxy cache reload failed", "error", err)
	}
	httputil.WriteNoContent(w)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFound(w, "not_found", err.Error())
		return
	}
	httputil.WriteInternalError(w, "store_error", err.Error())
}

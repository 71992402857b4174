package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/logging"
	"github.com/virtserve/virtserve/pkg/requestlog"
	"github.com/virtserve/virtserve/pkg/scenario"
	"github.com/virtserve/virtserve/pkg/virt"
)

type testAPI struct {
	api     *API
	repo    *storage.MemoryRepository
	rules   *cache.RuleCache
	journal *requestlog.Journal
	mux     http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := logging.Nop()
	repo := storage.NewMemoryRepository()
	rules := cache.NewRuleCache(repo, logger)
	proxies := cache.NewProxyCache(repo, logger)
	scenarios := scenario.NewEngine(repo, logger)
	journal := requestlog.NewJournal(100)
	api := New(repo, rules, proxies, scenarios, journal, logger)
	return &testAPI{api: api, repo: repo, rules: rules, journal: journal, mux: api.Handler()}
}

func (ta *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	ta.mux.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t)
	w := ta.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEndpointCRUD(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/endpoints",
		`{"method":"GET","path":"/users/{id}","active":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var ep virt.Endpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ep))
	require.NotEmpty(t, ep.ID)
	assert.Equal(t, virt.ProtocolREST, ep.Protocol)

	// creating an active endpoint makes it matchable immediately
	require.NotNil(t, ta.rules.Get(ep.ID))

	w = ta.do(t, "GET", "/endpoints/"+ep.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ta.do(t, "GET", "/endpoints", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ep.ID)

	// deactivating evicts from the cache
	w = ta.do(t, "PUT", "/endpoints/"+ep.ID,
		`{"method":"GET","path":"/users/{id}","active":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, ta.rules.Get(ep.ID))

	w = ta.do(t, "DELETE", "/endpoints/"+ep.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ta.do(t, "GET", "/endpoints/"+ep.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndpointValidation(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/endpoints", `{"path":"/x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "POST", "/endpoints", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "PUT", "/endpoints/ghost", `{"method":"GET","path":"/x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleCRUD(t *testing.T) {
	ta := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, ta.repo.CreateEndpoint(ctx, &virt.Endpoint{
		ID: "ep1", Method: "GET", Path: "/x", Active: true,
	}))

	w := ta.do(t, "POST", "/endpoints/ep1/rules",
		`{"priority":5,"status":200,"body":"{}","active":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var rule virt.Rule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.Equal(t, "ep1", rule.EndpointID)

	cached := ta.rules.Get("ep1")
	require.NotNil(t, cached)
	require.Len(t, cached.Rules, 1)

	w = ta.do(t, "PUT", "/rules/"+rule.ID,
		`{"priority":1,"status":201,"active":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 201, ta.rules.Get("ep1").Rules[0].Status)

	w = ta.do(t, "DELETE", "/rules/"+rule.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, ta.rules.Get("ep1").Rules)

	w = ta.do(t, "POST", "/endpoints/ghost/rules", `{"status":200}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScenarioLifecycle(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/scenarios", `{
		"name":"order-flow","initialState":"start","active":true,
		"steps":[{"stateName":"start","endpointId":"ep1","nextState":"done","status":201}]
	}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var sc virt.Scenario
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sc))

	w = ta.do(t, "GET", "/scenarios/"+sc.ID+"/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currentState":"start"`)

	w = ta.do(t, "POST", "/scenarios/"+sc.ID+"/steps",
		`{"stateName":"done","endpointId":"ep1","status":200}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ta.do(t, "POST", "/scenarios/"+sc.ID+"/reset", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ta.do(t, "GET", "/scenarios", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "order-flow")

	w = ta.do(t, "DELETE", "/scenarios/"+sc.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ta.do(t, "GET", "/scenarios/"+sc.ID+"/state", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxyConfigCRUD(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "PUT", "/proxy-configs",
		`{"targetBaseUrl":"http://upstream:9000","active":true,"recording":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var cfg virt.ProxyConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	require.NotEmpty(t, cfg.ID)

	w = ta.do(t, "GET", "/proxy-configs", "")
	assert.Contains(t, w.Body.String(), "http://upstream:9000")

	w = ta.do(t, "PUT", "/proxy-configs", `{"active":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "DELETE", "/proxy-configs/"+cfg.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestReloadAll(t *testing.T) {
	ta := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, ta.repo.CreateEndpoint(ctx, &virt.Endpoint{
		ID: "ep1", Method: "GET", Path: "/x", Active: true,
	}))

	require.Nil(t, ta.rules.Get("ep1"))
	w := ta.do(t, "POST", "/cache/reload", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotNil(t, ta.rules.Get("ep1"))
}

func TestRequestJournal(t *testing.T) {
	ta := newTestAPI(t)
	ta.journal.Log(&requestlog.Entry{
		Method: "GET", Path: "/orders/1", EndpointID: "ep-1",
		Outcome: requestlog.OutcomeRule, Status: 200,
	})
	ta.journal.Log(&requestlog.Entry{
		Method: "POST", Path: "/orders", Outcome: requestlog.OutcomeNone, Status: 404,
	})

	w := ta.do(t, "GET", "/requests", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []*requestlog.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "/orders", entries[0].Path)

	w = ta.do(t, "GET", "/requests?outcome=rule", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "ep-1", entries[0].EndpointID)

	w = ta.do(t, "GET", "/requests/"+entries[0].ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ta.do(t, "GET", "/requests?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "DELETE", "/requests", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, ta.journal.Count())

	w = ta.do(t, "GET", "/requests/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/logging"
	"github.com/virtserve/virtserve/pkg/virt"
)

func newEngine(t *testing.T, repo *storage.MemoryRepository) *Engine {
	t.Helper()
	e := NewEngine(repo, logging.Nop())
	require.NoError(t, e.LoadAll(context.Background()))
	return e
}

func seedOrderFlow(t *testing.T) *storage.MemoryRepository {
	t.Helper()
	ctx := context.Background()
	repo := storage.NewMemoryRepository()

	require.NoError(t, repo.CreateScenario(ctx, &virt.Scenario{
		ID: "sc1", Name: "order-flow", InitialState: "start", CurrentState: "start", Active: true,
	}))
	require.NoError(t, repo.CreateStep(ctx, &virt.ScenarioStep{
		ID: "st1", ScenarioID: "sc1", StateName: "start", EndpointID: "ep1",
		NextState: "step2", Status: 201, Body: `{"state":"created"}`,
	}))
	require.NoError(t, repo.CreateStep(ctx, &virt.ScenarioStep{
		ID: "st2", ScenarioID: "sc1", StateName: "step2", EndpointID: "ep1",
		Status: 200, Body: `{"state":"confirmed"}`,
	}))
	return repo
}

func TestTryMatch_AdvancesState(t *testing.T) {
	repo := seedOrderFlow(t)
	e := newEngine(t, repo)
	req := &virt.RequestContext{Method: "POST", Path: "/orders"}

	m := e.TryMatch(req, "ep1", virt.ProtocolREST)
	require.NotNil(t, m)
	assert.Equal(t, "st1", m.Step.ID)
	assert.Equal(t, "sc1", m.ScenarioID)

	state, ok := e.GetCurrentState("sc1")
	require.True(t, ok)
	assert.Equal(t, "step2", state)

	// the durable write runs detached from the request
	assert.Eventually(t, func() bool {
		sc, err := repo.Scenario(context.Background(), "sc1")
		return err == nil && sc.CurrentState == "step2"
	}, time.Second, 5*time.Millisecond)
}

func TestTryMatch_NoNextStateKeepsState(t *testing.T) {
	repo := seedOrderFlow(t)
	e := newEngine(t, repo)
	req := &virt.RequestContext{}

	require.NotNil(t, e.TryMatch(req, "ep1", virt.ProtocolREST))

	m := e.TryMatch(req, "ep1", virt.ProtocolREST)
	require.NotNil(t, m)
	assert.Equal(t, "st2", m.Step.ID)

	state, _ := e.GetCurrentState("sc1")
	assert.Equal(t, "step2", state)
}

func TestTryMatch_WrongEndpointOrState(t *testing.T) {
	repo := seedOrderFlow(t)
	e := newEngine(t, repo)
	req := &virt.RequestContext{}

	assert.Nil(t, e.TryMatch(req, "other-endpoint", virt.ProtocolREST))

	// st2 fires from "step2", not "start"
	m := e.TryMatch(req, "ep1", virt.ProtocolREST)
	require.NotNil(t, m)
	assert.Equal(t, "st1", m.Step.ID)
}

func TestTryMatch_ConditionsAndPriority(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	require.NoError(t, repo.CreateScenario(ctx, &virt.Scenario{
		ID: "sc1", InitialState: "start", CurrentState: "start", Active: true,
	}))
	require.NoError(t, repo.CreateStep(ctx, &virt.ScenarioStep{
		ID: "guarded", ScenarioID: "sc1", StateName: "start", EndpointID: "ep1", Priority: 1,
		Conditions: `[{"source":"header","field":"X-Kind","operator":"equals","value":"special"}]`,
	}))
	require.NoError(t, repo.CreateStep(ctx, &virt.ScenarioStep{
		ID: "fallback", ScenarioID: "sc1", StateName: "start", EndpointID: "ep1", Priority: 10,
	}))
	e := newEngine(t, repo)

	plain := &virt.RequestContext{}
	m := e.TryMatch(plain, "ep1", virt.ProtocolREST)
	require.NotNil(t, m)
	assert.Equal(t, "fallback", m.Step.ID)

	special := &virt.RequestContext{Headers: map[string][]string{"X-Kind": {"special"}}}
	m = e.TryMatch(special, "ep1", virt.ProtocolREST)
	require.NotNil(t, m)
	assert.Equal(t, "guarded", m.Step.ID)
}

func TestTryMatch_MalformedConditionsMatch(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	require.NoError(t, repo.CreateScenario(ctx, &virt.Scenario{
		ID: "sc1", InitialState: "start", CurrentState: "start", Active: true,
	}))
	require.NoError(t, repo.CreateStep(ctx, &virt.ScenarioStep{
		ID: "st1", ScenarioID: "sc1", StateName: "start", EndpointID: "ep1",
		Conditions: `{broken json`,
	}))
	e := newEngine(t, repo)

	assert.NotNil(t, e.TryMatch(&virt.RequestContext{}, "ep1", virt.ProtocolREST))
}

func TestReset(t *testing.T) {
	repo := seedOrderFlow(t)
	e := newEngine(t, repo)
	ctx := context.Background()

	require.NotNil(t, e.TryMatch(&virt.RequestContext{}, "ep1", virt.ProtocolREST))
	state, _ := e.GetCurrentState("sc1")
	require.Equal(t, "step2", state)

	require.NoError(t, e.Reset(ctx, "sc1"))
	state, _ = e.GetCurrentState("sc1")
	assert.Equal(t, "start", state)

	sc, err := repo.Scenario(ctx, "sc1")
	require.NoError(t, err)
	assert.Equal(t, "start", sc.CurrentState)
}

func TestLoadAll_SkipsInactiveAndSeedsPersistedState(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	require.NoError(t, repo.CreateScenario(ctx, &virt.Scenario{
		ID: "active", InitialState: "a", CurrentState: "b", Active: true,
	}))
	require.NoError(t, repo.CreateScenario(ctx, &virt.Scenario{
		ID: "inactive", InitialState: "a", Active: false,
	}))
	e := newEngine(t, repo)

	state, ok := e.GetCurrentState("active")
	require.True(t, ok)
	assert.Equal(t, "b", state)

	_, ok = e.GetCurrentState("inactive")
	assert.False(t, ok)
}

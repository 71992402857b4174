package recording

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/logging"
	"github.com/virtserve/virtserve/pkg/proxy"
	"github.com/virtserve/virtserve/pkg/virt"
)

func TestRecord_SynthesizesEndpoint(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	c := cache.NewRuleCache(repo, logging.Nop())
	rec := NewRecorder(repo, c, logging.Nop())

	req := &virt.RequestContext{Method: "GET", Path: "/api/widgets"}
	resp := &proxy.Response{
		Status:  http.StatusOK,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(`{"widgets":[]}`),
	}

	rec.Record(ctx, req, resp, "")

	eps, err := repo.ActiveEndpoints(ctx)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "GET /api/widgets", eps[0].Name)
	assert.Equal(t, "recorded", eps[0].ServiceID)
	assert.Equal(t, "GET", eps[0].Method)

	rules, err := repo.ActiveRules(ctx, eps[0].ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 100, rules[0].Priority)
	assert.Equal(t, http.StatusOK, rules[0].Status)
	assert.Equal(t, `{"widgets":[]}`, rules[0].Body)
	assert.JSONEq(t, `{"Content-Type":"application/json"}`, rules[0].Headers)

	// the cache picked up the new endpoint
	cached := c.Get(eps[0].ID)
	require.NotNil(t, cached)
	require.Len(t, cached.Rules, 1)
	assert.Empty(t, cached.Rules[0].Conditions)
}

func TestRecord_ExistingEndpointAppendsRule(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	require.NoError(t, repo.CreateEndpoint(ctx, &virt.Endpoint{
		ID: "ep1", Method: "GET", Path: "/api/widgets", Active: true,
	}))
	c := cache.NewRuleCache(repo, logging.Nop())
	require.NoError(t, c.LoadAll(ctx))
	rec := NewRecorder(repo, c, logging.Nop())

	rec.Record(ctx, &virt.RequestContext{Method: "GET", Path: "/api/widgets"},
		&proxy.Response{Status: 502, Body: []byte("bad gateway")}, "ep1")

	rules, err := repo.ActiveRules(ctx, "ep1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 502, rules[0].Status)

	eps, err := repo.ActiveEndpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, eps, 1)
}

func TestRecord_NilResponseIsNoOp(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	c := cache.NewRuleCache(repo, logging.Nop())
	rec := NewRecorder(repo, c, logging.Nop())

	rec.Record(ctx, &virt.RequestContext{Method: "GET", Path: "/x"}, nil, "")

	eps, err := repo.ActiveEndpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, eps)
}

type failingStore struct{ storage.Repository }

func (f *failingStore) CreateRule(context.Context, *virt.Rule) error {
	return assert.AnError
}

func TestRecord_StoreFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	require.NoError(t, repo.CreateEndpoint(ctx, &virt.Endpoint{ID: "ep1", Active: true}))
	c := cache.NewRuleCache(repo, logging.Nop())
	rec := NewRecorder(&failingStore{repo}, c, logging.Nop())

	assert.NotPanics(t, func() {
		rec.Record(ctx, &virt.RequestContext{Method: "GET", Path: "/x"},
			&proxy.Response{Status: 200}, "ep1")
	})
}

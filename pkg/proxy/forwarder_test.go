package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtserve/virtserve/pkg/logging"
	"github.com/virtserve/virtserve/pkg/virt"
)

func TestBuildTargetURL(t *testing.T) {
	tests := []struct {
		name string
		req  *virt.RequestContext
		cfg  *virt.ProxyConfig
		want string
	}{
		{
			"prefix stripped",
			&virt.RequestContext{Path: "/api/v1/users"},
			&virt.ProxyConfig{TargetBaseURL: "https://up.example.com", StripPathPrefix: "/api/v1"},
			"https://up.example.com/users",
		},
		{
			"prefix stripped case-insensitively",
			&virt.RequestContext{Path: "/API/V1/users"},
			&virt.ProxyConfig{TargetBaseURL: "https://up.example.com", StripPathPrefix: "/api/v1"},
			"https://up.example.com/users",
		},
		{
			"no prefix match leaves path alone",
			&virt.RequestContext{Path: "/other/users"},
			&virt.ProxyConfig{TargetBaseURL: "https://up.example.com", StripPathPrefix: "/api/v1"},
			"https://up.example.com/other/users",
		},
		{
			"query preserved",
			&virt.RequestContext{Path: "/users", RawQuery: "page=2&sort=name"},
			&virt.ProxyConfig{TargetBaseURL: "https://up.example.com"},
			"https://up.example.com/users?page=2&sort=name",
		},
		{
			"trailing slash on base",
			&virt.RequestContext{Path: "/users"},
			&virt.ProxyConfig{TargetBaseURL: "https://up.example.com/"},
			"https://up.example.com/users",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildTargetURL(tt.req, tt.cfg))
		})
	}
}

func TestForward(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":true}`))
	}))
	defer upstream.Close()

	f := NewForwarder(logging.Nop())
	req := &virt.RequestContext{
		Method: "POST",
		Path:   "/orders",
		Body:   []byte(`{"item":"x"}`),
		Headers: map[string][]string{
			"X-Custom":   {"keep"},
			"Connection": {"close"},
			"Upgrade":    {"websocket"},
		},
	}
	cfg := &virt.ProxyConfig{
		TargetBaseURL:  upstream.URL,
		ForwardHeaders: true,
		ExtraHeaders:   map[string]string{"X-Injected": "extra"},
	}

	resp := f.Forward(context.Background(), req, cfg)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"created":true}`, string(resp.Body))
	assert.Equal(t, "yes", resp.Headers.Get("X-Upstream"))

	assert.Equal(t, "keep", gotHeaders.Get("X-Custom"))
	assert.Equal(t, "extra", gotHeaders.Get("X-Injected"))
	assert.Empty(t, gotHeaders.Get("Upgrade"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, `{"item":"x"}`, string(gotBody))
}

func TestForward_GetWithoutBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	f := NewForwarder(logging.Nop())
	req := &virt.RequestContext{Method: "GET", Path: "/x", Body: []byte("ignored")}
	resp := f.Forward(context.Background(), req, &virt.ProxyConfig{TargetBaseURL: upstream.URL})
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestForward_NoForwardHeadersByDefault(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Custom"))
	}))
	defer upstream.Close()

	f := NewForwarder(logging.Nop())
	req := &virt.RequestContext{
		Method:  "GET",
		Path:    "/x",
		Headers: map[string][]string{"X-Custom": {"secret"}},
	}
	require.NotNil(t, f.Forward(context.Background(), req, &virt.ProxyConfig{TargetBaseURL: upstream.URL}))
}

func TestForward_UnreachableUpstreamReturnsNil(t *testing.T) {
	f := NewForwarder(logging.Nop())
	req := &virt.RequestContext{Method: "GET", Path: "/x"}
	cfg := &virt.ProxyConfig{TargetBaseURL: "http://127.0.0.1:1", TimeoutMs: 200}

	assert.Nil(t, f.Forward(context.Background(), req, cfg))
}

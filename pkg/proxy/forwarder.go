// Package proxy forwards unmatched requests to a configured upstream and
// returns its response for replay or recording.
package proxy

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/virtserve/virtserve/pkg/virt"
)

const defaultTimeoutMs = 30000

// hopByHopHeaders are connection-level headers that must never be
// forwarded in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
}

// Response is a buffered upstream response.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Forwarder issues upstream calls. Safe for concurrent use.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

// NewForwarder creates a forwarder with its own HTTP client. Per-call
// timeouts come from each proxy configuration.
func NewForwarder(logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: &http.Client{},
		logger: logger,
	}
}

// Forward sends the request upstream per cfg and returns the buffered
// response. Any transport failure is logged and returns nil so the caller
// can fall back.
func (f *Forwarder) Forward(ctx context.Context, req *virt.RequestContext, cfg *virt.ProxyConfig) *Response {
	target := buildTargetURL(req, cfg)

	timeout := time.Duration(defaultTimeoutMs) * time.Millisecond
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Method != http.MethodGet && req.Method != http.MethodHead && len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	upstream, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		f.logger.Error("building proxy request failed", "target", target, "error", err)
		return nil
	}

	if cfg.ForwardHeaders {
		for name, values := range req.Headers {
			if isHopByHop(name) {
				continue
			}
			for _, v := range values {
				upstream.Header.Add(name, v)
			}
		}
	}
	for name, value := range cfg.ExtraHeaders {
		upstream.Header.Set(name, value)
	}
	if body != nil && upstream.Header.Get("Content-Type") == "" {
		upstream.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(upstream)
	if err != nil {
		f.logger.Warn("proxy request failed", "target", target, "error", err)
		return nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn("reading proxy response failed", "target", target, "error", err)
		return nil
	}

	headers := make(http.Header, len(resp.Header))
	for name, values := range resp.Header {
		if isHopByHop(name) {
			continue
		}
		headers[name] = values
	}

	f.logger.Debug("proxied request",
		"method", req.Method, "target", target, "status", resp.StatusCode)
	return &Response{Status: resp.StatusCode, Headers: headers, Body: payload}
}

// buildTargetURL strips the configured path prefix case-insensitively,
// appends the remainder to the target base and preserves the query string.
func buildTargetURL(req *virt.RequestContext, cfg *virt.ProxyConfig) string {
	path := req.Path
	if prefix := cfg.StripPathPrefix; prefix != "" &&
		len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix) {
		path = path[len(prefix):]
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := strings.TrimRight(cfg.TargetBaseURL, "/") + path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}
	return target
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

package engine

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/virtserve/virtserve/internal/matching"
	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/scenario"
	"github.com/virtserve/virtserve/pkg/template"
	"github.com/virtserve/virtserve/pkg/virt"
)

// Renderer writes matched responses: delay, status, headers, content-type
// defaulting and body, running templated parts through the template engine.
type Renderer struct {
	templates *template.Engine
	logger    *slog.Logger
}

// NewRenderer creates a renderer using templates for dynamic parts.
func NewRenderer(templates *template.Engine, logger *slog.Logger) *Renderer {
	return &Renderer{templates: templates, logger: logger}
}

// Render writes a match result. Rule results honor the configured delay
// and template flags; default results write the endpoint default verbatim.
func (r *Renderer) Render(ctx context.Context, w http.ResponseWriter, req *virt.RequestContext, result *MatchResult) {
	if result.Default || result.Rule == nil {
		r.renderDefault(w, result.Endpoint)
		return
	}
	r.renderRule(ctx, w, req, result.Endpoint, result.Rule)
}

func (r *Renderer) renderDefault(w http.ResponseWriter, ep *cache.CachedEndpoint) {
	w.Header().Set("Content-Type", defaultContentType(ep.Protocol))
	w.WriteHeader(statusOr(ep.DefaultStatus, http.StatusOK))
	if ep.DefaultBody != "" {
		_, _ = w.Write([]byte(ep.DefaultBody))
	}
}

func (r *Renderer) renderRule(ctx context.Context, w http.ResponseWriter, req *virt.RequestContext, ep *cache.CachedEndpoint, rule *cache.CachedRule) {
	if rule.DelayMs > 0 {
		wait(ctx, time.Duration(rule.DelayMs)*time.Millisecond)
	}

	tplCtx := template.NewContext(req)

	contentTypeSet := false
	for name, value := range rule.Headers {
		if rule.TemplateHeaders {
			value = r.renderTemplate(value, tplCtx, rule.ID)
		}
		w.Header().Set(name, value)
		if strings.EqualFold(name, "Content-Type") {
			contentTypeSet = true
		}
	}
	if !contentTypeSet {
		w.Header().Set("Content-Type", defaultContentType(ep.Protocol))
	}

	body := rule.Body
	if rule.TemplateBody {
		body = r.renderTemplate(body, tplCtx, rule.ID)
	}

	w.WriteHeader(statusOr(rule.Status, http.StatusOK))
	if body != "" {
		_, _ = w.Write([]byte(body))
	}
}

// RenderStep writes a fired scenario step's response. Step payloads are
// written verbatim, like endpoint defaults.
func (r *Renderer) RenderStep(w http.ResponseWriter, match *scenario.StepMatch, protocol virt.Protocol) {
	step := match.Step

	headers, ok := matching.DecodeHeaders(step.Headers)
	if !ok {
		r.logger.Warn("malformed step headers, dropping", "step", step.ID)
	}
	contentTypeSet := false
	for name, value := range headers {
		w.Header().Set(name, value)
		if strings.EqualFold(name, "Content-Type") {
			contentTypeSet = true
		}
	}
	if !contentTypeSet {
		w.Header().Set("Content-Type", defaultContentType(protocol))
	}

	w.WriteHeader(statusOr(step.Status, http.StatusOK))
	if step.Body != "" {
		_, _ = w.Write([]byte(step.Body))
	}
}

// renderTemplate renders one templated value. A template validation error
// is logged and the raw value served so a bad rule still answers.
func (r *Renderer) renderTemplate(tpl string, ctx *template.Context, ruleID string) string {
	out, err := r.templates.Render(tpl, ctx)
	if err != nil {
		r.logger.Warn("template rendering failed, serving raw value", "rule", ruleID, "error", err)
		return tpl
	}
	return out
}

func defaultContentType(protocol virt.Protocol) string {
	if protocol == virt.ProtocolSOAP {
		return "text/xml"
	}
	return "application/json"
}

func statusOr(status, fallback int) int {
	if status == 0 {
		return fallback
	}
	return status
}

func wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

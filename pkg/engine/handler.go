package engine

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/fault"
	"github.com/virtserve/virtserve/pkg/httputil"
	"github.com/virtserve/virtserve/pkg/metrics"
	"github.com/virtserve/virtserve/pkg/proxy"
	"github.com/virtserve/virtserve/pkg/recording"
	"github.com/virtserve/virtserve/pkg/requestlog"
	"github.com/virtserve/virtserve/pkg/scenario"
	"github.com/virtserve/virtserve/pkg/virt"
)

// maxBodyBytes caps buffered request bodies.
const maxBodyBytes = 10 << 20

// Deps are the collaborators a Handler orchestrates. Scenarios, Proxies,
// Forwarder, Recorder and Journal are optional; a nil value disables that
// stage.
type Deps struct {
	Matcher   *Matcher
	Renderer  *Renderer
	Scenarios *scenario.Engine
	Faults    *fault.Injector
	Proxies   *cache.ProxyCache
	Forwarder *proxy.Forwarder
	Recorder  *recording.Recorder
	Journal   *requestlog.Journal
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Metrics are the pipeline's instruments.
type Metrics struct {
	Requests *metrics.Counter
	Duration *metrics.Histogram
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{
		Requests: reg.NewCounter("virtserve_requests_total",
			"Requests served, by pipeline outcome.", "outcome"),
		Duration: reg.NewHistogram("virtserve_request_duration_seconds",
			"Request handling duration in seconds.", metrics.DefaultBuckets),
	}
}

// Handler serves virtualized endpoints. Per request: scenario steps fire
// first, then rule matching with fault injection, then the endpoint
// default, then the proxy fallback, then 404.
type Handler struct {
	deps Deps
}

// NewHandler creates the request pipeline handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteBadRequest(w, "bad_request", "failed to read request body")
		return
	}
	req := virt.NewRequestContext(r, body)

	entry := &requestlog.Entry{
		Method:      req.Method,
		Path:        req.Path,
		QueryString: req.RawQuery,
		RemoteAddr:  r.RemoteAddr,
		BodySize:    len(body),
		Outcome:     requestlog.OutcomeNone,
	}
	if h.deps.Journal != nil || h.deps.Metrics != nil {
		var sw *statusWriter
		if h.deps.Journal != nil {
			sw = &statusWriter{ResponseWriter: w}
			w = sw
		}
		start := time.Now()
		defer func() {
			elapsed := time.Since(start)
			if h.deps.Metrics != nil {
				h.deps.Metrics.Requests.Inc(string(entry.Outcome))
				h.deps.Metrics.Duration.Observe(elapsed.Seconds())
			}
			if h.deps.Journal != nil {
				entry.Status = sw.status
				entry.DurationMs = elapsed.Milliseconds()
				h.deps.Journal.Log(entry)
			}
		}()
	}

	ep, params := h.deps.Matcher.ResolveEndpoint(req)
	if ep != nil {
		req.PathParams = params
		entry.EndpointID = ep.ID
	}

	if ep != nil && h.deps.Scenarios != nil {
		if match := h.deps.Scenarios.TryMatch(req, ep.ID, ep.Protocol); match != nil {
			h.deps.Logger.Debug("scenario step fired",
				"scenario", match.ScenarioID, "step", match.Step.ID,
				"method", req.Method, "path", req.Path)
			entry.Outcome = requestlog.OutcomeScenario
			entry.ScenarioID = match.ScenarioID
			h.deps.Renderer.RenderStep(w, match, ep.Protocol)
			return
		}
	}

	if ep != nil {
		if result := h.deps.Matcher.FindMatch(req, ep); result != nil {
			if result.Rule != nil {
				entry.RuleID = result.Rule.ID
			}
			if result.Rule != nil &&
				h.deps.Faults.Inject(r.Context(), w, result.Rule.Fault, result.Rule.FaultConfig) {
				h.deps.Logger.Debug("fault handled response",
					"rule", result.Rule.ID, "fault", result.Rule.Fault)
				entry.Outcome = requestlog.OutcomeFault
				return
			}
			if result.Default {
				entry.Outcome = requestlog.OutcomeDefault
			} else {
				entry.Outcome = requestlog.OutcomeRule
			}
			h.deps.Renderer.Render(r.Context(), w, req, result)
			return
		}
	}

	if h.tryProxy(w, r, req, ep) {
		entry.Outcome = requestlog.OutcomeProxy
		return
	}

	h.deps.Logger.Debug("no match", "method", req.Method, "path", req.Path)
	httputil.WriteNotFound(w, "no_match", "no endpoint matched the request")
}

// statusWriter captures the response status for the journal. Hijack is
// forwarded so connection-abort faults keep working behind it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// tryProxy forwards the request upstream when a proxy configuration
// covers it, writing the upstream response and optionally recording the
// exchange. Returns false when no configuration applies or the upstream
// call failed.
func (h *Handler) tryProxy(w http.ResponseWriter, r *http.Request, req *virt.RequestContext, ep *cache.CachedEndpoint) bool {
	if h.deps.Proxies == nil || h.deps.Forwarder == nil {
		return false
	}

	var cfg *virt.ProxyConfig
	if ep != nil {
		cfg = h.deps.Proxies.ForEndpoint(ep.ID)
	} else {
		cfg = h.deps.Proxies.Global()
	}
	if cfg == nil || !cfg.Active {
		return false
	}

	resp := h.deps.Forwarder.Forward(r.Context(), req, cfg)
	if resp == nil {
		return false
	}

	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}

	if cfg.Recording && h.deps.Recorder != nil {
		endpointID := ""
		if ep != nil {
			endpointID = ep.ID
		}
		h.deps.Recorder.Record(r.Context(), req, resp, endpointID)
	}
	return true
}

// Package metrics is a small dependency-free metrics registry with
// Prometheus text exposition. It covers the two shapes the server needs:
// labeled counters and duration histograms.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Metric is implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() string
	Collect() []Sample
}

// Sample is one exposition line.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Counter is a monotonically increasing metric with optional labels.
type Counter struct {
	name       string
	help       string
	labelNames []string
	mu         sync.Mutex
	values     map[string]*counterValue
}

type counterValue struct {
	labels map[string]string
	value  float64
}

func (c *Counter) Name() string { return c.name }
func (c *Counter) Help() string { return c.help }
func (c *Counter) Type() string { return "counter" }

// Inc increments the counter for the given label values. The number of
// values must match the label names the counter was registered with;
// mismatches are dropped.
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add adds delta to the counter for the given label values. Negative
// deltas are dropped.
func (c *Counter) Add(delta float64, labelValues ...string) {
	if delta < 0 || len(labelValues) != len(c.labelNames) {
		return
	}

	key := strings.Join(labelValues, "\x00")
	c.mu.Lock()
	defer c.mu.Unlock()
	cv, ok := c.values[key]
	if !ok {
		labels := make(map[string]string, len(c.labelNames))
		for i, name := range c.labelNames {
			labels[name] = labelValues[i]
		}
		cv = &counterValue{labels: labels}
		c.values[key] = cv
	}
	cv.value += delta
}

// Collect returns all samples.
func (c *Counter) Collect() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := make([]Sample, 0, len(c.values))
	for _, cv := range c.values {
		samples = append(samples, Sample{Name: c.name, Labels: cv.labels, Value: cv.value})
	}
	return samples
}

// Histogram tracks the distribution of observed values with cumulative
// buckets plus _sum and _count series.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

func (h *Histogram) Name() string { return h.name }
func (h *Histogram) Help() string { return h.help }
func (h *Histogram) Type() string { return "histogram" }

// Observe records one value.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
	h.sum += value
	h.count++
}

// Collect returns bucket, sum and count samples.
func (h *Histogram) Collect() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	samples := make([]Sample, 0, len(h.buckets)+2)
	cumulative := uint64(0)
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		le := "+Inf"
		if !math.IsInf(bound, 1) {
			le = formatFloat(bound)
		}
		samples = append(samples, Sample{
			Name:   h.name + "_bucket",
			Labels: map[string]string{"le": le},
			Value:  float64(cumulative),
		})
	}
	samples = append(samples,
		Sample{Name: h.name + "_sum", Value: h.sum},
		Sample{Name: h.name + "_count", Value: float64(h.count)},
	)
	return samples
}

// Registry holds registered metrics and serves them in Prometheus text
// format.
type Registry struct {
	mu      sync.Mutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a counter. Panics on a duplicate name.
func (r *Registry) NewCounter(name, help string, labelNames ...string) *Counter {
	c := &Counter{
		name:       name,
		help:       help,
		labelNames: labelNames,
		values:     make(map[string]*counterValue),
	}
	r.register(c)
	return c
}

// NewHistogram creates and registers a histogram. Buckets are sorted and
// a +Inf bucket is appended when missing. Panics on a duplicate name.
func (r *Registry) NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	if len(sorted) == 0 || !math.IsInf(sorted[len(sorted)-1], 1) {
		sorted = append(sorted, math.Inf(1))
	}
	h := &Histogram{
		name:    name,
		help:    help,
		buckets: sorted,
		counts:  make([]uint64, len(sorted)),
	}
	r.register(h)
	return h
}

func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic("metrics: duplicate metric name " + m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		metrics := make([]Metric, len(r.metrics))
		copy(metrics, r.metrics)
		r.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, m := range metrics {
			samples := m.Collect()
			if len(samples) == 0 {
				continue
			}
			fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), m.Help())
			fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
			for _, s := range samples {
				writeSample(w, s)
			}
		}
	})
}

func writeSample(w http.ResponseWriter, s Sample) {
	if len(s.Labels) == 0 {
		fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
		return
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, s.Labels[k])
	}
	fmt.Fprintf(w, "%s{%s} %s\n", s.Name, strings.Join(parts, ","), formatFloat(s.Value))
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}

// DefaultBuckets are request-duration buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

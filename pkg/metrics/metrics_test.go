package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("requests_total", "Total requests served.", "outcome")

	c.Inc("rule")
	c.Inc("rule")
	c.Add(3, "proxy")
	c.Add(-1, "rule")      // dropped
	c.Inc("rule", "extra") // label mismatch, dropped

	samples := c.Collect()
	require.Len(t, samples, 2)
	byOutcome := map[string]float64{}
	for _, s := range samples {
		byOutcome[s.Labels["outcome"]] = s.Value
	}
	assert.Equal(t, 2.0, byOutcome["rule"])
	assert.Equal(t, 3.0, byOutcome["proxy"])
}

func TestHistogram(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("duration_seconds", "Request durations.", []float64{0.1, 1})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	samples := h.Collect()
	// 3 buckets (incl +Inf) + sum + count
	require.Len(t, samples, 5)
	assert.Equal(t, 1.0, samples[0].Value)
	assert.Equal(t, "0.1", samples[0].Labels["le"])
	assert.Equal(t, 2.0, samples[1].Value)
	assert.Equal(t, 3.0, samples[2].Value)
	assert.Equal(t, "+Inf", samples[2].Labels["le"])
	assert.InDelta(t, 5.55, samples[3].Value, 0.001)
	assert.Equal(t, 3.0, samples[4].Value)
}

func TestHandlerExposition(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("requests_total", "Total requests served.", "outcome")
	c.Inc("rule")

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	assert.Contains(t, body, "# HELP requests_total Total requests served.")
	assert.Contains(t, body, "# TYPE requests_total counter")
	assert.Contains(t, body, `requests_total{outcome="rule"} 1`)
}

func TestDuplicateNamePanics(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("dup", "first")
	assert.Panics(t, func() { r.NewCounter("dup", "second") })
}

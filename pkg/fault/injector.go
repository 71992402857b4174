// Package fault applies configured fault behavior to a response before
// normal rendering: artificial delays, connection aborts, empty or
// garbage bodies, and simulated timeouts.
package fault

import (
	"context"
	"log/slog"
	mathrand "math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/virtserve/virtserve/pkg/virt"
)

// Default fault parameters, used when the fault config is missing a key
// or failed to parse entirely.
const (
	defaultMinDelayMs   = 100
	defaultMaxDelayMs   = 5000
	defaultEmptyStatus  = http.StatusServiceUnavailable
	defaultGarbageBytes = 256
	defaultTimeoutMs    = 30000
)

// Injector applies faults. It is stateless and safe for concurrent use.
type Injector struct {
	logger *slog.Logger
}

// NewInjector creates a fault injector.
func NewInjector(logger *slog.Logger) *Injector {
	return &Injector{logger: logger}
}

// Inject applies the fault for a matched rule. It returns true when the
// response has been fully handled (or the connection aborted) and normal
// rendering must be skipped. FixedDelay returns false: the generic
// response delay covers it.
func (i *Injector) Inject(ctx context.Context, w http.ResponseWriter, fault virt.FaultType, config map[string]interface{}) bool {
	switch fault {
	case "", virt.FaultNone, virt.FaultFixedDelay:
		return false

	case virt.FaultRandomDelay:
		min := getIntOrDefault(config, "minDelayMs", defaultMinDelayMs)
		max := getIntOrDefault(config, "maxDelayMs", defaultMaxDelayMs)
		if max < min {
			min, max = max, min
		}
		delay := min
		if max > min {
			delay = min + mathrand.IntN(max-min+1)
		}
		sleep(ctx, time.Duration(delay)*time.Millisecond)
		return false

	case virt.FaultConnectionReset:
		i.logger.Debug("fault: resetting connection")
		abortConnection(w)
		return true

	case virt.FaultEmptyResponse:
		status := getIntOrDefault(config, "statusCode", defaultEmptyStatus)
		w.WriteHeader(status)
		return true

	case virt.FaultMalformedResponse:
		size := getIntOrDefault(config, "sizeBytes", defaultGarbageBytes)
		if size < 0 {
			size = defaultGarbageBytes
		}
		garbage := make([]byte, size)
		for idx := range garbage {
			garbage[idx] = byte(mathrand.IntN(256))
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(garbage)
		return true

	case virt.FaultTimeout:
		timeout := getIntOrDefault(config, "timeoutMs", defaultTimeoutMs)
		if sleep(ctx, time.Duration(timeout)*time.Millisecond) {
			abortConnection(w)
		}
		return true
	}

	return false
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// abortConnection closes the underlying TCP connection without writing a
// response. When the writer cannot be hijacked (HTTP/2, test recorders)
// it falls back to the net/http abort panic, which the server recovers
// and turns into a stream reset.
func abortConnection(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
			return
		}
	}
	panic(http.ErrAbortHandler)
}

// getIntOrDefault extracts an int from a decoded JSON config map, handling
// both int and float64. Returns defaultVal if missing or non-numeric.
func getIntOrDefault(m map[string]interface{}, key string, defaultVal int) int {
	if v, ok := m[key].(int); ok {
		return v
	}
	if v, ok := m[key].(int64); ok {
		return int(v)
	}
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return defaultVal
}

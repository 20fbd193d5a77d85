// Package health serves liveness and readiness probes. Checks run in the
// background on a fixed interval; the probe endpoints only report the last
// recorded results, so a probe never waits on a slow dependency.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the dependency it probes is usable.
type CheckFunc func(ctx context.Context) error

// Kind says which probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Check describes one registered probe.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// Optional checks are reported in the body but never fail the probe.
	// Used for integrations the storefront can run without, such as the
	// payment gateway or image storage.
	Optional bool
	// Failures is how many consecutive errors flip the check to unhealthy.
	// Defaults to 3.
	Failures int
}

type result struct {
	healthy bool
	err     error
}

type check struct {
	Check

	state atomic.Pointer[result]
	// streak counts consecutive errors; only touched by the check goroutine.
	streak int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	err := c.Func(ctx)
	if err == nil {
		c.streak = 0
		c.state.Store(&result{healthy: true})
		return
	}
	c.streak++
	prev := c.state.Load()
	c.state.Store(&result{healthy: prev.healthy && c.streak < c.Failures, err: err})
}

// Health holds the registered checks and the manual readiness switch.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy.
func (h *Health) Add(c Check) {
	if c.Failures < 1 {
		c.Failures = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	ch := &check{Check: c}
	ch.state.Store(&result{healthy: true})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, ch)
}

// AddLivenessCheck registers a required liveness check.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Liveness, Timeout: timeout, Func: fn})
}

// AddReadinessCheck registers a required readiness check.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Readiness, Timeout: timeout, Func: fn})
}

// Start runs every check now and then every interval until Stop or ctx ends.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch, used to drain before shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the switch is on and every required readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	failing, _ := h.report(Readiness)
	return len(failing) == 0
}

// report returns failing required checks and failing optional checks for a
// probe kind, by name.
func (h *Health) report(kind Kind) (failing, degraded map[string]string) {
	h.mu.RLock()
	checks := append([]*check(nil), h.checks...)
	h.mu.RUnlock()

	failing, degraded = map[string]string{}, map[string]string{}
	for _, c := range checks {
		if c.Kind != kind {
			continue
		}
		res := c.state.Load()
		if res.healthy && (res.err == nil || !c.Optional) {
			continue
		}
		msg := "check is unhealthy"
		if res.err != nil {
			msg = res.err.Error()
		}
		if c.Optional {
			degraded[c.Name] = msg
		} else if !res.healthy {
			failing[c.Name] = msg
		}
	}
	return failing, degraded
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	failing, degraded := h.report(Liveness)
	writeStatus(w, failing, degraded)
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failing, degraded := h.report(Readiness)
	if !h.ready.Load() {
		failing["_readiness"] = "service is not ready"
	}
	writeStatus(w, failing, degraded)
}

// writeStatus answers 200 {"status":"ok"} or 503 {"status":"unhealthy"},
// listing failing checks under "checks" and optional ones under "degraded".
func writeStatus(w http.ResponseWriter, failing, degraded map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failing) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	writeMap(e, "checks", failing)
	writeMap(e, "degraded", degraded)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func writeMap(e *jx.Encoder, field string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.FieldStart(field)
	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.Str(m[k])
	}
	e.ObjEnd()
}

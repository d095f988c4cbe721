// Package health exposes /livez and /readyz probe endpoints backed by
// periodically executed checks.
//
// A check flips to failing only after three consecutive errors and back to
// passing after one success, so a single slow poll does not bounce the pod
// out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	failAfter    = 3
	recoverAfter = 1
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// probe tracks the rolling state of one registered check. The ticker
// goroutine is the only writer of the counters; passing and err are shared
// with the HTTP handlers under mu.
type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	passing bool
	err     error
	fails   int
	oks     int
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	// Start passing so registration before Start does not 503 the pod.
	return &probe{name: name, timeout: timeout, fn: fn, passing: true}
}

// poll runs the check once and applies the flap thresholds.
func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.fn(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	if err != nil {
		p.oks = 0
		if p.fails++; p.fails >= failAfter {
			p.passing = false
		}
		return
	}
	p.fails = 0
	if p.oks++; p.oks >= recoverAfter {
		p.passing = true
	}
}

// state returns the current status and, when failing, the error text.
func (p *probe) state() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.passing {
		return true, ""
	}
	if p.err != nil {
		return false, p.err.Error()
	}
	return false, "check failing"
}

// Health owns the registered probes and the manual ready flag.
type Health struct {
	mu        sync.RWMutex
	ready     bool
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a process-level check (goroutine leaks, GC
// stalls). Register everything before calling Start.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, fn))
}

// AddReadinessCheck registers a dependency check (database, cache). A
// failing readiness check takes the pod out of rotation without
// restarting it.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, fn))
}

// Start launches one polling goroutine per registered probe. Each probe
// polls immediately, then at the given interval until ctx is cancelled or
// Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			t := time.NewTicker(interval)
			defer t.Stop()
			p.poll(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					p.poll(ctx)
				}
			}
		}(p)
	}
}

// SetReady flips the manual ready flag. The server sets it to true once
// wiring completes and back to false when shutdown begins, so the load
// balancer drains before connections close.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()
}

// IsReady reports whether the manual flag is set and every readiness probe
// passes.
func (h *Health) IsReady() bool {
	h.mu.RLock()
	ready := h.ready
	probes := h.readiness
	h.mu.RUnlock()

	if !ready {
		return false
	}
	for _, p := range probes {
		if ok, _ := p.state(); !ok {
			return false
		}
	}
	return true
}

// Stop cancels the polling goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while every liveness probe passes, 503
// with per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	probes := h.liveness
	h.mu.RUnlock()

	serveProbes(w, failing(probes))
}

// ReadyEndpoint serves /readyz: 200 once SetReady(true) has been called and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	probes := h.readiness
	h.mu.RUnlock()

	fails := failing(probes)
	if !ready {
		fails["_readiness"] = "service is not ready"
	}
	serveProbes(w, fails)
}

func failing(probes []*probe) map[string]string {
	fails := make(map[string]string)
	for _, p := range probes {
		if ok, msg := p.state(); !ok {
			fails[p.name] = msg
		}
	}
	return fails
}

func serveProbes(w http.ResponseWriter, fails map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(fails) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: fails}
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

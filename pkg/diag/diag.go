// Package diag exposes the local diagnostics HTTP surface for the demo
// binary: liveness/readiness checks gated on named component health, plus
// the Prometheus scrape endpoint, routed with chi.
package diag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/oneclient/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

// criticalComponents gates readiness: the demo binary is not ready to serve
// a mount until each of these has reported healthy at least once.
var criticalComponents = []string{"transport", "auth", "scheduler"}

// Status is the JSON body returned by /healthz and /readyz.
type Status struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Uptime     string            `json:"uptime"`
}

type componentHealth struct {
	healthy bool
	message string
}

// Checker tracks component health and builds liveness/readiness responses.
type Checker struct {
	mu         sync.RWMutex
	components map[string]componentHealth
	startTime  time.Time
}

func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]componentHealth),
		startTime:  time.Now(),
	}
}

// SetComponentHealth records the latest health observation for name.
func (c *Checker) SetComponentHealth(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = componentHealth{healthy: healthy, message: message}
}

func (c *Checker) health() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(c.components))
	for name, comp := range c.components {
		if comp.healthy {
			components[name] = "healthy"
		} else {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.message
		}
	}
	return Status{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Uptime:     time.Since(c.startTime).String(),
	}
}

func (c *Checker) readiness() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(criticalComponents))
	for _, name := range criticalComponents {
		comp, exists := c.components[name]
		switch {
		case !exists:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.message
		default:
			components[name] = "ready"
		}
	}
	return Status{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Uptime:     time.Since(c.startTime).String(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Router builds the chi-routed diagnostics HTTP server: /healthz, /readyz,
// /livez and /metrics.
func (c *Checker) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		h := c.health()
		code := http.StatusOK
		if h.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		rdy := c.readiness()
		code := http.StatusOK
		if rdy.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, rdy)
	})

	r.Get("/livez", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

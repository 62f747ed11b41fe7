// Package health serves liveness, readiness and the dependency report.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/dalemusser/stratacast/internal/app/system/tasks"
	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Check is one dependency probe.
type Check struct {
	Name string
	// Critical checks gate readiness. Others only degrade the report.
	Critical bool
	Ping     func(ctx context.Context) error
}

// MongoCheck probes the primary of client.
func MongoCheck(client *mongo.Client) Check {
	return Check{
		Name:     "mongodb",
		Critical: true,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// BackendCheck probes the forecasting backend. Pages still render their
// error state without it, so it does not gate readiness.
func BackendCheck(ping func(ctx context.Context) error) Check {
	return Check{Name: "backend", Ping: ping}
}

// Handler serves the health endpoints.
type Handler struct {
	checks []Check
	jobs   func() []tasks.JobStatus
	logger *zap.Logger
}

// NewHandler creates a Handler. jobs may be nil.
func NewHandler(logger *zap.Logger, jobs func() []tasks.JobStatus, checks ...Check) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{checks: checks, jobs: jobs, logger: logger}
}

// Response is the body of /health.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Jobs     []tasks.JobStatus `json:"jobs,omitempty"`
}

// Routes returns /health, /health/ready and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the probe aliases /ready, /readyz and /livez.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run probes every dependency concurrently and reports the failures.
func (h *Handler) run(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]error, len(h.checks))
	)
	for _, c := range h.checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			err := c.Ping(ctx)
			mu.Lock()
			out[c.Name] = err
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return out
}

// Check reports every dependency. Any failure degrades the status; a
// critical failure also answers 503.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	results := h.run(r.Context())
	resp := Response{Status: "ok", Services: make(map[string]string, len(results))}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := results[c.Name]; err != nil {
			resp.Services[c.Name] = "unavailable"
			resp.Status = "degraded"
			if c.Critical {
				code = http.StatusServiceUnavailable
			}
			h.logger.Warn("health check failed", zap.String("service", c.Name), zap.Error(err))
			continue
		}
		resp.Services[c.Name] = "ok"
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs()
	}
	writeJSON(w, code, resp)
}

// Ready answers 200 once every critical dependency responds.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	results := h.run(r.Context())
	for _, c := range h.checks {
		if c.Critical && results[c.Name] != nil {
			h.logger.Warn("readiness check failed", zap.String("service", c.Name), zap.Error(results[c.Name]))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live always answers 200 while the process serves requests.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

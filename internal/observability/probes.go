package observability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"
)

// Probe report states.
const (
	stateReady    = "ready"
	stateDegraded = "degraded"
	componentUp   = "up"
)

// probeReport is the readiness body: one line per registered component plus
// the aggregate verdict Kubernetes acts on through the status code.
type probeReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// liveness responds with 200 OK if the HTTP server is running. Kubernetes
// uses it to restart the pod if the process is deadlocked.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, "ok")
}

// readiness checks every registered backend. It returns 200 OK only when all
// of them pass. Kubernetes uses it to route traffic.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	// Enforce the configured timeout to respond to Kubernetes in time.
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	report := s.runChecks(ctx)

	if report.Status != stateReady {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, report)
}

// runChecks fans the probe out to every checker and collects one component
// line each. This service registers at most two backends (the idempotency
// store and the flag source can share one), but the fan-out still keeps a
// slow postgres from hiding behind a slow redis inside one timeout window.
func (s *Server) runChecks(ctx context.Context) probeReport {
	type verdict struct {
		component string
		state     string
		failed    bool
	}

	verdicts := make(chan verdict, len(s.checkers))

	var wg sync.WaitGroup
	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			if err := c.Check(ctx); err != nil {
				// WARN instead of ERROR to avoid alerting noise while
				// Kubernetes retries.
				s.logger.Warn("health probe failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				verdicts <- verdict{component: c.Name(), state: "down: " + err.Error(), failed: true}
				return
			}
			verdicts <- verdict{component: c.Name(), state: componentUp}
		}(checker)
	}
	wg.Wait()
	close(verdicts)

	report := probeReport{
		Status:     stateReady,
		Components: make(map[string]string, len(s.checkers)),
	}
	for v := range verdicts {
		report.Components[v.component] = v.state
		if v.failed {
			report.Status = stateDegraded
		}
	}
	return report
}

// Package health contiene los endpoints de liveness y readiness.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/http/helpers"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

// Check reporta si una dependencia está disponible.
type Check func(ctx context.Context) error

type Controller struct {
	checks  map[string]Check
	timeout time.Duration
	started time.Time
}

// NewController crea el controller. checks: nombre -> ping (store, cache...).
func NewController(checks map[string]Check) *Controller {
	return &Controller{checks: checks, timeout: 2 * time.Second, started: time.Now()}
}

// Healthz maneja GET /healthz: el proceso responde.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(c.started).Round(time.Second).String(),
	})
}

// Readyz maneja GET /readyz: todas las dependencias responden.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	result := make(map[string]string, len(names))
	for _, name := range names {
		if err := c.checks[name](ctx); err != nil {
			logger.From(ctx).Warn("readiness check failed", logger.Component(name), logger.Err(err))
			result[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "up"
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "not_ready"
	}
	helpers.WriteJSON(w, status, map[string]any{"status": overall, "checks": result})
}

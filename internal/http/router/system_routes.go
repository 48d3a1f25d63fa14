package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func registerSystemRoutes(r chi.Router, d Deps) {
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	if d.JWKS != nil {
		// Solo la clave de access: otros servicios verifican tokens sin llamar acá.
		r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "public, max-age=300")
			_, _ = w.Write(d.JWKS())
		})
	}
}

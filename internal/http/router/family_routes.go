package router

import (
	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
)

// registerFamilyRoutes: todas requieren auth y pasan por el gate horario
// de menores.
func registerFamilyRoutes(r chi.Router, d Deps) {
	c := d.Family
	if c == nil {
		return
	}

	r.Route("/v1/families", func(r chi.Router) {
		r.Use(mw.RequireAuth(d.Verifier), d.minorGate())

		r.Post("/", c.Create)
		r.Route("/{groupId}", func(r chi.Router) {
			r.Get("/", c.Get)
			r.Delete("/", c.Delete)
			r.Patch("/settings", c.UpdateSettings)
			r.Post("/transfer", c.TransferCreator)
			r.Get("/permissions/check", c.CheckPermission)
			r.Post("/members", c.AddMember)
			r.Delete("/members/{userId}", c.RemoveMember)
			r.Put("/members/{userId}/permissions", c.SetPermissions)
		})
	})
}

package router

import (
	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/ciciauth/internal/http/middlewares"
)

func registerAuthRoutes(r chi.Router, d Deps) {
	c := d.Auth
	if c == nil {
		return
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		// ─── Públicas ───
		r.Group(func(r chi.Router) {
			r.Use(d.rateLimit(d.LoginLimiter, "login"))
			r.Post("/register", c.Register.Register)
			r.Post("/login", c.Session.Login)
			r.Post("/oauth/{provider}", c.Session.OAuthLogin)
		})
		r.Group(func(r chi.Router) {
			r.Use(d.rateLimit(d.ForgotLimiter, "forgot"))
			r.Post("/forgot-password", c.Account.ForgotPassword)
			r.Post("/reset-password", c.Account.ResetPassword)
			r.Post("/verify-email", c.Account.VerifyEmail)
		})
		r.Post("/refresh-token", c.Session.Refresh)
		r.Post("/validate-offline", c.Session.ValidateOffline)

		// ─── Autenticadas ───
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(d.Verifier))
			r.Post("/logout", c.Session.Logout)
			r.Post("/logout-all", c.Session.LogoutAll)
			r.Get("/me", c.Account.Me)
			r.Patch("/profile", c.Account.UpdateProfile)
			r.Delete("/account", c.Account.DeleteAccount)
			r.Get("/devices", c.Devices.List)
			r.Delete("/devices/{deviceId}", c.Devices.Revoke)
		})
	})
}

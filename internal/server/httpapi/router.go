// Package httpapi exposes the session core over HTTP: cookie sessions,
// bearer API tokens and role-gated routes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// NewRouter mounts every route under /api. metrics may be nil.
func NewRouter(h *Handler, mw *Middleware, metrics http.Handler, l logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(l.With("module", "http_access")))
	r.Use(middleware.Recoverer)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/refresh", h.Refresh)
		r.Post("/login/reset", h.RequestReset)
		r.Post("/login/check", h.CheckReset)
		r.Post("/login/token", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth)

			r.Post("/logout", h.Logout)
			r.Get("/validate", h.Validate)
			r.Get("/role", h.Role)

			r.Route("/user", func(r chi.Router) {
				r.Post("/updatePassword", h.UpdatePassword)
				r.Post("/createToken", h.CreateToken)
				r.Get("/listTokens", h.ListTokens)
				r.Post("/deleteToken", h.DeleteToken)
			})

			r.With(mw.RequireRole(models.RoleAdmin)).Get("/admin", h.Validate)
			r.With(mw.RequireGroupCapable).Get("/group", h.Validate)
		})
	})

	return r
}

package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/mw"
)

func init() { Register(registerHealth) }

func registerHealth(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	internal := r.With(mw.InternalOnly(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	internal.Get("/readyz", handlers.Readyz(d))
	if d.Metrics != nil {
		internal.Method("GET", "/metrics", handlers.Metrics(d))
	}
}

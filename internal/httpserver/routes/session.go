package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/mw"
)

func init() { Register(registerSession) }

func registerSession(r chi.Router, d deps.Deps) {
	r.With(timeout(d)).Route("/api/session", func(r chi.Router) {
		r.Get("/", handlers.GetSession(d))
		r.With(mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.LoginBurst,
			RefillPerIPPerMin: d.LoginPerMin,
			MaxEntries:        10000,
			TrustProxy:        d.TrustProxy,
		})).Post("/login", handlers.BeginLogin(d))
		r.Delete("/login", handlers.CancelLogin(d))
		r.Post("/logout", handlers.Logout(d))
	})
}

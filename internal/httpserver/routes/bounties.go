package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/handlers"
)

func init() { Register(registerBounties) }

func registerBounties(r chi.Router, d deps.Deps) {
	r.With(timeout(d)).Route("/api/bounties", func(r chi.Router) {
		r.Get("/", handlers.SearchBounties(d))
		r.Post("/", handlers.CreateBounty(d))
		r.Post("/fetch", handlers.FetchBounties(d))
		r.Post("/refresh", handlers.RefreshBounties(d))

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", handlers.UpdateBounty(d))
			r.Delete("/", handlers.DeleteBounty(d))
			r.Get("/affordances", handlers.Affordances(d))
			r.Post("/select", handlers.SelectAssignee(d))
			r.Post("/assign", handlers.AssignBounty(d))
			r.Post("/unassign", handlers.UnassignBounty(d))
		})
	})
}

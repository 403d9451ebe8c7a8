package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/handlers"
)

func init() { Register(registerPeople) }

func registerPeople(r chi.Router, d deps.Deps) {
	r.With(timeout(d)).Get("/api/people", handlers.SearchPeople(d))
	r.With(timeout(d)).Post("/api/people/fetch", handlers.FetchPeople(d))
}

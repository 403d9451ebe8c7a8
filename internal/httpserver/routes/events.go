package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/handlers"
)

func init() { Register(registerEvents) }

// The stream is long-lived and carries no request timeout.
func registerEvents(r chi.Router, d deps.Deps) {
	r.Get("/api/events", handlers.Events(d))
}

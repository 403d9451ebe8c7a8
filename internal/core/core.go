// Package core composes the client-side engine: collections, people,
// assignment, and session. A Core is an explicit context object; nothing
// in the engine is global.
package core

import (
	"context"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/assign"
	"github.com/MrSnakeDoc/bountyboard/internal/auth"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/search"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

// Options tunes every component.
type Options struct {
	Store store.Options
	Auth  auth.Options
}

// Core is the engine handed to the rendering layer.
type Core struct {
	Client  api.Client
	Session *auth.Manager
	Store   *store.Store
	People  *store.People
	Assign  *assign.Controller

	logger logger.Logger
}

// Init wires the components over client. The session manager gates every
// write of the store and the assignment controller.
func Init(client api.Client, log logger.Logger, opts Options) *Core {
	if log == nil {
		log = logger.Nop()
	}
	session := auth.NewManager(client, log, opts.Auth)
	st := store.New(client, session, log, opts.Store)
	people := store.NewPeople(client, log, opts.Store)

	c := &Core{
		Client:  client,
		Session: session,
		Store:   st,
		People:  people,
		Assign:  assign.New(client, st, people, session, log),
		logger:  log.Component("core"),
	}
	c.logger.Info("core initialized")
	return c
}

// Search filters and ranks the current snapshot of scope.
func (c *Core) Search(scope domain.Scope, query string, tags []string) []domain.ViewModel {
	return search.Search(c.Store.Snapshot(scope).Items, query, tags)
}

// Logout ends the session and drops every collection loaded under it.
func (c *Core) Logout(ctx context.Context) error {
	err := c.Session.Logout(ctx)
	c.clear()
	return err
}

// Teardown stops login polling and clears all in-memory state.
func (c *Core) Teardown() {
	c.Session.Reset()
	c.clear()
	c.logger.Info("core torn down")
}

func (c *Core) clear() {
	c.Store.ResetAll()
	c.People.Reset()
	c.Assign.Forget()
}

package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
)

type peopleResponse struct {
	Items   []domain.Person `json:"items"`
	Total   int             `json:"total"`
	Next    api.Cursor      `json:"next"`
	HasMore bool            `json:"has_more"`
}

// SearchPeople ranks the loaded directory by ?q=. An empty query lists it.
func SearchPeople(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Core.People.Snapshot()
		items := snap.Items
		if q := r.URL.Query().Get("q"); q != "" {
			items = d.Core.People.Search(q)
		}
		if items == nil {
			items = []domain.Person{}
		}
		writeJSON(w, http.StatusOK, peopleResponse{Items: items, Total: snap.Total, Next: snap.Next, HasMore: snap.HasMore})
	}
}

// FetchPeople loads ?page= of the directory, the first page by default.
func FetchPeople(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, hasPage, err := intParam(r, "page")
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		if !hasPage {
			page = 1
		}
		snap, err := d.Core.People.FetchPage(r.Context(), api.Cursor{Page: page, Limit: d.Core.Store.PageSize()})
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		items := snap.Items
		if items == nil {
			items = []domain.Person{}
		}
		writeJSON(w, http.StatusOK, peopleResponse{Items: items, Total: snap.Total, Next: snap.Next, HasMore: snap.HasMore})
	}
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/assign"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

type snapshotResponse struct {
	Scope   domain.Scope       `json:"scope"`
	Items   []domain.ViewModel `json:"items"`
	Total   int                `json:"total"`
	Next    api.Cursor         `json:"next"`
	HasMore bool               `json:"has_more"`
	Loaded  bool               `json:"loaded"`
	Version uint64             `json:"version"`
	Error   *errorResponse     `json:"error,omitempty"`
}

func newSnapshotResponse(s store.Snapshot, items []domain.ViewModel) snapshotResponse {
	if items == nil {
		items = []domain.ViewModel{}
	}
	resp := snapshotResponse{
		Scope:   s.Scope,
		Items:   items,
		Total:   s.Total,
		Next:    s.Next,
		HasMore: s.HasMore,
		Loaded:  s.Loaded,
		Version: s.Version,
	}
	if s.Err != nil {
		e := errorResponse{Error: domain.KindOf(s.Err).String(), Retryable: domain.KindOf(s.Err).Retryable()}
		resp.Error = &e
	}
	return resp
}

// SearchBounties filters and ranks the current snapshot of ?scope= by ?q=
// and ?tags=. It never fetches.
func SearchBounties(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeParam(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		q := r.URL.Query().Get("q")
		tags := listParam(r, "tags")

		snap := d.Core.Store.Snapshot(scope)
		items := d.Core.Search(scope, q, tags)
		d.Logger.Debug("bounty search",
			logger.String("scope", scope.String()),
			logger.String("query", q),
			logger.Int("results", len(items)))
		writeJSON(w, http.StatusOK, newSnapshotResponse(snap, items))
	}
}

// FetchBounties loads ?page= of ?scope=. Without a page it loads the next
// one of the current sequence.
func FetchBounties(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeParam(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		page, hasPage, err := intParam(r, "page")
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		var snap store.Snapshot
		if hasPage {
			snap, err = d.Core.Store.FetchPage(r.Context(), scope, api.Cursor{Page: page, Limit: d.Core.Store.PageSize()})
		} else {
			snap, err = d.Core.Store.FetchNext(r.Context(), scope)
		}
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newSnapshotResponse(snap, snap.Items))
	}
}

// RefreshBounties queues a silent first-page refresh of ?scope= for the
// background refresher and returns immediately.
func RefreshBounties(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeParam(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		d.Core.Store.Refresh(scope)
		writeJSON(w, http.StatusAccepted, map[string]string{"scope": scope.String(), "status": "refresh queued"})
	}
}

// CreateBounty posts a bounty. Repeated ?scope= parameters name the
// collections it is inserted into; by default the loaded ones it belongs to.
func CreateBounty(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var scopes []domain.Scope
		for _, raw := range listParam(r, "scope") {
			s, err := domain.ParseScope(raw)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			scopes = append(scopes, s)
		}

		var payload domain.Bounty
		if err := decodeJSON(w, r, &payload); err != nil {
			badRequest(w, err.Error())
			return
		}
		if payload.Amount < 0 {
			badRequest(w, "price must not be negative")
			return
		}

		vm, err := d.Core.Store.Create(r.Context(), payload, scopes...)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, vm)
	}
}

// UpdateBounty applies a sparse patch.
func UpdateBounty(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch api.BountyPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			badRequest(w, err.Error())
			return
		}
		if patch.Amount != nil && *patch.Amount < 0 {
			badRequest(w, "price must not be negative")
			return
		}
		if patch.TouchesAssignment() {
			badRequest(w, "assignee and status change through assign, unassign, and delete")
			return
		}
		vm, err := d.Core.Store.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, vm)
	}
}

type transitionResponse struct {
	ID    string       `json:"id"`
	State assign.State `json:"state"`
}

type assignRequest struct {
	Assignee string `json:"assignee"`
}

func transition(d deps.Deps, w http.ResponseWriter, r *http.Request, state assign.State, err error) {
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{ID: chi.URLParam(r, "id"), State: state})
}

// DeleteBounty soft-deletes an unassigned bounty.
func DeleteBounty(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := d.Core.Assign.Delete(r.Context(), chi.URLParam(r, "id"))
		transition(d, w, r, state, err)
	}
}

// SelectAssignee records a candidate locally without contacting the server.
func SelectAssignee(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
		state, err := d.Core.Assign.Select(r.Context(), chi.URLParam(r, "id"), req.Assignee)
		transition(d, w, r, state, err)
	}
}

// AssignBounty assigns or reassigns the bounty.
func AssignBounty(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
		state, err := d.Core.Assign.Assign(r.Context(), chi.URLParam(r, "id"), req.Assignee)
		transition(d, w, r, state, err)
	}
}

// UnassignBounty clears a selection or an assignment.
func UnassignBounty(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := d.Core.Assign.Unassign(r.Context(), chi.URLParam(r, "id"))
		transition(d, w, r, state, err)
	}
}

// Affordances lists the actions currently allowed on the bounty.
func Affordances(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		aff, err := d.Core.Assign.Affordances(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, aff)
	}
}

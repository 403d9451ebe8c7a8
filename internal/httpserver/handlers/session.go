package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/auth"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

type loginResponse struct {
	Challenge string    `json:"challenge"`
	LoginURL  string    `json:"login_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BeginLogin issues a challenge and starts polling it in the background.
// Progress is reported by GET /api/session and the event stream.
func BeginLogin(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, _, err := d.Core.Session.BeginLogin(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		s := d.Core.Session.Session()
		writeJSON(w, http.StatusAccepted, loginResponse{
			Challenge: ch.Token,
			LoginURL:  s.LoginURL,
			ExpiresAt: s.ExpiresAt,
		})
	}
}

// CancelLogin abandons a pending challenge.
func CancelLogin(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Core.Session.CancelLogin()
		writeJSON(w, http.StatusOK, d.Core.Session.Session())
	}
}

// GetSession returns the current session. The bearer token is never exposed.
func GetSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Core.Session.Session())
	}
}

type logoutResponse struct {
	Session     auth.Session `json:"session"`
	RemoteError string       `json:"remote_error,omitempty"`
}

// Logout always succeeds locally; a failed server invalidation is reported
// alongside the idle session.
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := logoutResponse{}
		if err := d.Core.Logout(r.Context()); err != nil {
			d.Logger.Warn("logout completed locally only", logger.Error(err))
			resp.RemoteError = err.Error()
		}
		resp.Session = d.Core.Session.Session()
		writeJSON(w, http.StatusOK, resp)
	}
}

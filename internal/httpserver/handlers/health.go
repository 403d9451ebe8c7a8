package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
)

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
	Commit        string  `json:"commit,omitempty"`
	BuildDate     string  `json:"build_date,omitempty"`
	GoVersion     string  `json:"go_version,omitempty"`
}

func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
			UptimeSeconds: d.Now().Sub(start).Seconds(),
		})
	}
}

type readyzResponse struct {
	Ready  bool     `json:"ready"`
	Stage  string   `json:"session"`
	Scopes []string `json:"scopes"`
	Error  string   `json:"error,omitempty"`
}

const readyTimeout = 2 * time.Second

// Readyz reports the loaded scopes and the health of optional backends.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{Ready: true, Stage: d.Core.Session.Stage().String(), Scopes: []string{}}
		for _, s := range d.Core.Store.Scopes() {
			resp.Scopes = append(resp.Scopes, s.String())
		}

		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				resp.Ready = false
				resp.Error = err.Error()
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Metrics serves the Prometheus registry.
func Metrics(d deps.Deps) http.Handler {
	return metrics.Handler(d.Metrics)
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
)

// Events streams store changes ("scope" events) and session changes
// ("session" events) as Server-Sent Events until the client goes away.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		scopes := d.Core.Store.Subscribe(ctx)
		sessions := d.Core.Session.Subscribe(ctx)

		// Send an initial comment to establish the stream
		_, _ = w.Write([]byte(": stream started\n\n"))
		flusher.Flush()

		for {
			var (
				name string
				v    any
			)
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-scopes:
				if !ok {
					return
				}
				name, v = "scope", ev
			case s, ok := <-sessions:
				if !ok {
					return
				}
				name, v = "session", s
			}

			payload, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

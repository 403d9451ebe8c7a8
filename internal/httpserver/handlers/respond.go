package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps a failure kind to the HTTP status surfaced to the renderer.
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNetwork:
		return http.StatusBadGateway
	case domain.KindInvalidTransition:
		return http.StatusConflict
	case domain.KindAuthExpired, domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: "internal_error"}

	var f *domain.Failure
	if errors.As(err, &f) {
		resp.Error = f.Kind.String()
		resp.Reason = f.Reason
		resp.Retryable = f.Kind.Retryable()
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", logger.Error(err))
	} else {
		log.Debug("request rejected", logger.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Reason: reason})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

// scopeParam reads ?scope=, global when absent.
func scopeParam(r *http.Request) (domain.Scope, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("scope"))
	if raw == "" {
		return domain.Global, nil
	}
	return domain.ParseScope(raw)
}

// listParam accepts both ?k=a,b and ?k=a&k=b.
func listParam(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(r *http.Request, key string) (int, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, true, nil
}

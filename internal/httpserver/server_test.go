package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/bountyboard/internal/api/apitest"
	"github.com/MrSnakeDoc/bountyboard/internal/auth"
	"github.com/MrSnakeDoc/bountyboard/internal/core"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

const (
	alice = "02a11ce0000000000000"
	carol = "04ca401"
)

type fixture struct {
	fake    *apitest.Fake
	core    *core.Core
	handler http.Handler
}

func newFixture(t *testing.T, mutate func(*deps.Deps)) *fixture {
	t.Helper()

	f := apitest.New()
	f.SignAfter = 1
	f.PubKey = alice
	f.SetPeople(
		domain.Person{PubKey: alice, Alias: "alice"},
		domain.Person{PubKey: carol, Alias: "carol"},
	)
	f.SetPage(domain.Global, 1, []domain.RawBountyBundle{
		{Bounty: &domain.Bounty{ID: "b-1", Title: "Fix login flow", OwnerID: alice, Lifecycle: domain.LifecycleOpen}},
		{Bounty: &domain.Bounty{ID: "b-2", Title: "Write docs", OwnerID: alice, Lifecycle: domain.LifecycleOpen}},
	}, 2)

	c := core.Init(f, logger.Nop(), core.Options{
		Store: store.Options{PageSize: 20},
		Auth:  auth.Options{PollInterval: 10 * time.Millisecond},
	})
	t.Cleanup(c.Teardown)

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("metrics.Register() error = %v", err)
	}

	d := deps.Deps{
		Logger:         logger.Nop(),
		StartTime:      time.Now(),
		Version:        "test",
		Core:           c,
		Metrics:        reg,
		RequestTimeout: 5 * time.Second,
		LoginBurst:     5,
		LoginPerMin:    60,
	}
	if mutate != nil {
		mutate(&d)
	}

	return &fixture{fake: f, core: c, handler: NewRouter(logger.Nop(), d)}
}

func (fx *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func (fx *fixture) login(t *testing.T) {
	t.Helper()
	if rec := fx.do(t, http.MethodPost, "/api/session/login", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/session/login = %d, body %s", rec.Code, rec.Body)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fx.core.Session.Stage() != auth.Authenticated {
		if time.Now().After(deadline) {
			t.Fatalf("session stuck in %v", fx.core.Session.Stage())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return v
}

type listResponse struct {
	Items []struct {
		Body struct {
			ID       string          `json:"id"`
			Title    string          `json:"title"`
			Assignee json.RawMessage `json:"assignee"`
		} `json:"body"`
	} `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
	Loaded  bool `json:"loaded"`
}

type failureResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func TestHealthz(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["status"] != "ok" || got["version"] != "test" {
		t.Errorf("healthz = %v", got)
	}
}

func TestFetchThenSearch(t *testing.T) {
	fx := newFixture(t, nil)

	empty := decode[listResponse](t, fx.do(t, http.MethodGet, "/api/bounties", ""))
	if empty.Loaded || len(empty.Items) != 0 {
		t.Fatalf("search before fetch = %+v, want an empty unloaded scope", empty)
	}

	rec := fx.do(t, http.MethodPost, "/api/bounties/fetch?scope=global", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status = %d, body %s", rec.Code, rec.Body)
	}
	page := decode[listResponse](t, rec)
	if !page.Loaded || page.Total != 2 || len(page.Items) != 2 || page.HasMore {
		t.Fatalf("fetch = %+v", page)
	}
	if string(page.Items[0].Body.Assignee) != `""` {
		t.Errorf("unassigned assignee = %s, want \"\"", page.Items[0].Body.Assignee)
	}

	got := decode[listResponse](t, fx.do(t, http.MethodGet, "/api/bounties?q=login", ""))
	if len(got.Items) != 1 || got.Items[0].Body.ID != "b-1" {
		t.Errorf("search q=login = %+v, want b-1", got.Items)
	}
}

func TestBadRequests(t *testing.T) {
	fx := newFixture(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "unknown scope", method: http.MethodGet, target: "/api/bounties?scope=galaxy"},
		{name: "scope without id", method: http.MethodPost, target: "/api/bounties/fetch?scope=profile"},
		{name: "bad page", method: http.MethodPost, target: "/api/bounties/fetch?page=zero"},
		{name: "unknown field", method: http.MethodPost, target: "/api/bounties", body: `{"title":"x","bogus":1}`},
		{name: "negative price", method: http.MethodPost, target: "/api/bounties", body: `{"title":"x","price":-5}`},
		{name: "malformed patch", method: http.MethodPatch, target: "/api/bounties/b-1", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestRefreshQueuesScope(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodPost, "/api/bounties/refresh?scope=admin", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	select {
	case got := <-fx.core.Store.Refreshes():
		if got != domain.Admin {
			t.Errorf("queued scope = %v, want admin", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no refresh queued")
	}
}

func TestWritesRequireSession(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodPost, "/api/bounties", `{"title":"Anonymous"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decode[failureResponse](t, rec); got.Error != "unauthenticated" || got.Retryable {
		t.Errorf("error = %+v", got)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	fx := newFixture(t, nil)
	fx.login(t)

	if rec := fx.do(t, http.MethodPost, "/api/bounties/fetch", ""); rec.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rec.Code)
	}

	steps := []struct {
		name      string
		method    string
		target    string
		body      string
		wantCode  int
		wantState string
	}{
		{name: "select", method: http.MethodPost, target: "/api/bounties/b-1/select", body: `{"assignee":"` + carol + `"}`, wantCode: http.StatusOK, wantState: "pending_assignment"},
		{name: "assign", method: http.MethodPost, target: "/api/bounties/b-1/assign", body: `{"assignee":"` + carol + `"}`, wantCode: http.StatusOK, wantState: "assigned"},
		{name: "delete assigned", method: http.MethodDelete, target: "/api/bounties/b-1", wantCode: http.StatusConflict},
		{name: "unassign", method: http.MethodPost, target: "/api/bounties/b-1/unassign", wantCode: http.StatusOK, wantState: "unassigned"},
		{name: "delete", method: http.MethodDelete, target: "/api/bounties/b-1", wantCode: http.StatusOK, wantState: "deleted"},
		{name: "unknown bounty", method: http.MethodPost, target: "/api/bounties/nope/unassign", wantCode: http.StatusNotFound},
	}

	for _, st := range steps {
		rec := fx.do(t, st.method, st.target, st.body)
		if rec.Code != st.wantCode {
			t.Fatalf("%s: status = %d, want %d (body %s)", st.name, rec.Code, st.wantCode, rec.Body)
		}
		if st.wantState == "" {
			continue
		}
		got := decode[map[string]string](t, rec)
		if got["state"] != st.wantState || got["id"] == "" {
			t.Fatalf("%s: response = %v, want state %s", st.name, got, st.wantState)
		}
	}

	if len(fx.fake.Deletes) != 1 || fx.fake.Deletes[0] != "b-1" {
		t.Errorf("server deletes = %v, want [b-1]", fx.fake.Deletes)
	}
}

func TestAffordances(t *testing.T) {
	fx := newFixture(t, nil)
	fx.login(t)
	fx.do(t, http.MethodPost, "/api/bounties/fetch", "")

	rec := fx.do(t, http.MethodGet, "/api/bounties/b-2/affordances", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[map[string]any](t, rec)
	if got["state"] != "unassigned" || got["assign"] != true || got["unassign"] != false {
		t.Errorf("affordances = %v", got)
	}
}

func TestCreateAndUpdate(t *testing.T) {
	fx := newFixture(t, nil)
	fx.login(t)
	fx.do(t, http.MethodPost, "/api/bounties/fetch", "")

	rec := fx.do(t, http.MethodPost, "/api/bounties", `{"title":"Ship the board","price":2100}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[map[string]map[string]any](t, rec)
	id, _ := created["body"]["id"].(string)
	if id == "" || created["person"]["owner_alias"] != "alice" {
		t.Fatalf("created = %v, want an id owned by alice", created)
	}

	rec = fx.do(t, http.MethodPatch, "/api/bounties/"+id, `{"title":"Ship the bounty board"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body)
	}

	got := decode[listResponse](t, fx.do(t, http.MethodGet, "/api/bounties", ""))
	found := false
	for _, it := range got.Items {
		if it.Body.ID == id {
			found = it.Body.Title == "Ship the bounty board"
		}
	}
	if !found {
		t.Errorf("snapshot after update = %+v, want %s retitled", got.Items, id)
	}
}

func TestPatchCannotBypassAssignment(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.SetPage(domain.Global, 1, []domain.RawBountyBundle{
		{Bounty: &domain.Bounty{ID: "b-1", Title: "Fix login flow", OwnerID: alice, Lifecycle: domain.LifecycleOpen}},
		{Bounty: &domain.Bounty{ID: "b-3", Title: "Carol's bounty", OwnerID: carol, Lifecycle: domain.LifecycleOpen}},
	}, 2)
	fx.login(t)
	fx.do(t, http.MethodPost, "/api/bounties/fetch", "")

	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
	}{
		{name: "set assignee", target: "/api/bounties/b-1", body: `{"assignee":"` + carol + `"}`, wantCode: http.StatusBadRequest},
		{name: "set status", target: "/api/bounties/b-1", body: `{"status":"paid"}`, wantCode: http.StatusBadRequest},
		{name: "reassign foreign bounty", target: "/api/bounties/b-3", body: `{"assignee":"` + alice + `","status":"assigned"}`, wantCode: http.StatusBadRequest},
		{name: "edit foreign bounty", target: "/api/bounties/b-3", body: `{"title":"Mine now"}`, wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodPatch, tt.target, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
		})
	}

	if len(fx.fake.Updates) != 0 {
		t.Errorf("server updates = %+v, want none", fx.fake.Updates)
	}
	for _, id := range []string{"b-1", "b-3"} {
		if state, err := fx.core.Assign.State(id); err != nil || state.String() != "unassigned" {
			t.Errorf("State(%s) = %v, %v, want unassigned", id, state, err)
		}
	}
}

func TestSessionEndpoints(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.InvalidateErr = domain.Failf(domain.KindNetwork, "invalidate_session", "offline")

	session := decode[map[string]any](t, fx.do(t, http.MethodGet, "/api/session", ""))
	if session["stage"] != "idle" {
		t.Fatalf("initial stage = %v", session["stage"])
	}

	fx.login(t)
	rec := fx.do(t, http.MethodGet, "/api/session", "")
	if strings.Contains(rec.Body.String(), "token") {
		t.Errorf("session leaks a token: %s", rec.Body)
	}

	if rec := fx.do(t, http.MethodPost, "/api/session/login", ""); rec.Code != http.StatusConflict {
		t.Errorf("login while authenticated = %d, want 409", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/api/session/logout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	out := decode[struct {
		Session     map[string]any `json:"session"`
		RemoteError string         `json:"remote_error"`
	}](t, rec)
	if out.Session["stage"] != "idle" || out.RemoteError == "" {
		t.Errorf("logout = %+v, want idle with the remote error", out)
	}
}

func TestCancelLogin(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.SignAfter = 0

	if rec := fx.do(t, http.MethodPost, "/api/session/login", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("login status = %d", rec.Code)
	}
	rec := fx.do(t, http.MethodDelete, "/api/session/login", "")
	if got := decode[map[string]any](t, rec); got["stage"] != "idle" {
		t.Errorf("stage after cancel = %v, want idle", got["stage"])
	}
}

func TestLoginRateLimit(t *testing.T) {
	fx := newFixture(t, func(d *deps.Deps) {
		d.LoginBurst = 1
		d.LoginPerMin = 1
	})
	fx.fake.SignAfter = 0

	if rec := fx.do(t, http.MethodPost, "/api/session/login", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first login = %d, want 202", rec.Code)
	}
	rec := fx.do(t, http.MethodPost, "/api/session/login", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second login = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		ready    func(ctx context.Context) error
		cidrs    []string
		wantCode int
	}{
		{name: "no backends", wantCode: http.StatusOK},
		{name: "backend up", ready: func(context.Context) error { return nil }, wantCode: http.StatusOK},
		{name: "backend down", ready: func(context.Context) error { return errors.New("redis: connection refused") }, wantCode: http.StatusServiceUnavailable},
		{name: "outside allowed cidrs", cidrs: []string{"10.0.0.0/8"}, wantCode: http.StatusForbidden},
		// httptest requests come from 192.0.2.1
		{name: "inside allowed cidrs", cidrs: []string{"192.0.2.0/24"}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, func(d *deps.Deps) {
				d.Ready = tt.ready
				d.AllowedCIDRS = tt.cidrs
			})
			if rec := fx.do(t, http.MethodGet, "/readyz", ""); rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t, nil)
	fx.do(t, http.MethodPost, "/api/bounties/fetch", "")

	rec := fx.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"bountyboard_store_fetches_total", "bountyboard_http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
	if !strings.Contains(body, `route="/api/bounties/fetch"`) {
		t.Error("request metrics should be labelled by route pattern")
	}
}

func TestCORSPreflight(t *testing.T) {
	fx := newFixture(t, func(d *deps.Deps) {
		d.AllowedOrigins = []string{"https://board.example.com"}
	})

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://board.example.com", want: "https://board.example.com"},
		{origin: "https://evil.example.com", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/bounties", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			fx.handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fake.SignAfter = 0

	srv := httptest.NewServer(fx.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || !strings.HasPrefix(lines.Text(), ": stream started") {
		t.Fatalf("first line = %q", lines.Text())
	}

	if rec := fx.do(t, http.MethodPost, "/api/bounties/fetch", ""); rec.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rec.Code)
	}

	seen := false
	for lines.Scan() {
		if lines.Text() == "event: scope" {
			seen = true
			break
		}
	}
	if !seen {
		t.Fatalf("no scope event on the stream: %v", lines.Err())
	}
}

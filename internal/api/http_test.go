package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	c, err := NewHTTPClient(ts.URL, opts...)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	return c
}

func TestFetchBountiesPaths(t *testing.T) {
	tests := []struct {
		scope    domain.Scope
		wantPath string
	}{
		{domain.Global, "/gobounties/all"},
		{domain.Admin, "/admin/bounties"},
		{domain.ProfileScope("02aa"), "/gobounties/person/02aa"},
		{domain.WorkspaceScope("ws-1"), "/workspaces/bounties/ws-1"},
		{domain.OrganizationScope("org-1"), "/organizations/bounties/org-1"},
	}

	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			var gotPath, gotPage, gotLimit string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotPage = r.URL.Query().Get("page")
				gotLimit = r.URL.Query().Get("limit")
				_ = json.NewEncoder(w).Encode(Page{
					Items: []domain.RawBountyBundle{{Bounty: &domain.Bounty{ID: "1", Title: "t"}}},
					Total: 1,
				})
			})

			page, err := c.FetchBounties(context.Background(), tt.scope, Cursor{Page: 2, Limit: 20})
			if err != nil {
				t.Fatalf("FetchBounties() error = %v", err)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tt.wantPath)
			}
			if gotPage != "2" || gotLimit != "20" {
				t.Errorf("query page=%q limit=%q, want 2/20", gotPage, gotLimit)
			}
			if len(page.Items) != 1 || page.Total != 1 {
				t.Errorf("page = %+v, want one item", page)
			}
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, domain.ErrUnauthenticated},
		{"server error", http.StatusBadGateway, domain.ErrNetwork},
		{"throttled", http.StatusTooManyRequests, domain.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.UpdateBounty(context.Background(), "1", BountyPatch{Title: Ptr("x")})
			if !errors.Is(err, tt.want) {
				t.Errorf("UpdateBounty() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransportFailureIsNetwork(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := NewHTTPClient(url)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if err := c.DeleteBounty(context.Background(), "1"); !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("DeleteBounty() error = %v, want network failure", err)
	}
}

func TestHeaders(t *testing.T) {
	var auth, reqID, contentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-ID")
		contentType = r.Header.Get("Content-Type")
		_ = json.NewEncoder(w).Encode(domain.Bounty{ID: "9", Title: "created"})
	}, WithTokenSource(func() string { return "jwt-token" }))

	b, err := c.CreateBounty(context.Background(), domain.Bounty{Title: "created"})
	if err != nil {
		t.Fatalf("CreateBounty() error = %v", err)
	}
	if b.ID != "9" {
		t.Errorf("CreateBounty() id = %q, want 9", b.ID)
	}
	if auth != "Bearer jwt-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if reqID == "" {
		t.Error("X-Request-ID should be set")
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
}

func TestChallengeRoundTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ask":
			_ = json.NewEncoder(w).Encode(Challenge{Token: "abc"})
		case "/poll/abc":
			_ = json.NewEncoder(w).Encode(ChallengeStatus{Signed: true, PubKey: "02ff"})
		default:
			http.NotFound(w, r)
		}
	})

	ch, err := c.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge() error = %v", err)
	}
	st, err := c.PollChallenge(context.Background(), ch.Token)
	if err != nil {
		t.Fatalf("PollChallenge() error = %v", err)
	}
	if !st.Signed || st.PubKey != "02ff" {
		t.Errorf("PollChallenge() = %+v", st)
	}
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	if _, err := NewHTTPClient("ftp://example.com"); err == nil {
		t.Error("NewHTTPClient() should reject non-http schemes")
	}
}

func TestCursorAndPatch(t *testing.T) {
	c := First(20)
	if !c.Restarts() {
		t.Error("First() should restart")
	}
	if n := c.Next(); n.Page != 2 || n.Limit != 20 || n.Restarts() {
		t.Errorf("Next() = %+v", n)
	}

	b := domain.Bounty{ID: "1", Title: "old", CodingLanguages: []string{"Go"}}
	got := BountyPatch{Title: Ptr("new"), AssigneeID: Ptr("carol")}.Apply(b)
	if got.Title != "new" || got.AssigneeID != "carol" {
		t.Errorf("Apply() = %+v", got)
	}
	got.CodingLanguages[0] = "Rust"
	if b.CodingLanguages[0] != "Go" {
		t.Error("Apply() must not alias the input slices")
	}
}

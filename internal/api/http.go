package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/utils"
)

const maxErrorBody = 4 << 10

// HTTPClient talks JSON to the bounty API.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	token   func() string
	logger  logger.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithRateLimit caps outgoing requests. perSecond <= 0 disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *HTTPClient) {
		if perSecond <= 0 {
			h.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTokenSource supplies the bearer token attached to every request.
// An empty token sends no Authorization header.
func WithTokenSource(fn func() string) Option {
	return func(h *HTTPClient) { h.token = fn }
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient builds a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	h := &HTTPClient{
		baseURL: u,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 0),
		token:   func() string { return "" },
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// bountiesPath maps a scope to its listing endpoint.
func bountiesPath(scope domain.Scope) string {
	switch scope.Kind {
	case domain.ScopeGlobal:
		return "/gobounties/all"
	case domain.ScopeProfile:
		return "/gobounties/person/" + url.PathEscape(scope.ID)
	case domain.ScopeWorkspace:
		return "/workspaces/bounties/" + url.PathEscape(scope.ID)
	case domain.ScopeOrganization:
		return "/organizations/bounties/" + url.PathEscape(scope.ID)
	case domain.ScopeAdmin:
		return "/admin/bounties"
	default:
		panic(fmt.Sprintf("api: unroutable scope %q", scope.String()))
	}
}

func pageQuery(c Cursor) url.Values {
	q := url.Values{}
	page := c.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	if c.Limit > 0 {
		q.Set("limit", strconv.Itoa(c.Limit))
	}
	return q
}

func (h *HTTPClient) FetchBounties(ctx context.Context, scope domain.Scope, cursor Cursor) (Page, error) {
	var page Page
	err := h.do(ctx, "fetch_bounties", http.MethodGet, bountiesPath(scope), pageQuery(cursor), nil, &page)
	return page, err
}

func (h *HTTPClient) FetchPeople(ctx context.Context, cursor Cursor) (PeoplePage, error) {
	var page PeoplePage
	err := h.do(ctx, "fetch_people", http.MethodGet, "/people", pageQuery(cursor), nil, &page)
	return page, err
}

func (h *HTTPClient) FetchPerson(ctx context.Context, pubkey string) (domain.Person, error) {
	var p domain.Person
	err := h.do(ctx, "fetch_person", http.MethodGet, "/person/"+url.PathEscape(pubkey), nil, nil, &p)
	return p, err
}

func (h *HTTPClient) CreateBounty(ctx context.Context, payload domain.Bounty) (domain.Bounty, error) {
	var b domain.Bounty
	err := h.do(ctx, "create_bounty", http.MethodPost, "/gobounties", nil, payload, &b)
	return b, err
}

func (h *HTTPClient) UpdateBounty(ctx context.Context, id string, patch BountyPatch) (domain.Bounty, error) {
	var b domain.Bounty
	err := h.do(ctx, "update_bounty", http.MethodPatch, "/gobounties/"+url.PathEscape(id), nil, patch, &b)
	return b, err
}

func (h *HTTPClient) DeleteBounty(ctx context.Context, id string) error {
	return h.do(ctx, "delete_bounty", http.MethodDelete, "/gobounties/"+url.PathEscape(id), nil, nil, nil)
}

func (h *HTTPClient) IssueChallenge(ctx context.Context) (Challenge, error) {
	var c Challenge
	err := h.do(ctx, "issue_challenge", http.MethodGet, "/ask", nil, nil, &c)
	return c, err
}

func (h *HTTPClient) PollChallenge(ctx context.Context, token string) (ChallengeStatus, error) {
	var s ChallengeStatus
	err := h.do(ctx, "poll_challenge", http.MethodGet, "/poll/"+url.PathEscape(token), nil, nil, &s)
	return s, err
}

func (h *HTTPClient) InvalidateSession(ctx context.Context, alias string) error {
	body := map[string]string{"alias": alias}
	return h.do(ctx, "invalidate_session", http.MethodPost, "/logout", nil, body, nil)
}

// do executes one JSON round trip and maps transport and status errors to
// domain failures.
func (h *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return domain.Fail(domain.KindNetwork, op, "rate limiter", err)
	}

	u := *h.baseURL
	u.Path = h.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := h.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domain.Fail(domain.KindNetwork, op, "", err)
	}
	defer utils.DrainClose(resp.Body)

	h.logger.Debug("api request",
		logger.String("op", op),
		logger.String("method", method),
		logger.String("path", u.Path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)),
		logger.String("request_id", reqID))

	if err := classify(op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Fail(domain.KindNetwork, op, "malformed response", err)
	}
	return nil
}

func classify(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	reason := strings.TrimSpace(string(msg))
	if reason == "" {
		reason = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Failf(domain.KindNotFound, op, "%s", reason)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Failf(domain.KindUnauthenticated, op, "%s", reason)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.Failf(domain.KindNetwork, op, "%s", reason)
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, reason)
	}
}

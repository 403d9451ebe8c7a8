// Package fixtures serves the bounty API from a YAML file, for offline
// development and demos. Writes are applied in memory and lost on restart.
package fixtures

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

const defaultChallengeTTL = 5 * time.Minute

// Client is an api.Client over a Dataset.
type Client struct {
	mu sync.Mutex

	bounties []domain.Bounty
	people   []domain.Person
	persons  map[string]domain.Person
	orgs     map[string]domain.Organization
	login    LoginSchema

	challenges map[string]*challenge

	logger logger.Logger
	now    func() time.Time
}

type challenge struct {
	expiresAt time.Time
	polls     int
}

// Open loads, validates and serves the fixture file at path.
func Open(path string, log logger.Logger) (*Client, error) {
	f, err := NewLoader(path).Load()
	if err != nil {
		return nil, err
	}
	ds, err := NewMapper().Map(f)
	if err != nil {
		return nil, fmt.Errorf("failed to map fixture file %s: %w", path, err)
	}
	c := New(ds, log)
	c.logger.Info("fixtures loaded",
		logger.String("path", path),
		logger.Int("bounties", len(ds.Bounties)),
		logger.Int("people", len(ds.People)),
	)
	return c, nil
}

// New serves ds. The dataset is copied.
func New(ds *Dataset, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	c := &Client{
		persons:    make(map[string]domain.Person),
		orgs:       make(map[string]domain.Organization),
		login:      ds.Login,
		challenges: make(map[string]*challenge),
		logger:     log.Component("fixtures"),
		now:        time.Now,
	}
	for _, b := range ds.Bounties {
		c.bounties = append(c.bounties, b.Clone())
	}
	for _, p := range ds.People {
		c.people = append(c.people, p.Clone())
		c.persons[p.PubKey] = p.Clone()
	}
	for id, o := range ds.Organizations {
		c.orgs[id] = o.Clone()
	}
	if c.login.ChallengeTTL <= 0 {
		c.login.ChallengeTTL = defaultChallengeTTL
	}
	return c
}

// inScope reports whether b is listed under scope.
func inScope(b domain.Bounty, scope domain.Scope) bool {
	if b.Deleted() {
		return false
	}
	switch scope.Kind {
	case domain.ScopeGlobal:
		return b.Lifecycle != domain.LifecyclePaid
	case domain.ScopeAdmin:
		return true
	case domain.ScopeProfile:
		return b.OwnerID == scope.ID || b.AssigneeID == scope.ID
	case domain.ScopeWorkspace, domain.ScopeOrganization:
		return b.OrgUUID == scope.ID
	}
	return false
}

func window(cursor api.Cursor, n int) (start, end int) {
	limit := cursor.Limit
	if limit <= 0 {
		limit = api.DefaultPageSize
	}
	page := max(cursor.Page, 1)
	start = min((page-1)*limit, n)
	end = min(start+limit, n)
	return start, end
}

func (c *Client) bundle(b domain.Bounty) domain.RawBountyBundle {
	raw := domain.RawBountyBundle{Bounty: new(domain.Bounty)}
	*raw.Bounty = b.Clone()

	if p, ok := c.persons[b.OwnerID]; ok {
		owner := p.Clone()
		raw.Owner = &owner
	}
	if b.AssigneeID != "" {
		assignee := domain.Person{PubKey: b.AssigneeID}
		if p, ok := c.persons[b.AssigneeID]; ok {
			assignee = p.Clone()
		}
		raw.Assignee = &assignee
	}
	if o, ok := c.orgs[b.OrgUUID]; ok {
		org := o.Clone()
		raw.Organization = &org
	}
	return raw
}

func (c *Client) FetchBounties(ctx context.Context, scope domain.Scope, cursor api.Cursor) (api.Page, error) {
	if err := ctx.Err(); err != nil {
		return api.Page{}, domain.Fail(domain.KindNetwork, "fetch_bounties", "", err)
	}
	if err := scope.Validate(); err != nil {
		return api.Page{}, domain.Fail(domain.KindNotFound, "fetch_bounties", "", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []domain.Bounty
	for _, b := range c.bounties {
		if inScope(b, scope) {
			matched = append(matched, b)
		}
	}
	start, end := window(cursor, len(matched))
	items := make([]domain.RawBountyBundle, 0, end-start)
	for _, b := range matched[start:end] {
		items = append(items, c.bundle(b))
	}
	return api.Page{Items: items, Total: len(matched)}, nil
}

func (c *Client) FetchPeople(ctx context.Context, cursor api.Cursor) (api.PeoplePage, error) {
	if err := ctx.Err(); err != nil {
		return api.PeoplePage{}, domain.Fail(domain.KindNetwork, "fetch_people", "", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start, end := window(cursor, len(c.people))
	items := make([]domain.Person, 0, end-start)
	for _, p := range c.people[start:end] {
		items = append(items, p.Clone())
	}
	return api.PeoplePage{Items: items, Total: len(c.people)}, nil
}

func (c *Client) FetchPerson(_ context.Context, pubkey string) (domain.Person, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.persons[pubkey]
	if !ok {
		return domain.Person{}, domain.Failf(domain.KindNotFound, "fetch_person", "unknown person %q", pubkey)
	}
	return p.Clone(), nil
}

func (c *Client) CreateBounty(_ context.Context, payload domain.Bounty) (domain.Bounty, error) {
	if payload.OwnerID == "" {
		return domain.Bounty{}, domain.Failf(domain.KindInvalidTransition, "create_bounty", "owner is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := payload.Clone()
	b.ID = uuid.NewString()
	if b.Lifecycle == "" {
		b.Lifecycle = lifecycleOf(b)
	}
	b.Created = c.now().UTC()
	b.Updated = b.Created

	// Newest first, as the server lists them.
	c.bounties = append([]domain.Bounty{b.Clone()}, c.bounties...)
	c.logger.Debug("bounty created", logger.String("id", b.ID))
	return b, nil
}

func (c *Client) indexOf(id string) int {
	for i, b := range c.bounties {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (c *Client) UpdateBounty(_ context.Context, id string, patch api.BountyPatch) (domain.Bounty, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 || c.bounties[i].Deleted() {
		return domain.Bounty{}, domain.Failf(domain.KindNotFound, "update_bounty", "unknown bounty %q", id)
	}
	b := patch.Apply(c.bounties[i])
	b.Updated = c.now().UTC()
	c.bounties[i] = b.Clone()
	c.logger.Debug("bounty updated", logger.String("id", id))
	return b, nil
}

func (c *Client) DeleteBounty(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return domain.Failf(domain.KindNotFound, "delete_bounty", "unknown bounty %q", id)
	}
	c.bounties = append(c.bounties[:i], c.bounties[i+1:]...)
	c.logger.Debug("bounty deleted", logger.String("id", id))
	return nil
}

func (c *Client) IssueChallenge(context.Context) (api.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := uuid.NewString()
	expiresAt := c.now().Add(c.login.ChallengeTTL)
	c.challenges[token] = &challenge{expiresAt: expiresAt}
	return api.Challenge{Token: token, ExpiresAt: expiresAt}, nil
}

func (c *Client) PollChallenge(_ context.Context, token string) (api.ChallengeStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.challenges[token]
	if !ok {
		return api.ChallengeStatus{}, domain.Failf(domain.KindNotFound, "poll_challenge", "unknown challenge")
	}
	if c.now().After(ch.expiresAt) {
		delete(c.challenges, token)
		return api.ChallengeStatus{}, domain.Failf(domain.KindAuthExpired, "poll_challenge", "challenge expired")
	}
	ch.polls++
	if c.login.SignAfter <= 0 || ch.polls < c.login.SignAfter || c.login.PubKey == "" {
		return api.ChallengeStatus{}, nil
	}
	delete(c.challenges, token)
	return api.ChallengeStatus{Signed: true, PubKey: c.login.PubKey, JWT: c.login.JWT}, nil
}

func (c *Client) InvalidateSession(_ context.Context, alias string) error {
	c.logger.Info("session invalidated", logger.String("alias", alias))
	return nil
}

var _ api.Client = (*Client)(nil)

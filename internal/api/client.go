package api

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// DefaultPageSize matches the server's default page length.
const DefaultPageSize = 20

// Cursor addresses one page. Page is 1-based; Page <= 1 restarts a sequence.
type Cursor struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// First returns the restarting cursor for the given page size.
func First(limit int) Cursor {
	return Cursor{Page: 1, Limit: limit}
}

// Restarts reports whether c begins a new sequence.
func (c Cursor) Restarts() bool {
	return c.Page <= 1
}

// Next returns the cursor of the following page.
func (c Cursor) Next() Cursor {
	page := c.Page
	if page < 1 {
		page = 1
	}
	return Cursor{Page: page + 1, Limit: c.Limit}
}

// Page is one page of bounties plus the server's total-count hint.
type Page struct {
	Items []domain.RawBountyBundle `json:"items"`
	Total int                      `json:"total"`
}

// PeoplePage is one page of the people directory.
type PeoplePage struct {
	Items []domain.Person `json:"items"`
	Total int             `json:"total"`
}

// BountyPatch is a sparse update; nil fields are left untouched.
type BountyPatch struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Amount      *int64            `json:"price,omitempty"`
	AssigneeID  *string           `json:"assignee,omitempty"`
	Lifecycle   *domain.Lifecycle `json:"status,omitempty"`
}

// TouchesAssignment reports whether the patch sets the assignee or the
// lifecycle.
func (p BountyPatch) TouchesAssignment() bool {
	return p.AssigneeID != nil || p.Lifecycle != nil
}

// Apply returns b with the patch applied.
func (p BountyPatch) Apply(b domain.Bounty) domain.Bounty {
	b = b.Clone()
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Amount != nil {
		b.Amount = *p.Amount
	}
	if p.AssigneeID != nil {
		b.AssigneeID = *p.AssigneeID
	}
	if p.Lifecycle != nil {
		b.Lifecycle = *p.Lifecycle
	}
	return b
}

// Challenge is a short-lived login token to be signed out of band.
type Challenge struct {
	Token     string    `json:"challenge"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeStatus is the answer of one poll.
type ChallengeStatus struct {
	Signed bool   `json:"signed"`
	PubKey string `json:"pubkey,omitempty"`
	// JWT is the bearer token issued once the challenge is signed, if any.
	JWT string `json:"jwt,omitempty"`
}

// Client is the remote API consumed by the core. Implementations return
// *domain.Failure values for expected conditions.
type Client interface {
	FetchBounties(ctx context.Context, scope domain.Scope, cursor Cursor) (Page, error)
	FetchPeople(ctx context.Context, cursor Cursor) (PeoplePage, error)
	FetchPerson(ctx context.Context, pubkey string) (domain.Person, error)
	CreateBounty(ctx context.Context, payload domain.Bounty) (domain.Bounty, error)
	UpdateBounty(ctx context.Context, id string, patch BountyPatch) (domain.Bounty, error)
	DeleteBounty(ctx context.Context, id string) error
	IssueChallenge(ctx context.Context) (Challenge, error)
	PollChallenge(ctx context.Context, token string) (ChallengeStatus, error)
	InvalidateSession(ctx context.Context, alias string) error
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }

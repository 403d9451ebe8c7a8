package domain

import (
	"slices"
	"time"
)

// Lifecycle is the server-side state flag of a bounty.
type Lifecycle string

const (
	LifecycleOpen     Lifecycle = "open"
	LifecycleAssigned Lifecycle = "assigned"
	LifecyclePaid     Lifecycle = "paid"
	LifecycleDeleted  Lifecycle = "deleted"
)

// Bounty is a unit of paid work as the API returns it.
type Bounty struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ID is the server-assigned identifier.
	ID string `json:"id" yaml:"id"`

	// OwnerID is the pubkey of the person who posted the bounty. Required.
	OwnerID string `json:"owner_id" yaml:"owner_id"`

	// OrgUUID references the workspace/organization the bounty is scoped to.
	// Empty for personal bounties.
	OrgUUID string `json:"org_uuid,omitempty" yaml:"org_uuid,omitempty"`

	// ─────────────────────────────
	// Description of the work
	// ─────────────────────────────

	Title           string   `json:"title" yaml:"title"`
	Description     string   `json:"description" yaml:"description"`
	Category        string   `json:"category,omitempty" yaml:"category,omitempty"`
	CodingLanguages []string `json:"coding_languages" yaml:"coding_languages"`
	Deliverables    string   `json:"deliverables,omitempty" yaml:"deliverables,omitempty"`

	// EstimatedSessionLength is free text ("less than 3 hours", "2-3 days").
	EstimatedSessionLength string    `json:"estimated_session_length,omitempty" yaml:"estimated_session_length,omitempty"`
	CompletionDate         time.Time `json:"estimated_completion_date,omitempty" yaml:"estimated_completion_date,omitempty"`

	// Amount is denominated in sats. Never negative.
	Amount int64 `json:"price" yaml:"price"`

	// ─────────────────────────────
	// Assignment & lifecycle
	// ─────────────────────────────

	// AssigneeID is the pubkey of the assigned person, empty when unassigned.
	AssigneeID string    `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Lifecycle  Lifecycle `json:"status" yaml:"status"`

	Created time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	Updated time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// Deleted reports whether the bounty has been soft-deleted.
func (b Bounty) Deleted() bool {
	return b.Lifecycle == LifecycleDeleted
}

// Clone returns a copy that shares no memory with b.
func (b Bounty) Clone() Bounty {
	b.CodingLanguages = slices.Clone(b.CodingLanguages)
	return b
}

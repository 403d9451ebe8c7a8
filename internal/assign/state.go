// Package assign drives the assignment state machine of a bounty.
//
//	Unassigned -> PendingAssignment -> Assigned -> PaidOut
//	Unassigned -> Deleted
//	Assigned   -> Unassigned
//
// PaidOut and Deleted are terminal.
package assign

import (
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

// State is the assignment state of one bounty.
type State int

const (
	Unassigned State = iota
	PendingAssignment
	Assigned
	PaidOut
	Deleted
)

func (s State) String() string {
	switch s {
	case Unassigned:
		return "unassigned"
	case PendingAssignment:
		return "pending_assignment"
	case Assigned:
		return "assigned"
	case PaidOut:
		return "paid_out"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == PaidOut || s == Deleted
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PaymentConfirmed is emitted by the settlement collaborator once a bounty
// has been paid.
type PaymentConfirmed struct {
	BountyID string    `json:"bounty_id"`
	Amount   int64     `json:"amount"`
	At       time.Time `json:"at"`
}

// Affordances lists the actions the current identity may take on a bounty.
type Affordances struct {
	State    State  `json:"state"`
	Pending  string `json:"pending,omitempty"` // selected candidate, if any
	Select   bool   `json:"select"`
	Assign   bool   `json:"assign"`
	Reassign bool   `json:"reassign"`
	Unassign bool   `json:"unassign"`
	Delete   bool   `json:"delete"`
}

// stateOf derives the state of a stored record. pending is the selected
// candidate, "" when none.
func stateOf(rec store.Record, pending string) State {
	b := rec.Bundle.Bounty
	switch {
	case rec.Deleted || b.Deleted():
		return Deleted
	case b.Lifecycle == domain.LifecyclePaid:
		return PaidOut
	case b.AssigneeID != "" || b.Lifecycle == domain.LifecycleAssigned:
		return Assigned
	case pending != "":
		return PendingAssignment
	default:
		return Unassigned
	}
}

func affordancesFor(state State, allowed bool, pending string) Affordances {
	a := Affordances{State: state, Pending: pending}
	if !allowed {
		return a
	}
	switch state {
	case Unassigned:
		a.Select, a.Assign, a.Delete = true, true, true
	case PendingAssignment:
		a.Select, a.Assign, a.Unassign = true, true, true
	case Assigned:
		a.Reassign, a.Unassign = true, true
	}
	return a
}

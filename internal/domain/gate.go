package domain

// Gate exposes the authenticated identity that every write path requires.
type Gate interface {
	// Identity returns the current person and true when a live session exists.
	Identity() (Person, bool)
}

// GateFunc adapts a function to Gate.
type GateFunc func() (Person, bool)

func (f GateFunc) Identity() (Person, bool) { return f() }

// RequireIdentity returns the current identity or an Unauthenticated failure.
func RequireIdentity(g Gate, op string) (Person, error) {
	if g == nil {
		return Person{}, Failf(KindUnauthenticated, op, "no session")
	}
	p, ok := g.Identity()
	if !ok {
		return Person{}, Failf(KindUnauthenticated, op, "login required")
	}
	return p, nil
}

// CanManage reports whether me may edit or assign the bounty in raw: the
// owner always may, an organization member only with manage-bounties.
func CanManage(me Person, raw RawBountyBundle) bool {
	if me.PubKey == "" || raw.Bounty == nil {
		return false
	}
	if raw.Bounty.OwnerID == me.PubKey {
		return true
	}
	if raw.Organization != nil {
		return raw.Organization.PermissionsOf(me.PubKey).Has(PermManageBounties)
	}
	return false
}

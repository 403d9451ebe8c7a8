package domain

import (
	"slices"
	"strings"
)

// Permission is a bitset of workspace capabilities.
type Permission uint8

const (
	PermManageBounties Permission = 1 << iota
	PermFund
	PermWithdraw
	PermViewHistory
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermManageBounties, "manage-bounties"},
	{PermFund, "fund"},
	{PermWithdraw, "withdraw"},
	{PermViewHistory, "view-history"},
}

// Has reports whether every bit in q is set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

func (p Permission) String() string {
	var names []string
	for _, pn := range permissionNames {
		if p.Has(pn.perm) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParsePermissions converts names like "manage-bounties,fund" to a bitset.
// Unknown names are ignored.
func ParsePermissions(names []string) Permission {
	var p Permission
	for _, n := range names {
		n = strings.TrimSpace(strings.ToLower(n))
		for _, pn := range permissionNames {
			if pn.name == n {
				p |= pn.perm
			}
		}
	}
	return p
}

// Member is a person with a permission set inside an organization.
type Member struct {
	Person      Person     `json:"person" yaml:"person"`
	Permissions Permission `json:"permissions" yaml:"permissions"`
}

// Organization is a workspace or organization. Both share one record shape.
type Organization struct {
	UUID        string   `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Website     string   `json:"website,omitempty" yaml:"website,omitempty"`
	Github      string   `json:"github,omitempty" yaml:"github,omitempty"`
	OwnerPubKey string   `json:"owner_pubkey,omitempty" yaml:"owner_pubkey,omitempty"`
	Members     []Member `json:"members,omitempty" yaml:"members,omitempty"`
}

// Clone returns a copy that shares no memory with o.
func (o Organization) Clone() Organization {
	if o.Members != nil {
		members := make([]Member, len(o.Members))
		for i, m := range o.Members {
			members[i] = Member{Person: m.Person.Clone(), Permissions: m.Permissions}
		}
		o.Members = members
	}
	return o
}

// IsZero reports whether o carries no data.
func (o Organization) IsZero() bool {
	return o.UUID == "" && o.Name == "" && o.Description == "" && o.Website == "" &&
		o.Github == "" && o.OwnerPubKey == "" && len(o.Members) == 0
}

// PermissionsOf returns the permission set of pubkey within o.
// The organization owner holds every permission.
func (o Organization) PermissionsOf(pubkey string) Permission {
	if pubkey == "" {
		return 0
	}
	if o.OwnerPubKey == pubkey {
		return PermManageBounties | PermFund | PermWithdraw | PermViewHistory
	}
	idx := slices.IndexFunc(o.Members, func(m Member) bool { return m.Person.PubKey == pubkey })
	if idx < 0 {
		return 0
	}
	return o.Members[idx].Permissions
}

package domain

import (
	"fmt"
	"strings"
)

// ScopeKind is the origin boundary of a collection.
type ScopeKind string

const (
	ScopeGlobal       ScopeKind = "global"
	ScopeProfile      ScopeKind = "profile"
	ScopeWorkspace    ScopeKind = "workspace"
	ScopeOrganization ScopeKind = "organization"
	ScopeAdmin        ScopeKind = "admin"
)

// Scope keys a collection. Profile, workspace and organization scopes carry
// the id of the owning record; global and admin never do.
//
// Examples: "global", "admin", "profile:02abc…", "workspace:ck9…".
type Scope struct {
	Kind ScopeKind
	ID   string
}

var (
	Global = Scope{Kind: ScopeGlobal}
	Admin  = Scope{Kind: ScopeAdmin}
)

func ProfileScope(pubkey string) Scope    { return Scope{Kind: ScopeProfile, ID: pubkey} }
func WorkspaceScope(uuid string) Scope    { return Scope{Kind: ScopeWorkspace, ID: uuid} }
func OrganizationScope(uuid string) Scope { return Scope{Kind: ScopeOrganization, ID: uuid} }

// ParseScope parses a scope discriminator.
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	kind, id, hasID := strings.Cut(s, ":")
	sc := Scope{Kind: ScopeKind(strings.ToLower(kind)), ID: strings.TrimSpace(id)}
	if hasID && sc.ID == "" {
		return Scope{}, fmt.Errorf("invalid scope %q: empty id", s)
	}
	if err := sc.Validate(); err != nil {
		return Scope{}, err
	}
	return sc, nil
}

// MustParseScope is ParseScope for literals; it panics on malformed input.
func MustParseScope(s string) Scope {
	sc, err := ParseScope(s)
	if err != nil {
		panic(err)
	}
	return sc
}

// Validate checks the kind/id combination.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal, ScopeAdmin:
		if s.ID != "" {
			return fmt.Errorf("invalid scope %q: %s takes no id", s.String(), s.Kind)
		}
	case ScopeProfile, ScopeWorkspace, ScopeOrganization:
		if s.ID == "" {
			return fmt.Errorf("invalid scope %q: %s requires an id", s.String(), s.Kind)
		}
	default:
		return fmt.Errorf("invalid scope %q: unknown kind", s.String())
	}
	return nil
}

func (s Scope) String() string {
	if s.ID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.ID
}

func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = Scope{}
		return nil
	}
	sc, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = sc
	return nil
}

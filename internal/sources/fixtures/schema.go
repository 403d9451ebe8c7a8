package fixtures

import (
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// File is the top-level structure of a fixture file.
//
//	people:
//	  - owner_pubkey: 02abc...
//	    owner_alias: alice
//	organizations:
//	  - uuid: ck9...
//	    name: Stakwork
//	    owner_pubkey: 02abc...
//	    members:
//	      - pubkey: 03def...
//	        roles: [manage-bounties, fund]
//	bounties:
//	  - id: b-1
//	    owner_id: 02abc...
//	    title: Fix the login page
//	login:
//	  sign_after: 2
//	  pubkey: 02abc...
type File struct {
	People        []domain.Person      `yaml:"people"`
	Organizations []OrganizationSchema `yaml:"organizations"`
	Bounties      []domain.Bounty      `yaml:"bounties"`
	Login         LoginSchema          `yaml:"login"`
}

// OrganizationSchema is an organization with roles spelled by name.
type OrganizationSchema struct {
	UUID        string         `yaml:"uuid"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Website     string         `yaml:"website,omitempty"`
	Github      string         `yaml:"github,omitempty"`
	OwnerPubKey string         `yaml:"owner_pubkey"`
	Members     []MemberSchema `yaml:"members,omitempty"`
}

// MemberSchema references a person by pubkey.
type MemberSchema struct {
	PubKey string   `yaml:"pubkey"`
	Roles  []string `yaml:"roles,omitempty"`
}

// LoginSchema scripts the out-of-band signer.
type LoginSchema struct {
	// SignAfter signs a challenge on its n-th poll. Zero never signs.
	SignAfter int    `yaml:"sign_after"`
	PubKey    string `yaml:"pubkey"`
	JWT       string `yaml:"jwt,omitempty"`
	// ChallengeTTL bounds the life of an issued challenge. Defaults to 5m.
	ChallengeTTL time.Duration `yaml:"challenge_ttl,omitempty"`
}

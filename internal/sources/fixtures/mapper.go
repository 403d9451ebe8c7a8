package fixtures

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// Dataset is a validated fixture file, indexed for serving.
type Dataset struct {
	Bounties      []domain.Bounty
	People        []domain.Person
	Organizations map[string]domain.Organization
	Login         LoginSchema
}

// Mapper converts a fixture File to a Dataset.
type Mapper struct {
	now func() time.Time
}

// NewMapper creates a new mapper instance.
func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// Map validates f. Records without an identifier are skipped; bounties
// without an owner are skipped too.
func (m *Mapper) Map(f File) (*Dataset, error) {
	ds := &Dataset{
		Organizations: make(map[string]domain.Organization),
		Login:         f.Login,
	}
	now := m.now().UTC()

	people := make(map[string]domain.Person)
	for _, p := range f.People {
		p.PubKey = strings.TrimSpace(p.PubKey)
		if p.PubKey == "" {
			continue
		}
		if _, dup := people[p.PubKey]; dup {
			continue
		}
		people[p.PubKey] = p
		ds.People = append(ds.People, p)
	}

	for _, o := range f.Organizations {
		if o.UUID == "" {
			continue
		}
		org := domain.Organization{
			UUID:        o.UUID,
			Name:        o.Name,
			Description: o.Description,
			Website:     o.Website,
			Github:      o.Github,
			OwnerPubKey: o.OwnerPubKey,
		}
		for _, mem := range o.Members {
			if mem.PubKey == "" {
				continue
			}
			person, ok := people[mem.PubKey]
			if !ok {
				person = domain.Person{PubKey: mem.PubKey}
			}
			org.Members = append(org.Members, domain.Member{
				Person:      person,
				Permissions: domain.ParsePermissions(mem.Roles),
			})
		}
		ds.Organizations[org.UUID] = org
	}

	seen := make(map[string]struct{})
	for _, b := range f.Bounties {
		if b.ID == "" || b.OwnerID == "" {
			continue
		}
		if _, dup := seen[b.ID]; dup {
			continue
		}
		seen[b.ID] = struct{}{}

		if b.Lifecycle == "" {
			b.Lifecycle = lifecycleOf(b)
		}
		if b.Amount < 0 {
			b.Amount = 0
		}
		if b.Created.IsZero() {
			b.Created = now
		}
		if b.Updated.IsZero() {
			b.Updated = b.Created
		}
		ds.Bounties = append(ds.Bounties, b)
	}

	if len(ds.Bounties) == 0 && len(ds.People) == 0 {
		return nil, fmt.Errorf("no valid records found in fixture file")
	}

	return ds, nil
}

func lifecycleOf(b domain.Bounty) domain.Lifecycle {
	if b.AssigneeID != "" {
		return domain.LifecycleAssigned
	}
	return domain.LifecycleOpen
}

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/api/apitest"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

func TestPeoplePagination(t *testing.T) {
	f := apitest.New()
	var people []domain.Person
	for i := 1; i <= 25; i++ {
		people = append(people, domain.Person{PubKey: fmt.Sprintf("pk-%02d", i), Alias: fmt.Sprintf("user%02d", i)})
	}
	people[3].Alias = "gopher"
	people[3].CodingLanguages = []string{"Go"}
	f.SetPeople(people...)

	p := NewPeople(f, logger.Nop(), Options{PageSize: 20})
	ctx := context.Background()

	snap, err := p.FetchPage(ctx, api.First(20))
	if err != nil {
		t.Fatalf("FetchPage(1) error = %v", err)
	}
	if len(snap.Items) != 20 || !snap.HasMore || snap.Next.Page != 2 {
		t.Fatalf("page 1: %d items, HasMore=%v, Next=%d", len(snap.Items), snap.HasMore, snap.Next.Page)
	}

	snap, err = p.FetchPage(ctx, snap.Next)
	if err != nil {
		t.Fatalf("FetchPage(2) error = %v", err)
	}
	if len(snap.Items) != 25 || snap.HasMore {
		t.Fatalf("page 2: %d items, HasMore=%v", len(snap.Items), snap.HasMore)
	}

	got := p.Search("gopher")
	if len(got) != 1 || got[0].PubKey != "pk-04" {
		t.Errorf("Search(gopher) = %+v", got)
	}

	if person, ok := p.Lookup("pk-10"); !ok || person.Alias != "user10" {
		t.Errorf("Lookup(pk-10) = %+v, %v", person, ok)
	}

	p.Reset()
	if got := p.Snapshot(); len(got.Items) != 0 || got.HasMore {
		t.Errorf("after Reset: %+v", got)
	}
}

func TestPeoplePut(t *testing.T) {
	p := NewPeople(apitest.New(), logger.Nop(), Options{})
	p.Put(domain.Person{PubKey: "03bb", Alias: "bob"})
	p.Put(domain.Person{Alias: "nobody"})

	if got := p.Snapshot().Items; len(got) != 1 || got[0].Alias != "bob" {
		t.Errorf("Snapshot() = %+v, want only bob", got)
	}
}

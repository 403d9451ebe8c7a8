// Package apitest provides a programmable in-memory api.Client for tests.
package apitest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// Key is the lookup key of one scope page.
func Key(scope domain.Scope, page int) string {
	if page < 1 {
		page = 1
	}
	return scope.String() + "#" + strconv.Itoa(page)
}

// Update is one recorded UpdateBounty call.
type Update struct {
	ID    string
	Patch api.BountyPatch
}

// Fake is a scripted api.Client. Zero values behave sensibly: unknown pages
// are empty, unknown bounties are NotFound, challenges never get signed.
type Fake struct {
	mu sync.Mutex

	pages    map[string]api.Page
	fetchErr map[string]error
	gates    map[string]chan struct{}
	calls    map[string]int

	// Called receives the key of every FetchBounties call, when non-nil.
	Called chan string

	people  []domain.Person
	persons map[string]domain.Person

	bounties map[string]domain.Bounty
	nextID   int
	Updates  []Update
	Deletes  []string

	CreateErr     error
	UpdateErr     error
	DeleteErr     error
	InvalidateErr error
	PollErr       error

	// SignAfter signs a challenge on its n-th poll. Zero never signs.
	SignAfter    int
	PubKey       string
	JWT          string
	ChallengeTTL time.Duration

	issued      int
	polls       map[string]int
	Invalidated []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		pages:    make(map[string]api.Page),
		fetchErr: make(map[string]error),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
		persons:  make(map[string]domain.Person),
		bounties: make(map[string]domain.Bounty),
		polls:    make(map[string]int),
		Called:   make(chan string, 64),
	}
}

// SetPage scripts one page of scope. The bounties also become known to
// UpdateBounty.
func (f *Fake) SetPage(scope domain.Scope, page int, items []domain.RawBountyBundle, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[Key(scope, page)] = api.Page{Items: items, Total: total}
	for _, it := range items {
		if it.Bounty != nil {
			f.bounties[it.Bounty.ID] = it.Bounty.Clone()
		}
	}
}

// FailPage makes every fetch of the page return err. nil clears it.
func (f *Fake) FailPage(scope domain.Scope, page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fetchErr, Key(scope, page))
		return
	}
	f.fetchErr[Key(scope, page)] = err
}

// Block holds fetches of the page until the returned release is called.
func (f *Fake) Block(scope domain.Scope, page int) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[Key(scope, page)] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, Key(scope, page))
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times the page was fetched.
func (f *Fake) Calls(scope domain.Scope, page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[Key(scope, page)]
}

// SetPeople scripts the whole people directory.
func (f *Fake) SetPeople(people ...domain.Person) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.people = people
	for _, p := range people {
		f.persons[p.PubKey] = p
	}
}

// SetBounty makes b known to UpdateBounty without listing it on a page.
func (f *Fake) SetBounty(b domain.Bounty) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounties[b.ID] = b.Clone()
}

// Bounty returns the server copy of id.
func (f *Fake) Bounty(id string) (domain.Bounty, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bounties[id]
	return b, ok
}

// Polls returns how many times token was polled.
func (f *Fake) Polls(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[token]
}

func (f *Fake) FetchBounties(ctx context.Context, scope domain.Scope, cursor api.Cursor) (api.Page, error) {
	key := Key(scope, cursor.Page)

	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	f.mu.Unlock()

	if f.Called != nil {
		select {
		case f.Called <- key:
		default:
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.Page{}, domain.Fail(domain.KindNetwork, "fetch_bounties", "", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[key]; err != nil {
		return api.Page{}, err
	}
	page := f.pages[key]
	items := make([]domain.RawBountyBundle, len(page.Items))
	for i, it := range page.Items {
		items[i] = it.Clone()
	}
	return api.Page{Items: items, Total: page.Total}, nil
}

func (f *Fake) FetchPeople(_ context.Context, cursor api.Cursor) (api.PeoplePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	limit := cursor.Limit
	if limit <= 0 {
		limit = api.DefaultPageSize
	}
	page := cursor.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(f.people) {
		return api.PeoplePage{Items: []domain.Person{}, Total: len(f.people)}, nil
	}
	end := min(start+limit, len(f.people))
	items := make([]domain.Person, 0, end-start)
	for _, p := range f.people[start:end] {
		items = append(items, p.Clone())
	}
	return api.PeoplePage{Items: items, Total: len(f.people)}, nil
}

func (f *Fake) FetchPerson(_ context.Context, pubkey string) (domain.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.persons[pubkey]
	if !ok {
		return domain.Person{}, domain.Failf(domain.KindNotFound, "fetch_person", "unknown person %q", pubkey)
	}
	return p.Clone(), nil
}

func (f *Fake) CreateBounty(_ context.Context, payload domain.Bounty) (domain.Bounty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return domain.Bounty{}, f.CreateErr
	}
	b := payload.Clone()
	if b.ID == "" {
		f.nextID++
		b.ID = fmt.Sprintf("new-%d", f.nextID)
	}
	f.bounties[b.ID] = b.Clone()
	return b, nil
}

func (f *Fake) UpdateBounty(_ context.Context, id string, patch api.BountyPatch) (domain.Bounty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, Update{ID: id, Patch: patch})
	if f.UpdateErr != nil {
		return domain.Bounty{}, f.UpdateErr
	}
	b, ok := f.bounties[id]
	if !ok {
		return domain.Bounty{}, domain.Failf(domain.KindNotFound, "update_bounty", "unknown bounty %q", id)
	}
	b = patch.Apply(b)
	f.bounties[id] = b.Clone()
	return b, nil
}

func (f *Fake) DeleteBounty(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deletes = append(f.Deletes, id)
	delete(f.bounties, id)
	return nil
}

func (f *Fake) IssueChallenge(context.Context) (api.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	ttl := f.ChallengeTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return api.Challenge{Token: "t" + strconv.Itoa(f.issued), ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *Fake) PollChallenge(_ context.Context, token string) (api.ChallengeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[token]++
	if f.PollErr != nil {
		return api.ChallengeStatus{}, f.PollErr
	}
	if f.SignAfter > 0 && f.polls[token] >= f.SignAfter {
		return api.ChallengeStatus{Signed: true, PubKey: f.PubKey, JWT: f.JWT}, nil
	}
	return api.ChallengeStatus{}, nil
}

func (f *Fake) InvalidateSession(_ context.Context, alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invalidated = append(f.Invalidated, alias)
	return f.InvalidateErr
}

var _ api.Client = (*Fake)(nil)

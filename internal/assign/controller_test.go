package assign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/api/apitest"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

var (
	alice = domain.Person{PubKey: "02alice", Alias: "alice"}
	bob   = domain.Person{PubKey: "03bob", Alias: "bob"}
	carol = domain.Person{PubKey: "04carol", Alias: "carol"}
)

// identity is a switchable gate.
type identity struct {
	mu sync.Mutex
	p  domain.Person
}

func (i *identity) Identity() (domain.Person, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.p, i.p.PubKey != ""
}

func (i *identity) set(p domain.Person) {
	i.mu.Lock()
	i.p = p
	i.mu.Unlock()
}

type fixture struct {
	fake  *apitest.Fake
	store *store.Store
	ctrl  *Controller
	who   *identity
}

func setup(t *testing.T, client api.Client, fake *apitest.Fake) fixture {
	t.Helper()
	who := &identity{p: alice}
	st := store.New(client, who, logger.Nop(), store.Options{})
	ppl := store.NewPeople(client, logger.Nop(), store.Options{})
	fake.SetPeople(alice, bob, carol)
	return fixture{fake: fake, store: st, ctrl: New(client, st, ppl, who, logger.Nop()), who: who}
}

func newFixture(t *testing.T) fixture {
	f := apitest.New()
	return setup(t, f, f)
}

func (fx fixture) add(b domain.Bounty, org *domain.Organization) {
	if b.OwnerID == "" {
		b.OwnerID = alice.PubKey
	}
	if b.Lifecycle == "" {
		b.Lifecycle = domain.LifecycleOpen
	}
	fx.fake.SetBounty(b)
	fx.store.Upsert(domain.Global, domain.RawBountyBundle{Bounty: &b, Organization: org})
}

func (fx fixture) assignee(t *testing.T, id string) string {
	t.Helper()
	rec, ok := fx.store.Lookup(id)
	if !ok {
		t.Fatalf("bounty %s not in store", id)
	}
	return rec.Bundle.Bounty.AssigneeID
}

func TestAssignFromTerminalStatesFails(t *testing.T) {
	tests := []struct {
		name   string
		bounty domain.Bounty
		want   State
	}{
		{
			name:   "paid out",
			bounty: domain.Bounty{ID: "b-1", Lifecycle: domain.LifecyclePaid, AssigneeID: bob.PubKey},
			want:   PaidOut,
		},
		{
			name:   "deleted",
			bounty: domain.Bounty{ID: "b-1", Lifecycle: domain.LifecycleDeleted},
			want:   Deleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.add(tt.bounty, nil)

			state, err := fx.ctrl.Assign(context.Background(), "b-1", carol.PubKey)
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("Assign() error = %v, want invalid transition", err)
			}
			if state != tt.want {
				t.Errorf("Assign() state = %v, want %v", state, tt.want)
			}
			if got := fx.assignee(t, "b-1"); got != tt.bounty.AssigneeID {
				t.Errorf("assignee = %q, want unchanged %q", got, tt.bounty.AssigneeID)
			}
			if len(fx.fake.Updates) != 0 {
				t.Error("remote must not be called for an invalid transition")
			}
		})
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	fx := newFixture(t)
	fx.add(domain.Bounty{ID: "b-1", Title: "Fix login", Amount: 500}, nil)
	ctx := context.Background()

	state, err := fx.ctrl.Select(ctx, "b-1", carol.PubKey)
	if err != nil || state != PendingAssignment {
		t.Fatalf("Select() = %v, %v; want pending", state, err)
	}
	aff, err := fx.ctrl.Affordances("b-1")
	if err != nil {
		t.Fatalf("Affordances() error = %v", err)
	}
	if !aff.Assign || !aff.Unassign || aff.Delete || aff.Pending != carol.PubKey {
		t.Errorf("pending affordances = %+v", aff)
	}

	state, err = fx.ctrl.Assign(ctx, "b-1", carol.PubKey)
	if err != nil || state != Assigned {
		t.Fatalf("Assign() = %v, %v; want assigned", state, err)
	}
	vm := fx.store.Snapshot(domain.Global).Items[0]
	if vm.Body.Assignee.String() != "carol" {
		t.Errorf("assignee = %q, want carol", vm.Body.Assignee.String())
	}

	// Reassign
	if state, err = fx.ctrl.Assign(ctx, "b-1", bob.PubKey); err != nil || state != Assigned {
		t.Fatalf("reassign = %v, %v", state, err)
	}
	if got := fx.assignee(t, "b-1"); got != bob.PubKey {
		t.Errorf("assignee = %q, want bob", got)
	}

	state, err = fx.ctrl.Unassign(ctx, "b-1")
	if err != nil || state != Unassigned {
		t.Fatalf("Unassign() = %v, %v; want unassigned", state, err)
	}
	vm = fx.store.Snapshot(domain.Global).Items[0]
	if vm.Body.Assignee.Assigned() {
		t.Errorf("assignee still set: %+v", vm.Body.Assignee)
	}
	if got, _ := fx.ctrl.State("b-1"); got != Unassigned {
		t.Errorf("State() = %v, want unassigned", got)
	}
}

func TestUnassignPendingIsLocal(t *testing.T) {
	fx := newFixture(t)
	fx.add(domain.Bounty{ID: "b-1"}, nil)
	ctx := context.Background()

	if _, err := fx.ctrl.Unassign(ctx, "b-1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Unassign() from unassigned error = %v, want invalid transition", err)
	}

	if _, err := fx.ctrl.Select(ctx, "b-1", carol.PubKey); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	state, err := fx.ctrl.Unassign(ctx, "b-1")
	if err != nil || state != Unassigned {
		t.Fatalf("Unassign() = %v, %v", state, err)
	}
	if len(fx.fake.Updates) != 0 {
		t.Error("dropping a selection must not call the remote")
	}
}

func TestGuards(t *testing.T) {
	manager := domain.Person{PubKey: "05mgr", Alias: "mgr"}
	org := &domain.Organization{
		UUID:        "org-1",
		OwnerPubKey: "06boss",
		Members: []domain.Member{
			{Person: manager, Permissions: domain.PermManageBounties},
			{Person: bob, Permissions: domain.PermFund},
		},
	}

	tests := []struct {
		name    string
		who     domain.Person
		wantErr error
	}{
		{name: "owner", who: alice},
		{name: "manager", who: manager},
		{name: "member without permission", who: bob, wantErr: domain.ErrInvalidTransition},
		{name: "stranger", who: carol, wantErr: domain.ErrInvalidTransition},
		{name: "signed out", who: domain.Person{}, wantErr: domain.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.add(domain.Bounty{ID: "b-1", OrgUUID: org.UUID}, org)
			fx.who.set(tt.who)

			_, err := fx.ctrl.Select(context.Background(), "b-1", carol.PubKey)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Select() error = %v, want %v", err, tt.wantErr)
			}

			aff, _ := fx.ctrl.Affordances("b-1")
			if got := aff.Select; got != (tt.wantErr == nil) {
				t.Errorf("Affordances().Select = %v", got)
			}
		})
	}
}

func TestDeleteOnlyFromUnassigned(t *testing.T) {
	fx := newFixture(t)
	fx.add(domain.Bounty{ID: "b-1"}, nil)
	fx.add(domain.Bounty{ID: "b-2", AssigneeID: bob.PubKey, Lifecycle: domain.LifecycleAssigned}, nil)
	ctx := context.Background()

	if _, err := fx.ctrl.Delete(ctx, "b-2"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Delete(assigned) error = %v, want invalid transition", err)
	}

	state, err := fx.ctrl.Delete(ctx, "b-1")
	if err != nil || state != Deleted {
		t.Fatalf("Delete() = %v, %v", state, err)
	}
	items := fx.store.Snapshot(domain.Global).Items
	if len(items) != 1 || items[0].ID() != "b-2" {
		t.Errorf("snapshot after delete = %d items", len(items))
	}
	if got, _ := fx.ctrl.State("b-1"); got != Deleted {
		t.Errorf("State() = %v, want deleted", got)
	}
}

func TestConfirmPayment(t *testing.T) {
	fx := newFixture(t)
	fx.add(domain.Bounty{ID: "b-1", Amount: 100}, nil)
	fx.add(domain.Bounty{ID: "b-2", Amount: 200, AssigneeID: bob.PubKey, Lifecycle: domain.LifecycleAssigned}, nil)
	ctx := context.Background()

	if _, err := fx.ctrl.ConfirmPayment(ctx, PaymentConfirmed{BountyID: "b-1"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("ConfirmPayment(unassigned) error = %v, want invalid transition", err)
	}

	events := make(chan PaymentConfirmed, 1)
	events <- PaymentConfirmed{BountyID: "b-2", Amount: 200, At: time.Now()}
	close(events)
	fx.ctrl.ConsumePayments(ctx, events)

	if got, _ := fx.ctrl.State("b-2"); got != PaidOut {
		t.Fatalf("State() = %v, want paid out", got)
	}
	if _, err := fx.ctrl.Unassign(ctx, "b-2"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Unassign(paid) error = %v, want invalid transition", err)
	}
	if aff, _ := fx.ctrl.Affordances("b-2"); aff.Assign || aff.Reassign || aff.Unassign || aff.Delete {
		t.Errorf("paid out affordances = %+v, want none", aff)
	}
}

func TestUnknownBountyRefreshesScopes(t *testing.T) {
	fx := newFixture(t)
	fx.fake.SetPage(domain.Global, 1, nil, 0)
	if _, err := fx.store.FetchPage(context.Background(), domain.Global, api.First(20)); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	_, err := fx.ctrl.Assign(context.Background(), "ghost", carol.PubKey)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Assign() error = %v, want not found", err)
	}
	select {
	case scope := <-fx.store.Refreshes():
		if scope != domain.Global {
			t.Errorf("refresh scope = %v, want global", scope)
		}
	default:
		t.Error("no refresh requested")
	}
}

func TestRemoteFailureLeavesStoreUntouched(t *testing.T) {
	fx := newFixture(t)
	fx.add(domain.Bounty{ID: "b-1"}, nil)
	fx.fake.UpdateErr = domain.Failf(domain.KindNetwork, "update_bounty", "offline")

	state, err := fx.ctrl.Assign(context.Background(), "b-1", carol.PubKey)
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("Assign() error = %v, want network failure", err)
	}
	if state != Unassigned || fx.assignee(t, "b-1") != "" {
		t.Errorf("failed assign changed state: %v, assignee %q", state, fx.assignee(t, "b-1"))
	}
}

// slowClient blocks UpdateBounty until released.
type slowClient struct {
	*apitest.Fake
	entered chan struct{}
	release chan struct{}
}

func (c *slowClient) UpdateBounty(ctx context.Context, id string, patch api.BountyPatch) (domain.Bounty, error) {
	c.entered <- struct{}{}
	<-c.release
	return c.Fake.UpdateBounty(ctx, id, patch)
}

func TestConcurrentTransitionRejected(t *testing.T) {
	fake := apitest.New()
	slow := &slowClient{Fake: fake, entered: make(chan struct{}, 1), release: make(chan struct{})}
	fx := setup(t, slow, fake)
	fx.add(domain.Bounty{ID: "b-1"}, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := fx.ctrl.Assign(ctx, "b-1", carol.PubKey)
		done <- err
	}()
	<-slow.entered

	if _, err := fx.ctrl.Assign(ctx, "b-1", bob.PubKey); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("concurrent Assign() error = %v, want invalid transition", err)
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatalf("first Assign() error = %v", err)
	}
	if got := fx.assignee(t, "b-1"); got != carol.PubKey {
		t.Errorf("assignee = %q, want carol", got)
	}
}

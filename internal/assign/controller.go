package assign

import (
	"context"
	"errors"
	"sync"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

// Controller applies assignment transitions through the store.
type Controller struct {
	client api.Client
	store  *store.Store
	people *store.People
	gate   domain.Gate
	logger logger.Logger

	mu       sync.Mutex
	pending  map[string]string // bounty id -> selected candidate
	inflight map[string]struct{}
}

// New builds a Controller. people may be nil; assignee records are then
// fetched on demand.
func New(client api.Client, st *store.Store, people *store.People, gate domain.Gate, log logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		client:   client,
		store:    st,
		people:   people,
		gate:     gate,
		logger:   log.Component("assign"),
		pending:  make(map[string]string),
		inflight: make(map[string]struct{}),
	}
}

// State returns the current state of bountyID.
func (c *Controller) State(bountyID string) (State, error) {
	rec, err := c.lookup(bountyID, "state")
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return stateOf(rec, c.pending[bountyID]), nil
}

// Affordances returns what the current identity may do with bountyID.
func (c *Controller) Affordances(bountyID string) (Affordances, error) {
	rec, err := c.lookup(bountyID, "affordances")
	if err != nil {
		return Affordances{}, err
	}
	me, ok := domain.Person{}, false
	if c.gate != nil {
		me, ok = c.gate.Identity()
	}

	c.mu.Lock()
	pending := c.pending[bountyID]
	c.mu.Unlock()

	return affordancesFor(stateOf(rec, pending), ok && domain.CanManage(me, rec.Bundle), pending), nil
}

// Select marks candidateID as the pending assignee. It is local until
// Assign confirms it remotely.
func (c *Controller) Select(_ context.Context, bountyID, candidateID string) (State, error) {
	const op = "select"
	if candidateID == "" {
		return 0, domain.Failf(domain.KindInvalidTransition, op, "no candidate")
	}
	_, state, release, err := c.begin(bountyID, op, Unassigned, PendingAssignment)
	if err != nil {
		return state, err
	}
	defer release()

	c.mu.Lock()
	c.pending[bountyID] = candidateID
	c.mu.Unlock()

	c.done(op, bountyID, state, PendingAssignment)
	return PendingAssignment, nil
}

// Assign sets personID as the assignee after remote confirmation. It is
// valid from Unassigned, PendingAssignment, and Assigned (reassign).
func (c *Controller) Assign(ctx context.Context, bountyID, personID string) (State, error) {
	const op = "assign"
	if personID == "" {
		return 0, domain.Failf(domain.KindInvalidTransition, op, "no assignee")
	}
	rec, state, release, err := c.begin(bountyID, op, Unassigned, PendingAssignment, Assigned)
	if err != nil {
		return state, err
	}
	defer release()

	updated, err := c.client.UpdateBounty(ctx, bountyID, api.BountyPatch{
		AssigneeID: api.Ptr(personID),
		Lifecycle:  api.Ptr(domain.LifecycleAssigned),
	})
	if err != nil {
		return state, c.remoteFailed(op, rec, err)
	}

	raw := rec.Bundle
	raw.Bounty = &updated
	raw.Assignee = c.person(ctx, personID)
	c.store.UpsertAll(raw)

	c.mu.Lock()
	delete(c.pending, bountyID)
	c.mu.Unlock()

	c.done(op, bountyID, state, Assigned)
	return Assigned, nil
}

// Unassign clears the assignee. A pending selection is dropped locally;
// a confirmed assignee is cleared remotely first.
func (c *Controller) Unassign(ctx context.Context, bountyID string) (State, error) {
	const op = "unassign"
	rec, state, release, err := c.begin(bountyID, op, PendingAssignment, Assigned)
	if err != nil {
		return state, err
	}
	defer release()

	if state == PendingAssignment {
		c.mu.Lock()
		delete(c.pending, bountyID)
		c.mu.Unlock()
		c.done(op, bountyID, state, Unassigned)
		return Unassigned, nil
	}

	updated, err := c.client.UpdateBounty(ctx, bountyID, api.BountyPatch{
		AssigneeID: api.Ptr(""),
		Lifecycle:  api.Ptr(domain.LifecycleOpen),
	})
	if err != nil {
		return state, c.remoteFailed(op, rec, err)
	}

	raw := rec.Bundle
	raw.Bounty = &updated
	raw.Assignee = nil
	c.store.UpsertAll(raw)

	c.done(op, bountyID, state, Unassigned)
	return Unassigned, nil
}

// Delete removes an unassigned bounty.
func (c *Controller) Delete(ctx context.Context, bountyID string) (State, error) {
	const op = "delete"
	rec, state, release, err := c.begin(bountyID, op, Unassigned)
	if err != nil {
		return state, err
	}
	defer release()

	if err := c.store.Delete(ctx, bountyID); err != nil {
		return state, c.remoteFailed(op, rec, err)
	}
	c.done(op, bountyID, state, Deleted)
	return Deleted, nil
}

// ConfirmPayment moves an assigned bounty to PaidOut. Only the settlement
// collaborator calls it, so no identity is required.
func (c *Controller) ConfirmPayment(_ context.Context, ev PaymentConfirmed) (State, error) {
	const op = "confirm_payment"
	rec, err := c.lookup(ev.BountyID, op)
	if err != nil {
		metrics.Transitions.WithLabelValues(op, outcome(err)).Inc()
		return 0, err
	}

	c.mu.Lock()
	state := stateOf(rec, c.pending[ev.BountyID])
	if state != Assigned {
		c.mu.Unlock()
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return state, domain.Failf(domain.KindInvalidTransition, op, "cannot pay out a bounty in state %s", state)
	}
	if _, busy := c.inflight[ev.BountyID]; busy {
		c.mu.Unlock()
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return state, domain.Failf(domain.KindInvalidTransition, op, "transition already in progress")
	}
	c.mu.Unlock()

	raw := rec.Bundle
	paid := raw.Bounty.Clone()
	paid.Lifecycle = domain.LifecyclePaid
	raw.Bounty = &paid
	c.store.UpsertAll(raw)

	if ev.Amount > 0 && ev.Amount != paid.Amount {
		c.logger.Warn("payment amount differs from bounty price",
			logger.String("bounty_id", ev.BountyID),
			logger.Int64("paid", ev.Amount),
			logger.Int64("price", paid.Amount))
	}
	c.done(op, ev.BountyID, state, PaidOut)
	return PaidOut, nil
}

// ConsumePayments applies payment events until ctx ends or events closes.
func (c *Controller) ConsumePayments(ctx context.Context, events <-chan PaymentConfirmed) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := c.ConfirmPayment(ctx, ev); err != nil {
				c.logger.Warn("payment not applied", logger.String("bounty_id", ev.BountyID), logger.Error(err))
			}
		}
	}
}

// Forget drops every pending selection, ex: on logout.
func (c *Controller) Forget() {
	c.mu.Lock()
	c.pending = make(map[string]string)
	c.mu.Unlock()
}

// begin checks identity, existence, guard, and source state, then claims
// the bounty for one transition. release must be called when done.
func (c *Controller) begin(bountyID, op string, from ...State) (store.Record, State, func(), error) {
	me, err := domain.RequireIdentity(c.gate, op)
	if err != nil {
		metrics.Transitions.WithLabelValues(op, outcome(err)).Inc()
		return store.Record{}, 0, nil, err
	}
	rec, err := c.lookup(bountyID, op)
	if err != nil {
		metrics.Transitions.WithLabelValues(op, outcome(err)).Inc()
		return store.Record{}, 0, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state := stateOf(rec, c.pending[bountyID])
	reject := func(format string, args ...any) (store.Record, State, func(), error) {
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		c.logger.Debug("transition rejected",
			logger.String("op", op),
			logger.String("bounty_id", bountyID),
			logger.String("state", state.String()))
		return store.Record{}, state, nil, domain.Failf(domain.KindInvalidTransition, op, format, args...)
	}

	if !domain.CanManage(me, rec.Bundle) {
		return reject("only the owner or a manager may %s", op)
	}
	allowed := false
	for _, s := range from {
		if s == state {
			allowed = true
			break
		}
	}
	if !allowed {
		return reject("cannot %s a bounty in state %s", op, state)
	}
	if _, busy := c.inflight[bountyID]; busy {
		return reject("transition already in progress")
	}
	c.inflight[bountyID] = struct{}{}

	release := func() {
		c.mu.Lock()
		delete(c.inflight, bountyID)
		c.mu.Unlock()
	}
	return rec, state, release, nil
}

// lookup finds bountyID in the store. A miss asks every loaded scope for a
// silent refresh.
func (c *Controller) lookup(bountyID, op string) (store.Record, error) {
	rec, ok := c.store.Lookup(bountyID)
	if ok && rec.Bundle.Bounty != nil {
		return rec, nil
	}
	for _, scope := range c.store.Scopes() {
		c.store.Refresh(scope)
	}
	return store.Record{}, domain.Failf(domain.KindNotFound, op, "bounty %q is not loaded", bountyID)
}

func (c *Controller) remoteFailed(op string, rec store.Record, err error) error {
	metrics.Transitions.WithLabelValues(op, outcome(err)).Inc()
	if errors.Is(err, domain.ErrNotFound) {
		for _, scope := range rec.Scopes {
			c.store.Refresh(scope)
		}
	}
	c.logger.Warn("transition failed",
		logger.String("op", op),
		logger.String("bounty_id", rec.Bundle.ID()),
		logger.Error(err))
	return err
}

func (c *Controller) done(op, bountyID string, from, to State) {
	metrics.Transitions.WithLabelValues(op, "ok").Inc()
	c.logger.Info("transition applied",
		logger.String("op", op),
		logger.String("bounty_id", bountyID),
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

// person resolves an assignee record, best effort.
func (c *Controller) person(ctx context.Context, pubkey string) *domain.Person {
	if c.people != nil {
		if p, ok := c.people.Lookup(pubkey); ok {
			return &p
		}
	}
	p, err := c.client.FetchPerson(ctx, pubkey)
	if err != nil {
		c.logger.Debug("assignee record unavailable", logger.String("pubkey", pubkey), logger.Error(err))
		return nil
	}
	if c.people != nil {
		c.people.Put(p)
	}
	return &p
}

func outcome(err error) string {
	if k := domain.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}

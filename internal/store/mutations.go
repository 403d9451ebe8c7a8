package store

import (
	"context"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

// Create posts a new bounty owned by the current identity and upserts the
// server copy into scopes. Without explicit scopes it lands in the loaded
// global, owner profile, and owning workspace scopes.
func (s *Store) Create(ctx context.Context, payload domain.Bounty, scopes ...domain.Scope) (domain.ViewModel, error) {
	me, err := domain.RequireIdentity(s.gate, "create_bounty")
	if err != nil {
		return domain.ViewModel{}, err
	}
	if payload.OwnerID == "" {
		payload.OwnerID = me.PubKey
	}
	if payload.Lifecycle == "" {
		payload.Lifecycle = domain.LifecycleOpen
	}

	created, err := s.client.CreateBounty(ctx, payload)
	if err != nil {
		return domain.ViewModel{}, err
	}
	if created.ID == "" {
		return domain.ViewModel{}, domain.Failf(domain.KindNetwork, "create_bounty", "server returned a bounty without id")
	}

	raw := domain.RawBountyBundle{Bounty: &created}
	if created.OwnerID == me.PubKey {
		owner := me.Clone()
		raw.Owner = &owner
	}

	if len(scopes) == 0 {
		scopes = s.defaultScopes(created)
	}
	for _, scope := range scopes {
		s.Upsert(scope, raw)
	}

	s.logger.Info("bounty created",
		logger.String("id", created.ID),
		logger.Int("scopes", len(scopes)))
	return domain.Normalize(raw), nil
}

func (s *Store) defaultScopes(b domain.Bounty) []domain.Scope {
	candidates := []domain.Scope{domain.Global, domain.ProfileScope(b.OwnerID)}
	if b.OrgUUID != "" {
		candidates = append(candidates, domain.WorkspaceScope(b.OrgUUID), domain.OrganizationScope(b.OrgUUID))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Scope
	for _, scope := range candidates {
		if seq, ok := s.scopes[scope]; ok && seq.loaded {
			out = append(out, scope)
		}
	}
	return out
}

// Update applies patch remotely and merges the server copy into every
// scope holding the bounty. Related records already held are kept.
//
// Only the owner or a manager may edit, and only a bounty that is still
// live. The assignee and the lifecycle belong to the assignment controller;
// a patch touching either is refused.
func (s *Store) Update(ctx context.Context, id string, patch api.BountyPatch) (domain.ViewModel, error) {
	const op = "update_bounty"
	me, err := domain.RequireIdentity(s.gate, op)
	if err != nil {
		return domain.ViewModel{}, err
	}
	if patch.TouchesAssignment() {
		return domain.ViewModel{}, domain.Failf(domain.KindInvalidTransition, op, "assignee and status change only through assignment")
	}
	rec, ok := s.Lookup(id)
	if !ok {
		return domain.ViewModel{}, domain.Failf(domain.KindNotFound, op, "bounty %s is not loaded", id)
	}
	if !domain.CanManage(me, rec.Bundle) {
		return domain.ViewModel{}, domain.Failf(domain.KindInvalidTransition, op, "only the owner or a manager may edit")
	}
	if lc := rec.Bundle.Bounty.Lifecycle; rec.Deleted || lc == domain.LifecyclePaid || lc == domain.LifecycleDeleted {
		return domain.ViewModel{}, domain.Failf(domain.KindInvalidTransition, op, "cannot edit a bounty that is %s", lc)
	}

	updated, err := s.client.UpdateBounty(ctx, id, patch)
	if err != nil {
		return domain.ViewModel{}, err
	}
	if updated.ID == "" {
		updated.ID = id
	}

	raw := rec.Bundle
	raw.Bounty = &updated
	s.UpsertAll(raw)
	return domain.Normalize(raw), nil
}

// Delete soft-deletes id in every scope first, then asks the server. The
// records come back if the server refuses; on success they stay hidden and
// are marked confirmed for eviction.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := domain.RequireIdentity(s.gate, "delete_bounty"); err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	var touched []Event
	for scope, seq := range s.scopes {
		ok := seq.update(id, func(e entry) entry {
			e.deletedAt, e.confirmed = now, false
			return e
		})
		if ok {
			touched = append(touched, Event{Scope: scope, Version: seq.version})
		}
	}
	s.mu.Unlock()
	scopes := s.publishAll(touched)

	if err := s.client.DeleteBounty(ctx, id); err != nil {
		for _, scope := range scopes {
			s.Restore(scope, id)
		}
		s.logger.Warn("delete rolled back", logger.String("id", id), logger.Error(err))
		return err
	}

	for _, scope := range scopes {
		s.updateEntry(scope, id, func(e entry) entry {
			e.confirmed = true
			return e
		})
	}
	s.logger.Info("bounty deleted", logger.String("id", id), logger.Int("scopes", len(scopes)))
	return nil
}

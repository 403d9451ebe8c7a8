// Package store keeps the per-scope bounty collections of the client core.
//
// Each scope owns one paginated sequence. Fetches are deduplicated per
// scope and page, applied in cursor order, and discarded when a reset or a
// newer restart superseded them. Readers only ever get normalized copies.
package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
	"github.com/MrSnakeDoc/bountyboard/internal/utils"
)

// Options tunes a Store.
type Options struct {
	PageSize     int
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Event signals one atomic mutation of a scope. Consumers pull a fresh
// Snapshot; the event itself carries no data.
type Event struct {
	Scope   domain.Scope `json:"scope"`
	Version uint64       `json:"version"`
}

// Snapshot is an immutable, normalized view of one scope.
type Snapshot struct {
	Scope   domain.Scope
	Items   []domain.ViewModel
	Total   int
	Next    api.Cursor
	HasMore bool
	Loaded  bool
	Version uint64
	Err     error
}

// Record is a raw bounty as held by the store.
type Record struct {
	Bundle  domain.RawBountyBundle
	Scopes  []domain.Scope
	Deleted bool
}

// DeletedRef identifies a soft-deleted record.
type DeletedRef struct {
	Scope     domain.Scope
	ID        string
	DeletedAt time.Time
	Confirmed bool
}

// entry is a stored bundle plus its soft-delete state.
type entry struct {
	bundle    domain.RawBountyBundle
	deletedAt time.Time
	confirmed bool
}

func (e entry) deleted() bool { return !e.deletedAt.IsZero() }

func entryKey(e entry) string { return e.bundle.ID() }

// mergeEntry carries a pending local deletion over a server copy that does
// not know about it yet. A record deleted on both sides keeps the time it
// was first seen deleted, so refetches do not postpone its eviction.
func mergeEntry(old, incoming entry) entry {
	switch {
	case old.deleted() && !incoming.deleted():
		incoming.deletedAt = old.deletedAt
		incoming.confirmed = old.confirmed
	case old.deleted() && incoming.deleted():
		incoming.deletedAt = old.deletedAt
		incoming.confirmed = old.confirmed || incoming.confirmed
	}
	return incoming
}

// Store holds every bounty collection.
type Store struct {
	client api.Client
	gate   domain.Gate
	logger logger.Logger

	pageSize     int
	fetchTimeout time.Duration
	now          func() time.Time

	mu     sync.RWMutex
	scopes map[domain.Scope]*sequence[entry]
	epochs atomic.Uint64

	group   singleflight.Group
	events  *utils.Broadcaster[Event]
	refresh chan domain.Scope
}

// New builds a Store over client. gate authorizes every write.
func New(client api.Client, gate domain.Gate, log logger.Logger, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = api.DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		client:       client,
		gate:         gate,
		logger:       log.Component("store"),
		pageSize:     opts.PageSize,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		scopes:       make(map[domain.Scope]*sequence[entry]),
		events:       utils.NewBroadcaster[Event](64),
		refresh:      make(chan domain.Scope, 16),
	}
}

// PageSize returns the default page length.
func (s *Store) PageSize() int { return s.pageSize }

func mustScope(scope domain.Scope) {
	if err := scope.Validate(); err != nil {
		panic(fmt.Sprintf("store: %v", err))
	}
}

// sequenceLocked returns the sequence of scope, creating it. Caller holds mu.
func (s *Store) sequenceLocked(scope domain.Scope) *sequence[entry] {
	seq, ok := s.scopes[scope]
	if !ok {
		seq = newSequence(entryKey, mergeEntry)
		s.scopes[scope] = seq
	}
	return seq
}

func (s *Store) publish(scope domain.Scope, version uint64) {
	s.events.Publish(Event{Scope: scope, Version: version})
}

// FetchPage fetches one page of scope and returns the resulting snapshot.
//
// A cursor with Page <= 1 restarts the sequence; its records are replaced
// atomically when the page lands. Identical concurrent calls share one
// request. A response superseded by a reset or a newer restart is dropped
// and the current snapshot is returned without error.
func (s *Store) FetchPage(ctx context.Context, scope domain.Scope, cursor api.Cursor) (Snapshot, error) {
	mustScope(scope)
	if cursor.Page < 1 {
		cursor.Page = 1
	}
	if cursor.Limit <= 0 {
		cursor.Limit = s.pageSize
	}

	key := scope.String() + "#" + strconv.Itoa(cursor.Page)
	kind := string(scope.Kind)

	s.mu.Lock()
	seq := s.sequenceLocked(scope)
	s.mu.Unlock()

	ch := s.group.DoChan(key, func() (any, error) {
		out := runFetch(&s.mu, seq, &s.epochs, cursor, s.fetchTimeout, func(ctx context.Context) ([]entry, int, error) {
			page, err := s.client.FetchBounties(ctx, scope, cursor)
			if err != nil {
				return nil, 0, err
			}
			return s.entries(scope, page.Items), page.Total, nil
		})

		switch {
		case out.stale:
			metrics.StalePages.WithLabelValues(kind).Inc()
			s.logger.Debug("discarding stale page", logger.String("scope", scope.String()), logger.Int("page", cursor.Page))
			return nil, nil
		case out.err != nil:
			metrics.Fetches.WithLabelValues(kind, "error").Inc()
			s.logger.Warn("fetch failed",
				logger.String("scope", scope.String()),
				logger.Int("page", cursor.Page),
				logger.Error(out.err))
			s.publish(scope, out.version)
			return nil, out.err
		}

		metrics.Fetches.WithLabelValues(kind, "ok").Inc()
		if out.applied {
			s.publish(scope, out.version)
		} else {
			s.logger.Debug("buffering early page", logger.String("scope", scope.String()), logger.Int("page", cursor.Page))
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.DedupedFetches.WithLabelValues(kind).Inc()
			s.logger.Debug("shared in-flight fetch", logger.String("scope", scope.String()), logger.Int("page", cursor.Page))
		}
		return s.Snapshot(scope), res.Err
	}
}

// FetchNext fetches the page following the current snapshot of scope.
func (s *Store) FetchNext(ctx context.Context, scope domain.Scope) (Snapshot, error) {
	return s.FetchPage(ctx, scope, s.Snapshot(scope).Next)
}

func (s *Store) entries(scope domain.Scope, items []domain.RawBountyBundle) []entry {
	out := make([]entry, 0, len(items))
	for _, raw := range items {
		if raw.ID() == "" {
			s.logger.Warn("skipping bundle without bounty id", logger.String("scope", scope.String()))
			continue
		}
		out = append(out, s.newEntry(raw))
	}
	return out
}

func (s *Store) newEntry(raw domain.RawBountyBundle) entry {
	e := entry{bundle: raw.Clone()}
	if raw.Bounty.Deleted() {
		e.deletedAt = s.now()
		e.confirmed = true
	}
	return e
}

// Snapshot returns the current view of scope. Soft-deleted records are
// left out.
func (s *Store) Snapshot(scope domain.Scope) Snapshot {
	mustScope(scope)

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Scope: scope,
		Items: []domain.ViewModel{},
		Next:  api.First(s.pageSize),
	}
	seq, ok := s.scopes[scope]
	if !ok {
		return snap
	}

	for _, e := range seq.records {
		if e.deleted() {
			continue
		}
		snap.Items = append(snap.Items, domain.Normalize(e.bundle))
	}
	snap.Total = seq.total
	snap.Loaded = seq.loaded
	snap.Version = seq.version
	snap.Err = seq.err
	snap.HasMore = seq.loaded && len(seq.records) < seq.total
	if seq.loaded {
		snap.Next = api.Cursor{Page: seq.nextPage, Limit: s.pageSize}
	}
	return snap
}

// Upsert replaces the record with the same id in scope, or appends it. A
// bundle whose lifecycle is deleted is hidden from the next snapshot.
func (s *Store) Upsert(scope domain.Scope, raw domain.RawBountyBundle) {
	mustScope(scope)
	if raw.ID() == "" {
		s.logger.Warn("ignoring upsert without bounty id", logger.String("scope", scope.String()))
		return
	}

	s.mu.Lock()
	seq := s.sequenceLocked(scope)
	seq.upsert(s.newEntry(raw))
	v := seq.version
	s.mu.Unlock()

	s.publish(scope, v)
}

// UpsertAll applies raw to every scope holding its id and returns them.
func (s *Store) UpsertAll(raw domain.RawBountyBundle) []domain.Scope {
	id := raw.ID()
	if id == "" {
		return nil
	}

	s.mu.Lock()
	var touched []Event
	for scope, seq := range s.scopes {
		if _, ok := seq.get(id); !ok {
			continue
		}
		seq.upsert(s.newEntry(raw))
		touched = append(touched, Event{Scope: scope, Version: seq.version})
	}
	s.mu.Unlock()

	return s.publishAll(touched)
}

// Restore undoes a soft delete of id in scope.
func (s *Store) Restore(scope domain.Scope, id string) bool {
	return s.updateEntry(scope, id, func(e entry) entry {
		e.deletedAt, e.confirmed = time.Time{}, false
		if e.bundle.Bounty.Deleted() {
			b := e.bundle.Bounty.Clone()
			b.Lifecycle = domain.LifecycleOpen
			e.bundle.Bounty = &b
		}
		return e
	})
}

// Evict physically removes id from scope.
func (s *Store) Evict(scope domain.Scope, id string) bool {
	mustScope(scope)

	s.mu.Lock()
	seq, ok := s.scopes[scope]
	removed := ok && seq.remove(id)
	var v uint64
	if removed {
		v = seq.version
	}
	s.mu.Unlock()

	if removed {
		s.publish(scope, v)
	}
	return removed
}

// Reset clears scope. Fetches in flight for it are discarded on arrival.
func (s *Store) Reset(scope domain.Scope) {
	mustScope(scope)

	s.mu.Lock()
	seq := s.sequenceLocked(scope)
	seq.reset(s.epochs.Add(1))
	v := seq.version
	s.mu.Unlock()

	s.logger.Debug("scope reset", logger.String("scope", scope.String()))
	s.publish(scope, v)
}

// ResetAll clears every scope.
func (s *Store) ResetAll() {
	s.mu.Lock()
	touched := make([]Event, 0, len(s.scopes))
	for scope, seq := range s.scopes {
		seq.reset(s.epochs.Add(1))
		touched = append(touched, Event{Scope: scope, Version: seq.version})
	}
	s.mu.Unlock()

	s.logger.Info("all scopes reset", logger.Int("scopes", len(touched)))
	s.publishAll(touched)
}

// Lookup returns a copy of the raw record id and the scopes holding it.
func (s *Store) Lookup(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	found := false
	for _, scope := range s.sortedScopesLocked() {
		e, ok := s.scopes[scope].get(id)
		if !ok {
			continue
		}
		if !found {
			rec.Bundle = e.bundle.Clone()
			rec.Deleted = e.deleted()
			found = true
		}
		rec.Scopes = append(rec.Scopes, scope)
	}
	return rec, found
}

// Scopes returns every scope that has been loaded at least once.
func (s *Store) Scopes() []domain.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Scope
	for _, scope := range s.sortedScopesLocked() {
		if s.scopes[scope].loaded {
			out = append(out, scope)
		}
	}
	return out
}

// Deleted lists every soft-deleted record.
func (s *Store) Deleted() []DeletedRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DeletedRef
	for _, scope := range s.sortedScopesLocked() {
		for _, e := range s.scopes[scope].records {
			if e.deleted() {
				out = append(out, DeletedRef{Scope: scope, ID: e.bundle.ID(), DeletedAt: e.deletedAt, Confirmed: e.confirmed})
			}
		}
	}
	return out
}

// Refresh asks for a silent first-page refresh of scope. It never blocks;
// a request is dropped when the queue is full.
func (s *Store) Refresh(scope domain.Scope) {
	mustScope(scope)
	select {
	case s.refresh <- scope:
	default:
		s.logger.Debug("refresh queue full", logger.String("scope", scope.String()))
	}
}

// Refreshes delivers the scopes passed to Refresh.
func (s *Store) Refreshes() <-chan domain.Scope { return s.refresh }

// Subscribe returns a channel of mutation events, closed when ctx ends.
// Slow subscribers miss events.
func (s *Store) Subscribe(ctx context.Context) <-chan Event {
	return s.events.Subscribe(ctx)
}

func (s *Store) updateEntry(scope domain.Scope, id string, fn func(entry) entry) bool {
	mustScope(scope)

	s.mu.Lock()
	seq, ok := s.scopes[scope]
	updated := ok && seq.update(id, fn)
	var v uint64
	if updated {
		v = seq.version
	}
	s.mu.Unlock()

	if updated {
		s.publish(scope, v)
	}
	return updated
}

func (s *Store) sortedScopesLocked() []domain.Scope {
	out := make([]domain.Scope, 0, len(s.scopes))
	for scope := range s.scopes {
		out = append(out, scope)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (s *Store) publishAll(events []Event) []domain.Scope {
	sort.Slice(events, func(i, j int) bool { return events[i].Scope.String() < events[j].Scope.String() })
	scopes := make([]domain.Scope, 0, len(events))
	for _, ev := range events {
		s.events.Publish(ev)
		scopes = append(scopes, ev.Scope)
	}
	return scopes
}

package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
	"github.com/MrSnakeDoc/bountyboard/internal/search"
)

// PeopleSnapshot is an immutable view of the people directory.
type PeopleSnapshot struct {
	Items   []domain.Person
	Total   int
	Next    api.Cursor
	HasMore bool
	Version uint64
	Err     error
}

// People is the paginated people directory. It follows the same ordering,
// dedup, and staleness rules as the bounty scopes.
type People struct {
	client       api.Client
	logger       logger.Logger
	pageSize     int
	fetchTimeout time.Duration

	mu     sync.RWMutex
	seq    *sequence[domain.Person]
	epochs atomic.Uint64
	group  singleflight.Group
}

// NewPeople builds an empty directory.
func NewPeople(client api.Client, log logger.Logger, opts Options) *People {
	if opts.PageSize <= 0 {
		opts.PageSize = api.DefaultPageSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &People{
		client:       client,
		logger:       log.Component("people"),
		pageSize:     opts.PageSize,
		fetchTimeout: opts.FetchTimeout,
		seq:          newSequence(func(p domain.Person) string { return p.PubKey }, nil),
	}
}

// FetchPage fetches one directory page.
func (p *People) FetchPage(ctx context.Context, cursor api.Cursor) (PeopleSnapshot, error) {
	if cursor.Page < 1 {
		cursor.Page = 1
	}
	if cursor.Limit <= 0 {
		cursor.Limit = p.pageSize
	}

	ch := p.group.DoChan(strconv.Itoa(cursor.Page), func() (any, error) {
		out := runFetch(&p.mu, p.seq, &p.epochs, cursor, p.fetchTimeout, func(ctx context.Context) ([]domain.Person, int, error) {
			page, err := p.client.FetchPeople(ctx, cursor)
			if err != nil {
				return nil, 0, err
			}
			items := make([]domain.Person, 0, len(page.Items))
			for _, person := range page.Items {
				if person.PubKey == "" {
					continue
				}
				items = append(items, person.Clone())
			}
			return items, page.Total, nil
		})

		switch {
		case out.stale:
			metrics.StalePages.WithLabelValues("people").Inc()
		case out.err != nil:
			metrics.Fetches.WithLabelValues("people", "error").Inc()
			p.logger.Warn("fetch failed", logger.Int("page", cursor.Page), logger.Error(out.err))
		default:
			metrics.Fetches.WithLabelValues("people", "ok").Inc()
		}
		return nil, out.err
	})

	select {
	case <-ctx.Done():
		return PeopleSnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.DedupedFetches.WithLabelValues("people").Inc()
		}
		return p.Snapshot(), res.Err
	}
}

// Snapshot returns a copy of the directory.
func (p *People) Snapshot() PeopleSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := PeopleSnapshot{
		Items:   make([]domain.Person, len(p.seq.records)),
		Total:   p.seq.total,
		Next:    api.First(p.pageSize),
		Version: p.seq.version,
		Err:     p.seq.err,
	}
	for i, person := range p.seq.records {
		snap.Items[i] = person.Clone()
	}
	if p.seq.loaded {
		snap.Next = api.Cursor{Page: p.seq.nextPage, Limit: p.pageSize}
		snap.HasMore = len(p.seq.records) < p.seq.total
	}
	return snap
}

// Lookup returns the directory entry of pubkey.
func (p *People) Lookup(pubkey string) (domain.Person, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	person, ok := p.seq.get(pubkey)
	return person.Clone(), ok
}

// Put stores a single person, ex: one fetched on demand.
func (p *People) Put(person domain.Person) {
	if person.PubKey == "" {
		return
	}
	p.mu.Lock()
	p.seq.upsert(person.Clone())
	p.mu.Unlock()
}

// Search ranks the directory against query.
func (p *People) Search(query string) []domain.Person {
	return search.People(p.Snapshot().Items, query)
}

// Reset clears the directory.
func (p *People) Reset() {
	p.mu.Lock()
	p.seq.reset(p.epochs.Add(1))
	p.mu.Unlock()
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

// DefaultRefreshInterval is the period of the background refresh.
const DefaultRefreshInterval = time.Minute

// Refresher keeps collections fresh. It loads the watched scopes on start,
// reloads every loaded scope on an interval, and serves the store's refresh
// requests as they arrive.
type Refresher struct {
	store    *store.Store
	watch    []domain.Scope
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRefresher creates a new refresher
func NewRefresher(st *store.Store, watch []domain.Scope, log logger.Logger, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		store:    st,
		watch:    watch,
		logger:   log.Component("refresher"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start loads the watched scopes, then refreshes in the background until
// Stop is called or ctx ends. A failed initial load is logged; the store
// keeps the error on the scope's snapshot.
func (r *Refresher) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.refreshAll(ctx, r.watch)

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.refreshAll(ctx, r.scopes())
			case scope := <-r.store.Refreshes():
				r.logger.Debug("refresh requested", logger.Stringer("scope", scope))
				r.Refresh(ctx, scope)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the refresher
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Refresh restarts scope from its first page, then refetches every page
// that was loaded before, so a scrolled collection keeps its depth.
func (r *Refresher) Refresh(ctx context.Context, scope domain.Scope) {
	depth := 1
	if before := r.store.Snapshot(scope); before.Loaded && before.Next.Page > 2 {
		depth = before.Next.Page - 1
	}

	snap, err := r.store.FetchPage(ctx, scope, api.First(r.store.PageSize()))
	for n := 2; err == nil && n <= depth && snap.HasMore; n++ {
		snap, err = r.store.FetchPage(ctx, scope, api.Cursor{Page: n, Limit: r.store.PageSize()})
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("failed to refresh scope",
				logger.Stringer("scope", scope),
				logger.Error(err))
		}
		return
	}
	r.logger.Debug("scope refreshed",
		logger.Stringer("scope", scope),
		logger.Int("pages", depth),
		logger.Int("items", len(snap.Items)),
		logger.Int("total", snap.Total))
}

func (r *Refresher) refreshAll(ctx context.Context, scopes []domain.Scope) {
	for _, scope := range scopes {
		if ctx.Err() != nil {
			return
		}
		r.Refresh(ctx, scope)
	}
}

// scopes is the union of the watched and the currently loaded scopes.
func (r *Refresher) scopes() []domain.Scope {
	seen := make(map[domain.Scope]struct{}, len(r.watch))
	out := make([]domain.Scope, 0, len(r.watch))
	for _, s := range append(append([]domain.Scope(nil), r.watch...), r.store.Scopes()...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

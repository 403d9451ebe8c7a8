package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
)

const (
	// DefaultEvictAfter is the undo window of a deleted bounty
	DefaultEvictAfter = 10 * time.Minute
	// DefaultEvictInterval is the period of the eviction sweep
	DefaultEvictInterval = time.Minute
)

// Evictor removes soft-deleted bounties once the server has confirmed the
// deletion and the undo window has passed. Unconfirmed deletions are kept
// so a failed remote call can still restore them.
type Evictor struct {
	store     *store.Store
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewEvictor creates a new evictor
func NewEvictor(st *store.Store, log logger.Logger, interval, threshold time.Duration) *Evictor {
	if interval <= 0 {
		interval = DefaultEvictInterval
	}
	if threshold <= 0 {
		threshold = DefaultEvictAfter
	}
	return &Evictor{
		store:     st,
		logger:    log.Component("evictor"),
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (e *Evictor) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Collect()
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the evictor
func (e *Evictor) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Collect evicts every eligible deletion and returns how many records went.
func (e *Evictor) Collect() int {
	now := e.now()
	evicted := 0

	for _, ref := range e.store.Deleted() {
		if !ref.Confirmed || ref.DeletedAt.IsZero() {
			continue
		}
		age := now.Sub(ref.DeletedAt)
		if age < e.threshold {
			continue
		}
		if e.store.Evict(ref.Scope, ref.ID) {
			e.logger.Debug("evicted deleted bounty",
				logger.String("scope", ref.Scope.String()),
				logger.String("id", ref.ID),
				logger.Duration("deleted_for", age))
			evicted++
		}
	}

	if evicted > 0 {
		e.logger.Info("eviction completed", logger.Int("evicted", evicted))
	}
	return evicted
}

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
)

const defaultFetchTimeout = 15 * time.Second

// fetchOutcome is the result of one flight as seen by the collection.
type fetchOutcome struct {
	applied bool
	stale   bool
	version uint64
	err     error
}

// runFetch performs one page fetch against seq, in the caller's flight.
//
// A restarting cursor opens a new generation at issue time, so any fetch
// issued earlier becomes stale. The network call runs outside mu and with
// its own timeout: callers that give up do not cancel the shared flight.
func runFetch[T any](
	mu *sync.RWMutex,
	seq *sequence[T],
	epochs *atomic.Uint64,
	cursor api.Cursor,
	timeout time.Duration,
	fetch func(ctx context.Context) ([]T, int, error),
) fetchOutcome {
	mu.Lock()
	if cursor.Restarts() {
		seq.restart(epochs.Add(1))
	}
	ticket := seq.epoch
	mu.Unlock()

	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	items, total, err := fetch(ctx)

	mu.Lock()
	defer mu.Unlock()

	if seq.epoch != ticket {
		return fetchOutcome{stale: true, version: seq.version}
	}
	if err != nil {
		seq.fail(err)
		return fetchOutcome{version: seq.version, err: err}
	}
	applied := seq.apply(cursor.Page, items, total)
	return fetchOutcome{applied: applied, version: seq.version}
}

package utils

import (
	"context"
	"sync"
)

const defaultBuffer = 16

// Broadcaster fans values out to every active subscriber.
// Slow subscribers miss values; Publish never blocks.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	next   int
	buffer int
}

// NewBroadcaster returns a broadcaster whose subscriber channels hold
// buffer values. buffer <= 0 picks a default.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster[T]{subs: make(map[int]chan T), buffer: buffer}
}

// Subscribe registers a subscriber. The channel is closed when ctx ends.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers v to every subscriber with room in its buffer.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

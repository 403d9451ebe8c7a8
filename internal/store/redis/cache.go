package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// DefaultCacheTTL is the default TTL of cached pages and people.
const DefaultCacheTTL = 30 * time.Second

// Store handles Redis reads and writes of cached API responses.
type Store struct {
	client redis.Cmdable
}

// NewStore creates a new Redis store
func NewStore(client redis.Cmdable) *Store {
	return &Store{
		client: client,
	}
}

// GetPage returns a cached page. ok is false on a cache miss.
func (s *Store) GetPage(ctx context.Context, scope domain.Scope, cursor api.Cursor) (api.Page, bool, error) {
	var page api.Page
	ok, err := s.get(ctx, PageKey(scope, cursor), &page)
	return page, ok, err
}

// SavePage caches page for ttl.
func (s *Store) SavePage(ctx context.Context, scope domain.Scope, cursor api.Cursor, page api.Page, ttl time.Duration) error {
	return s.set(ctx, PageKey(scope, cursor), page, ttl)
}

// GetPerson returns a cached person. ok is false on a cache miss.
func (s *Store) GetPerson(ctx context.Context, pubkey string) (domain.Person, bool, error) {
	var p domain.Person
	ok, err := s.get(ctx, PersonKey(pubkey), &p)
	return p, ok, err
}

// SavePerson caches p for ttl.
func (s *Store) SavePerson(ctx context.Context, p domain.Person, ttl time.Duration) error {
	return s.set(ctx, PersonKey(p.PubKey), p, ttl)
}

// InvalidateScopes removes every cached page of the given scopes.
func (s *Store) InvalidateScopes(ctx context.Context, scopes ...domain.Scope) error {
	for _, scope := range scopes {
		if err := s.deletePattern(ctx, ScopePattern(scope)); err != nil {
			return err
		}
	}
	return nil
}

// FlushPages removes every cached page.
func (s *Store) FlushPages(ctx context.Context) error {
	return s.deletePattern(ctx, AllPagesPattern())
}

func (s *Store) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *Store) deletePattern(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

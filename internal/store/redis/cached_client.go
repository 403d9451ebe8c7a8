package redis

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
)

// PageCache is the storage behind a CachedClient. *Store implements it.
type PageCache interface {
	GetPage(ctx context.Context, scope domain.Scope, cursor api.Cursor) (api.Page, bool, error)
	SavePage(ctx context.Context, scope domain.Scope, cursor api.Cursor, page api.Page, ttl time.Duration) error
	GetPerson(ctx context.Context, pubkey string) (domain.Person, bool, error)
	SavePerson(ctx context.Context, p domain.Person, ttl time.Duration) error
	InvalidateScopes(ctx context.Context, scopes ...domain.Scope) error
	FlushPages(ctx context.Context) error
}

// CachedClient is a read-through cache over an api.Client. Cache failures
// never fail a call; they fall through to the wrapped client.
type CachedClient struct {
	api.Client

	cache  PageCache
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedClient wraps next. A ttl <= 0 uses DefaultCacheTTL.
func NewCachedClient(next api.Client, cache PageCache, ttl time.Duration, log logger.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedClient{
		Client: next,
		cache:  cache,
		ttl:    ttl,
		logger: log.Component("page_cache"),
	}
}

func (c *CachedClient) FetchBounties(ctx context.Context, scope domain.Scope, cursor api.Cursor) (api.Page, error) {
	page, ok, err := c.cache.GetPage(ctx, scope, cursor)
	if err != nil {
		c.logger.Warn("page cache read failed", logger.Stringer("scope", scope), logger.Error(err))
	}
	if ok {
		c.logger.Debug("page cache hit", logger.Stringer("scope", scope), logger.Int("page", cursor.Page))
		return page, nil
	}

	page, err = c.Client.FetchBounties(ctx, scope, cursor)
	if err != nil {
		return api.Page{}, err
	}
	if err := c.cache.SavePage(ctx, scope, cursor, page, c.ttl); err != nil {
		c.logger.Warn("page cache write failed", logger.Stringer("scope", scope), logger.Error(err))
	}
	return page, nil
}

func (c *CachedClient) FetchPerson(ctx context.Context, pubkey string) (domain.Person, error) {
	p, ok, err := c.cache.GetPerson(ctx, pubkey)
	if err != nil {
		c.logger.Warn("person cache read failed", logger.String("pubkey", pubkey), logger.Error(err))
	}
	if ok {
		return p, nil
	}

	p, err = c.Client.FetchPerson(ctx, pubkey)
	if err != nil {
		return domain.Person{}, err
	}
	if err := c.cache.SavePerson(ctx, p, c.ttl); err != nil {
		c.logger.Warn("person cache write failed", logger.String("pubkey", pubkey), logger.Error(err))
	}
	return p, nil
}

func (c *CachedClient) CreateBounty(ctx context.Context, payload domain.Bounty) (domain.Bounty, error) {
	b, err := c.Client.CreateBounty(ctx, payload)
	if err != nil {
		return domain.Bounty{}, err
	}
	c.invalidate(ctx, scopesOf(b)...)
	return b, nil
}

// UpdateBounty invalidates the scopes of the bounty after the change. A
// reassignment also changes the old assignee's profile, so every page is
// dropped when the assignee moves.
func (c *CachedClient) UpdateBounty(ctx context.Context, id string, patch api.BountyPatch) (domain.Bounty, error) {
	b, err := c.Client.UpdateBounty(ctx, id, patch)
	if err != nil {
		return domain.Bounty{}, err
	}
	if patch.AssigneeID != nil {
		c.flush(ctx)
	} else {
		c.invalidate(ctx, scopesOf(b)...)
	}
	return b, nil
}

// DeleteBounty drops every cached page; the bounty's scopes are unknown here.
func (c *CachedClient) DeleteBounty(ctx context.Context, id string) error {
	if err := c.Client.DeleteBounty(ctx, id); err != nil {
		return err
	}
	c.flush(ctx)
	return nil
}

func (c *CachedClient) invalidate(ctx context.Context, scopes ...domain.Scope) {
	if err := c.cache.InvalidateScopes(ctx, scopes...); err != nil {
		c.logger.Warn("page cache invalidation failed", logger.Error(err))
	}
}

func (c *CachedClient) flush(ctx context.Context) {
	if err := c.cache.FlushPages(ctx); err != nil {
		c.logger.Warn("page cache flush failed", logger.Error(err))
	}
}

var _ api.Client = (*CachedClient)(nil)

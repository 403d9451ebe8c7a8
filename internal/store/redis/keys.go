package redis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

const (
	// KeyPrefixPage is the prefix for cached bounty pages
	KeyPrefixPage = "bountyboard:page:"
	// KeyPrefixPerson is the prefix for cached person records
	KeyPrefixPerson = "bountyboard:person:"
	// DefaultPaymentsChannel is the pub/sub channel of settlement events
	DefaultPaymentsChannel = "bounty:payments"
)

// PageKey returns the Redis key of one page of scope.
// Example: bountyboard:page:workspace:ck9:2:20
func PageKey(scope domain.Scope, cursor api.Cursor) string {
	limit := cursor.Limit
	if limit <= 0 {
		limit = api.DefaultPageSize
	}
	return KeyPrefixPage + scope.String() + ":" + strconv.Itoa(max(cursor.Page, 1)) + ":" + strconv.Itoa(limit)
}

// ScopePattern matches every cached page of scope.
func ScopePattern(scope domain.Scope) string {
	return KeyPrefixPage + scope.String() + ":*"
}

// AllPagesPattern matches every cached page.
func AllPagesPattern() string {
	return KeyPrefixPage + "*"
}

// PersonKey returns the Redis key of a cached person.
func PersonKey(pubkey string) string {
	return KeyPrefixPerson + pubkey
}

// ExtractScope returns the scope a page key belongs to.
func ExtractScope(key string) (domain.Scope, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefixPage)
	if !ok {
		return domain.Scope{}, fmt.Errorf("invalid page key: %s", key)
	}
	// Drop the trailing ":page:limit".
	for n := 0; n < 2; n++ {
		i := strings.LastIndexByte(rest, ':')
		if i < 0 {
			return domain.Scope{}, fmt.Errorf("invalid page key: %s", key)
		}
		rest = rest[:i]
	}
	return domain.ParseScope(rest)
}

// scopesOf lists the collections a bounty is visible in.
func scopesOf(b domain.Bounty) []domain.Scope {
	scopes := []domain.Scope{domain.Global, domain.Admin}
	if b.OwnerID != "" {
		scopes = append(scopes, domain.ProfileScope(b.OwnerID))
	}
	if b.AssigneeID != "" && b.AssigneeID != b.OwnerID {
		scopes = append(scopes, domain.ProfileScope(b.AssigneeID))
	}
	if b.OrgUUID != "" {
		scopes = append(scopes, domain.WorkspaceScope(b.OrgUUID), domain.OrganizationScope(b.OrgUUID))
	}
	return scopes
}

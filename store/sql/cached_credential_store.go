package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-token-broker/core"
)

const credentialCacheKeyPrefix = "go-token-broker::credential::v1"

// CachedCredentialStore fronts a durable credential store with a shared
// read-through cache. Writes invalidate rather than populate, so a stale
// entry can outlive a save by at most one read.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns the deterministic cache key contract for
// credential reads: go-token-broker::credential::v1::<principal_id> with
// the principal segment URL-path escaped.
func CredentialCacheKey(principalID string) (string, error) {
	trimmed := strings.TrimSpace(principalID)
	if trimmed == "" {
		return "", core.ErrEmptyPrincipalID
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedCredentialStore) GetByPrincipal(ctx context.Context, principalID string) (core.CredentialRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(principalID)
	if err != nil {
		return core.CredentialRecord{}, err
	}

	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.CredentialRecord, error) {
		fetched, fetchErr := s.base.GetByPrincipal(ctx, principalID)
		if fetchErr != nil {
			return core.CredentialRecord{}, fetchErr
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		return core.CredentialRecord{}, err
	}
	return record.Clone(), nil
}

func (s *CachedCredentialStore) Save(ctx context.Context, record core.CredentialRecord) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Save(ctx, record); err != nil {
		return err
	}
	cacheKey, err := CredentialCacheKey(record.PrincipalID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedCredentialStore) Delete(ctx context.Context, principalID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Delete(ctx, principalID); err != nil {
		return err
	}
	cacheKey, err := CredentialCacheKey(principalID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.CredentialStore = (*CachedCredentialStore)(nil)

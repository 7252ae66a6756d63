package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// credentialCache is the in-process mirror of the durable store. It is
// advisory: the durable store stays the cross-process source of truth, and
// entries here only short-circuit reads that would land on the same record.
type credentialCache struct {
	mu      sync.RWMutex
	entries map[string]CredentialRecord
}

func newCredentialCache() *credentialCache {
	return &credentialCache{
		entries: map[string]CredentialRecord{},
	}
}

func (c *credentialCache) get(principalID string) (CredentialRecord, bool) {
	if c == nil {
		return CredentialRecord{}, false
	}
	c.mu.RLock()
	record, ok := c.entries[principalID]
	c.mu.RUnlock()
	if !ok {
		return CredentialRecord{}, false
	}
	return record.Clone(), true
}

func (c *credentialCache) set(record CredentialRecord) {
	if c == nil || strings.TrimSpace(record.PrincipalID) == "" {
		return
	}
	c.mu.Lock()
	if c.entries == nil {
		c.entries = map[string]CredentialRecord{}
	}
	c.entries[record.PrincipalID] = record.Clone()
	c.mu.Unlock()
}

func (c *credentialCache) delete(principalID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, principalID)
	c.mu.Unlock()
}

type resolvedCredential struct {
	Record      CredentialRecord
	AccessToken string
}

// ResolveAccessToken returns a bearer secret for the principal, serving from
// the in-process mirror when fresh, falling back to the durable store, and
// refreshing through the authority only when both are stale.
func (s *Service) ResolveAccessToken(ctx context.Context, principalID string) (token string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve_access_token", err, fields)
	}()

	if s == nil {
		return "", fmt.Errorf("core: service is nil")
	}
	resolved, err := s.resolveCredential(ctx, principalID)
	if err != nil {
		return "", err
	}
	return resolved.AccessToken, nil
}

// RefreshCredential forces one refresh through the authority regardless of
// freshness. Concurrent resolutions for the same principal coalesce onto it.
func (s *Service) RefreshCredential(ctx context.Context, principalID string) (record CredentialRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_credential", err, fields)
	}()

	if s == nil {
		return CredentialRecord{}, fmt.Errorf("core: service is nil")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		err = s.mapError(ErrEmptyPrincipalID)
		return CredentialRecord{}, err
	}

	if principalID != ServicePrincipalID {
		if _, err = s.loadPrincipalRecord(ctx, principalID); err != nil {
			return CredentialRecord{}, err
		}
	}
	record, err = s.runRefreshFlight(ctx, principalID, true)
	if err != nil {
		return CredentialRecord{}, err
	}
	return record, nil
}

func (s *Service) resolveCredential(ctx context.Context, principalID string) (resolvedCredential, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return resolvedCredential{}, s.mapError(ErrEmptyPrincipalID)
	}
	if principalID == ServicePrincipalID {
		return s.resolveServiceCredential(ctx)
	}

	now := s.now()
	if record, ok := s.cache.get(principalID); ok && RecordIsFresh(now, record, s.refreshLeadWindow()) {
		s.emitEvent(ctx, "cache_hit", map[string]any{
			"principal_id": principalID,
			"source":       "memory",
		})
		return resolvedCredential{Record: record, AccessToken: record.AccessToken}, nil
	}

	record, err := s.loadPrincipalRecord(ctx, principalID)
	if err != nil {
		return resolvedCredential{}, err
	}
	if RecordIsFresh(now, record, s.refreshLeadWindow()) {
		s.cache.set(record)
		s.emitEvent(ctx, "cache_hit", map[string]any{
			"principal_id": principalID,
			"source":       "durable",
		})
		return resolvedCredential{Record: record, AccessToken: record.AccessToken}, nil
	}

	if record.Refreshable() {
		refreshed, refreshErr := s.runRefreshFlight(ctx, principalID, false)
		if refreshErr != nil {
			return resolvedCredential{}, refreshErr
		}
		return resolvedCredential{Record: refreshed, AccessToken: refreshed.AccessToken}, nil
	}

	// Account-credentials flavor: the principal record only anchors the
	// external account id, the bearer is the shared service-level secret.
	service, err := s.resolveServiceCredential(ctx)
	if err != nil {
		return resolvedCredential{}, err
	}
	return resolvedCredential{Record: record, AccessToken: service.AccessToken}, nil
}

func (s *Service) resolveServiceCredential(ctx context.Context) (resolvedCredential, error) {
	now := s.now()
	if record, ok := s.cache.get(ServicePrincipalID); ok && RecordIsFresh(now, record, s.refreshLeadWindow()) {
		s.emitEvent(ctx, "cache_hit", map[string]any{
			"principal_id": ServicePrincipalID,
			"source":       "memory",
		})
		return resolvedCredential{Record: record, AccessToken: record.AccessToken}, nil
	}

	record, found, err := s.lookupDurableRecord(ctx, ServicePrincipalID)
	if err != nil {
		return resolvedCredential{}, s.mapError(err)
	}
	if found && RecordIsFresh(now, record, s.refreshLeadWindow()) {
		s.cache.set(record)
		s.emitEvent(ctx, "cache_hit", map[string]any{
			"principal_id": ServicePrincipalID,
			"source":       "durable",
		})
		return resolvedCredential{Record: record, AccessToken: record.AccessToken}, nil
	}

	refreshed, err := s.runRefreshFlight(ctx, ServicePrincipalID, false)
	if err != nil {
		return resolvedCredential{}, err
	}
	return resolvedCredential{Record: refreshed, AccessToken: refreshed.AccessToken}, nil
}

// runRefreshFlight serializes refreshes per principal: concurrent callers
// share the one in-flight exchange and its result. The flight runs detached
// from the initiating caller's deadline because later joiners still expect
// the result after that caller gives up.
func (s *Service) runRefreshFlight(ctx context.Context, principalID string, force bool) (CredentialRecord, error) {
	value, err, _ := s.refreshFlight.Do(principalID, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)

		latest, found, lookupErr := s.lookupDurableRecord(flightCtx, principalID)
		if lookupErr != nil {
			return CredentialRecord{}, s.mapError(lookupErr)
		}
		if !force && found && RecordIsFresh(s.now(), latest, s.refreshLeadWindow()) {
			s.cache.set(latest)
			return latest, nil
		}
		return s.refreshUpstream(flightCtx, principalID, latest)
	})
	if err != nil {
		return CredentialRecord{}, err
	}
	record, ok := value.(CredentialRecord)
	if !ok {
		wrapped := s.errorFactory(
			fmt.Sprintf("unexpected refresh result type %T", value),
			goerrors.CategoryInternal,
		).WithTextCode(BrokerErrorInternal)
		return CredentialRecord{}, wrapped
	}
	return record, nil
}

// refreshUpstream performs exactly one authority exchange and one atomic
// durable write. It never retries: rejection and availability failures
// surface typed to the caller, and a rejected grant leaves the stale record
// untouched so operators can inspect it.
func (s *Service) refreshUpstream(ctx context.Context, principalID string, stale CredentialRecord) (CredentialRecord, error) {
	if s.authorityClient == nil {
		return CredentialRecord{}, s.mapError(fmt.Errorf("core: authority client is not configured"))
	}
	if s.credentialStore == nil {
		return CredentialRecord{}, s.mapError(fmt.Errorf("core: credential store is not configured"))
	}

	grantType := "refresh_token"
	if principalID == ServicePrincipalID {
		grantType = "account_credentials"
	}
	s.emitEvent(ctx, "refresh_started", map[string]any{
		"principal_id": principalID,
		"grant_type":   grantType,
	})

	var grant TokenGrant
	var err error
	if principalID == ServicePrincipalID {
		accountID := strings.TrimSpace(stale.AccountID)
		if accountID == "" {
			accountID = strings.TrimSpace(s.config.Authority.AccountID)
		}
		grant, err = s.authorityClient.AccountGrant(ctx, accountID)
	} else {
		if strings.TrimSpace(stale.RefreshToken) == "" {
			return CredentialRecord{}, NewUnauthenticatedError(principalID)
		}
		grant, err = s.authorityClient.RefreshGrant(ctx, stale.RefreshToken)
	}
	if err != nil {
		mapped := s.mapError(err)
		s.emitEvent(ctx, "refresh_failed", map[string]any{
			"principal_id": principalID,
			"grant_type":   grantType,
			"error":        mapped.Error(),
		})
		return CredentialRecord{}, mapped
	}

	now := s.now()
	next := stale.Clone()
	next.PrincipalID = principalID
	next.AccessToken = strings.TrimSpace(grant.AccessToken)
	if rotated := strings.TrimSpace(grant.RefreshToken); rotated != "" {
		next.RefreshToken = rotated
	}
	next.ExpiresAt = ExpiresAtFromGrant(now, grant)
	if principalID == ServicePrincipalID && strings.TrimSpace(next.AccountID) == "" {
		next.AccountID = strings.TrimSpace(s.config.Authority.AccountID)
	}
	next = next.Normalize()

	if saveErr := s.credentialStore.Save(ctx, next); saveErr != nil {
		return CredentialRecord{}, s.mapError(saveErr)
	}
	s.cache.set(next)
	s.emitEvent(ctx, "refresh_completed", map[string]any{
		"principal_id": principalID,
		"grant_type":   grantType,
		"expires_at":   next.ExpiresAt,
	})
	return next, nil
}

func (s *Service) loadPrincipalRecord(ctx context.Context, principalID string) (CredentialRecord, error) {
	record, found, err := s.lookupDurableRecord(ctx, principalID)
	if err != nil {
		return CredentialRecord{}, s.mapError(err)
	}
	if !found {
		return CredentialRecord{}, NewUnauthenticatedError(principalID)
	}
	return record, nil
}

func (s *Service) lookupDurableRecord(ctx context.Context, principalID string) (CredentialRecord, bool, error) {
	if s == nil || s.credentialStore == nil {
		return CredentialRecord{}, false, fmt.Errorf("core: credential store is not configured")
	}
	record, err := s.credentialStore.GetByPrincipal(ctx, principalID)
	if err != nil {
		if IsRecordNotFound(err) {
			return CredentialRecord{}, false, nil
		}
		return CredentialRecord{}, false, err
	}
	return record.Normalize(), true, nil
}

func (s *Service) refreshLeadWindow() time.Duration {
	if s == nil || s.config.Cache.RefreshLeadWindow <= 0 {
		return DefaultRefreshLeadWindow
	}
	return s.config.Cache.RefreshLeadWindow
}

func (s *Service) expiringSoonWindow() time.Duration {
	if s == nil || s.config.Cache.ExpiringSoonWindow <= 0 {
		return DefaultExpiringSoonWindow
	}
	return s.config.Cache.ExpiringSoonWindow
}

func (s *Service) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn().UTC()
}

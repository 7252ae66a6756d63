package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyPrincipalID     = errors.New("core: principal id is required")
	ErrEmptyResourceID      = errors.New("core: resource id is required")
	ErrEmptyTokenValue      = errors.New("core: token value is required")
	ErrIncompleteCredential = errors.New("core: credential record is incomplete")
)

type FreshnessState string

const (
	FreshnessActive       FreshnessState = "active"
	FreshnessExpiringSoon FreshnessState = "expiring_soon"
	FreshnessExpired      FreshnessState = "expired"
)

func (r CredentialRecord) Clone() CredentialRecord {
	cloned := r
	cloned.Metadata = copyAnyMap(r.Metadata)
	return cloned
}

func (r CredentialRecord) Normalize() CredentialRecord {
	normalized := r
	normalized.PrincipalID = strings.TrimSpace(r.PrincipalID)
	normalized.AccessToken = strings.TrimSpace(r.AccessToken)
	normalized.RefreshToken = strings.TrimSpace(r.RefreshToken)
	normalized.AccountID = strings.TrimSpace(r.AccountID)
	if !r.ExpiresAt.IsZero() {
		normalized.ExpiresAt = r.ExpiresAt.UTC()
	}
	normalized.Metadata = copyAnyMap(r.Metadata)
	return normalized
}

func (r CredentialRecord) Validate() error {
	if strings.TrimSpace(r.PrincipalID) == "" {
		return ErrEmptyPrincipalID
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return fmt.Errorf("%w: access token is empty", ErrIncompleteCredential)
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: expiry is not set", ErrIncompleteCredential)
	}
	return nil
}

// Refreshable reports whether the record carries its own refresh grant.
// Records without one belong to the account-credentials flavor and resolve
// through the service-level record instead.
func (r CredentialRecord) Refreshable() bool {
	return strings.TrimSpace(r.RefreshToken) != ""
}

func NewHostToken(principalID string, value string) (SessionToken, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return SessionToken{}, ErrEmptyPrincipalID
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return SessionToken{}, ErrEmptyTokenValue
	}
	return SessionToken{
		Type:        TokenTypeHost,
		Value:       value,
		PrincipalID: principalID,
	}, nil
}

// NewScopedToken refuses to build a scoped token without a resource id; the
// pairing is the whole point of the scoped flavor.
func NewScopedToken(principalID string, resourceID string, value string) (SessionToken, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return SessionToken{}, ErrEmptyPrincipalID
	}
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return SessionToken{}, ErrEmptyResourceID
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return SessionToken{}, ErrEmptyTokenValue
	}
	return SessionToken{
		Type:        TokenTypeScoped,
		Value:       value,
		PrincipalID: principalID,
		ResourceID:  resourceID,
	}, nil
}

func (t SessionToken) Validate() error {
	if strings.TrimSpace(t.Value) == "" {
		return ErrEmptyTokenValue
	}
	if strings.TrimSpace(t.PrincipalID) == "" {
		return ErrEmptyPrincipalID
	}
	if t.Type == TokenTypeScoped && strings.TrimSpace(t.ResourceID) == "" {
		return ErrEmptyResourceID
	}
	return nil
}

// ExpiresAtFromGrant converts an authority expires_in (seconds) into the
// raw expiry instant stored on the record. Freshness windows are applied at
// read time, never here.
func ExpiresAtFromGrant(now time.Time, grant TokenGrant) time.Time {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return now.UTC().Add(time.Duration(grant.ExpiresIn) * time.Second)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

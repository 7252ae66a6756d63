package core

import (
	"strings"
	"time"
)

const (
	DefaultRefreshLeadWindow  = 5 * time.Minute
	DefaultExpiringSoonWindow = 5 * time.Minute
)

// TokenState captures the lifecycle flags derived from a credential record
// at a given instant.
type TokenState struct {
	ExpiresAt       time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	IsExpiringSoon  bool
}

// ResolveTokenState evaluates expiry and refreshability flags for a record.
func ResolveTokenState(now time.Time, record CredentialRecord, expiringSoonWindow time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if expiringSoonWindow <= 0 {
		expiringSoonWindow = DefaultExpiringSoonWindow
	}

	state := TokenState{
		HasAccessToken:  strings.TrimSpace(record.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(record.RefreshToken) != "",
	}
	if record.ExpiresAt.IsZero() {
		state.IsExpired = true
		return state
	}
	expiresAt := record.ExpiresAt.UTC()
	state.ExpiresAt = expiresAt
	if !expiresAt.After(now) {
		state.IsExpired = true
		return state
	}
	state.IsExpiringSoon = !expiresAt.After(now.Add(expiringSoonWindow))
	return state
}

// RecordIsFresh is the read-time gate: a record may be served from cache
// only while now < expiry - lead window. The raw expiry on the record is
// never adjusted; the window is applied here and nowhere else.
func RecordIsFresh(now time.Time, record CredentialRecord, refreshLeadWindow time.Duration) bool {
	if strings.TrimSpace(record.AccessToken) == "" {
		return false
	}
	if record.ExpiresAt.IsZero() {
		return false
	}
	if refreshLeadWindow <= 0 {
		refreshLeadWindow = DefaultRefreshLeadWindow
	}
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	return record.ExpiresAt.UTC().After(now.Add(refreshLeadWindow))
}

// ResolveFreshness classifies a record for status reporting.
func ResolveFreshness(now time.Time, record CredentialRecord, refreshLeadWindow time.Duration, expiringSoonWindow time.Duration) FreshnessState {
	state := ResolveTokenState(now, record, expiringSoonWindow)
	switch {
	case state.IsExpired:
		return FreshnessExpired
	case !RecordIsFresh(now, record, refreshLeadWindow), state.IsExpiringSoon:
		return FreshnessExpiringSoon
	default:
		return FreshnessActive
	}
}

package core

import (
	"errors"
	"testing"
	"time"
)

func TestCredentialRecordNormalize_TrimsAndUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	record := CredentialRecord{
		PrincipalID:  "  p1  ",
		AccessToken:  " bearer ",
		RefreshToken: " refresh ",
		AccountID:    " acct ",
		ExpiresAt:    time.Date(2025, 6, 1, 14, 0, 0, 0, loc),
		Metadata:     map[string]any{"source": "test"},
	}

	normalized := record.Normalize()
	if normalized.PrincipalID != "p1" || normalized.AccessToken != "bearer" {
		t.Fatalf("expected trimmed identifiers, got %+v", normalized)
	}
	if normalized.RefreshToken != "refresh" || normalized.AccountID != "acct" {
		t.Fatalf("expected trimmed secrets, got %+v", normalized)
	}
	if normalized.ExpiresAt.Location() != time.UTC {
		t.Fatalf("expected UTC expiry, got %v", normalized.ExpiresAt.Location())
	}
	if !normalized.ExpiresAt.Equal(record.ExpiresAt) {
		t.Fatalf("normalize must not shift the expiry instant")
	}
}

func TestCredentialRecordClone_IsolatesMetadata(t *testing.T) {
	record := CredentialRecord{
		PrincipalID: "p1",
		Metadata:    map[string]any{"source": "seed"},
	}
	cloned := record.Clone()
	cloned.Metadata["source"] = "mutated"

	if record.Metadata["source"] != "seed" {
		t.Fatalf("expected clone to own its metadata map")
	}
}

func TestCredentialRecordValidate(t *testing.T) {
	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		record  CredentialRecord
		wantErr error
	}{
		{
			name:    "missing principal",
			record:  CredentialRecord{AccessToken: "bearer", ExpiresAt: expires},
			wantErr: ErrEmptyPrincipalID,
		},
		{
			name:    "missing access token",
			record:  CredentialRecord{PrincipalID: "p1", ExpiresAt: expires},
			wantErr: ErrIncompleteCredential,
		},
		{
			name:    "missing expiry",
			record:  CredentialRecord{PrincipalID: "p1", AccessToken: "bearer"},
			wantErr: ErrIncompleteCredential,
		},
		{
			name:   "complete",
			record: CredentialRecord{PrincipalID: "p1", AccessToken: "bearer", ExpiresAt: expires},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected valid record, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCredentialRecordRefreshable(t *testing.T) {
	if (CredentialRecord{RefreshToken: "refresh"}).Refreshable() != true {
		t.Fatalf("expected refresh-secret record to be refreshable")
	}
	if (CredentialRecord{RefreshToken: "  "}).Refreshable() {
		t.Fatalf("expected blank refresh secret to not count")
	}
}

func TestNewScopedToken_RequiresResourceID(t *testing.T) {
	_, err := NewScopedToken("p1", "  ", "value")
	if !errors.Is(err, ErrEmptyResourceID) {
		t.Fatalf("expected resource id error, got %v", err)
	}

	token, err := NewScopedToken("p1", "room-1", "value")
	if err != nil {
		t.Fatalf("new scoped token: %v", err)
	}
	if token.Type != TokenTypeScoped || token.ResourceID != "room-1" {
		t.Fatalf("unexpected token %+v", token)
	}
}

func TestNewHostToken(t *testing.T) {
	_, err := NewHostToken("p1", "")
	if !errors.Is(err, ErrEmptyTokenValue) {
		t.Fatalf("expected token value error, got %v", err)
	}

	token, err := NewHostToken(" p1 ", " value ")
	if err != nil {
		t.Fatalf("new host token: %v", err)
	}
	if token.PrincipalID != "p1" || token.Value != "value" || token.ResourceID != "" {
		t.Fatalf("unexpected token %+v", token)
	}
}

func TestSessionTokenValidate(t *testing.T) {
	scoped := SessionToken{Type: TokenTypeScoped, Value: "v", PrincipalID: "p1"}
	if !errors.Is(scoped.Validate(), ErrEmptyResourceID) {
		t.Fatalf("expected scoped token to require resource id")
	}

	host := SessionToken{Type: TokenTypeHost, Value: "v", PrincipalID: "p1"}
	if err := host.Validate(); err != nil {
		t.Fatalf("host token validate: %v", err)
	}
}

func TestExpiresAtFromGrant(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := ExpiresAtFromGrant(base, TokenGrant{ExpiresIn: 3600})
	if !got.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected %v, got %v", base.Add(time.Hour), got)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC expiry")
	}
}

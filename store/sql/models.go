package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-token-broker/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	credentialStatusActive  = "active"
	credentialStatusRevoked = "revoked"

	revocationReasonRotated = "rotated"
	revocationReasonRevoked = "revoked"
)

// credentialRow is one version of a principal's credential record. Saves
// never update a row in place: the active row is revoked and the next
// version inserted in the same transaction, so readers always see a whole
// record and history stays queryable.
type credentialRow struct {
	bun.BaseModel `bun:"table:broker_credentials,alias:bc"`

	ID               string         `bun:"id,pk"`
	PrincipalID      string         `bun:"principal_id,notnull"`
	Version          int            `bun:"version,notnull"`
	AccessToken      string         `bun:"access_token,notnull"`
	RefreshToken     string         `bun:"refresh_token,notnull"`
	ExpiresAt        *time.Time     `bun:"expires_at,nullzero"`
	AccountID        string         `bun:"account_id,notnull"`
	Metadata         map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status           string         `bun:"status,notnull"`
	RevocationReason string         `bun:"revocation_reason,notnull"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newCredentialRow(record core.CredentialRecord, version int, now time.Time) *credentialRow {
	row := &credentialRow{
		ID:               uuid.NewString(),
		PrincipalID:      strings.TrimSpace(record.PrincipalID),
		Version:          version,
		AccessToken:      strings.TrimSpace(record.AccessToken),
		RefreshToken:     strings.TrimSpace(record.RefreshToken),
		AccountID:        strings.TrimSpace(record.AccountID),
		Metadata:         copyAnyMap(record.Metadata),
		Status:           credentialStatusActive,
		RevocationReason: "",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !record.ExpiresAt.IsZero() {
		expiresAt := record.ExpiresAt.UTC()
		row.ExpiresAt = &expiresAt
	}
	return row
}

func (r *credentialRow) toDomain() core.CredentialRecord {
	if r == nil {
		return core.CredentialRecord{}
	}
	record := core.CredentialRecord{
		PrincipalID:  r.PrincipalID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		AccountID:    r.AccountID,
		Metadata:     copyAnyMap(r.Metadata),
	}
	if r.ExpiresAt != nil {
		record.ExpiresAt = r.ExpiresAt.UTC()
	}
	return record
}

func copyAnyMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

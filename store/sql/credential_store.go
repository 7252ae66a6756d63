package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-token-broker/core"
	"github.com/uptrace/bun"
)

// CredentialStore is the durable credential source of truth. One row is
// active per principal at a time; Save revokes the active row and inserts
// the next version inside a single transaction, which is what makes the
// record write atomic from a reader's point of view.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRow]
}

func (s *CredentialStore) Save(ctx context.Context, record core.CredentialRecord) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	record = record.Normalize()
	if record.PrincipalID == "" {
		return core.ErrEmptyPrincipalID
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		nextVersion, versionErr := s.nextVersion(ctx, tx, record.PrincipalID)
		if versionErr != nil {
			return versionErr
		}

		if _, updateErr := tx.NewUpdate().
			Model((*credentialRow)(nil)).
			Set("status = ?", credentialStatusRevoked).
			Set("revocation_reason = ?", revocationReasonRotated).
			Set("updated_at = ?", now).
			Where("principal_id = ?", record.PrincipalID).
			Where("status = ?", credentialStatusActive).
			Exec(ctx); updateErr != nil {
			return updateErr
		}

		row := newCredentialRow(record, nextVersion, now)
		if _, createErr := s.repo.CreateTx(ctx, tx, row); createErr != nil {
			return createErr
		}
		return nil
	})
}

func (s *CredentialStore) GetByPrincipal(ctx context.Context, principalID string) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return core.CredentialRecord{}, core.ErrEmptyPrincipalID
	}

	rows, _, err := s.repo.List(ctx,
		repository.SelectBy("principal_id", "=", principalID),
		repository.SelectBy("status", "=", credentialStatusActive),
		repository.OrderBy("version DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	if len(rows) == 0 {
		return core.CredentialRecord{}, core.NewRecordNotFoundError(principalID)
	}
	return rows[0].toDomain(), nil
}

func (s *CredentialStore) Delete(ctx context.Context, principalID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return core.ErrEmptyPrincipalID
	}

	_, err := s.db.NewUpdate().
		Model((*credentialRow)(nil)).
		Set("status = ?", credentialStatusRevoked).
		Set("revocation_reason = ?", revocationReasonRevoked).
		Set("updated_at = ?", time.Now().UTC()).
		Where("principal_id = ?", principalID).
		Where("status = ?", credentialStatusActive).
		Exec(ctx)
	return err
}

// ListExpiring returns active records whose expiry falls at or before the
// given instant, soonest first. The maintenance planner uses this as its
// scan surface; records with no expiry never show up.
func (s *CredentialStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]core.CredentialRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []*credentialRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("status = ?", credentialStatusActive).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", before.UTC()).
		OrderExpr("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]core.CredentialRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}

func (s *CredentialStore) nextVersion(ctx context.Context, tx bun.Tx, principalID string) (int, error) {
	var maxVersion int
	if err := tx.NewSelect().
		Model((*credentialRow)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("?TableAlias.principal_id = ?", principalID).
		Scan(ctx, &maxVersion); err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

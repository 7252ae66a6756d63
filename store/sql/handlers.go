package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func credentialHandlers() repository.ModelHandlers[*credentialRow] {
	return repository.ModelHandlers[*credentialRow]{
		NewRecord: func() *credentialRow {
			return &credentialRow{}
		},
		GetID: func(row *credentialRow) uuid.UUID {
			if row == nil {
				return uuid.Nil
			}
			return parseUUID(row.ID)
		},
		SetID: func(row *credentialRow, id uuid.UUID) {
			if row == nil {
				return
			}
			row.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(row *credentialRow) string {
			if row == nil {
				return ""
			}
			return strings.TrimSpace(row.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

package command

import (
	"strings"

	"github.com/goliatone/go-token-broker/core"
)

const (
	TypeRefresh               = "broker.command.credential.refresh"
	TypeRevoke                = "broker.command.credential.revoke"
	TypeSaveCredential        = "broker.command.credential.save"
	TypeCompleteAuthorization = "broker.command.authorization.complete"
)

type RefreshMessage struct {
	PrincipalID string
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if strings.TrimSpace(m.PrincipalID) == "" {
		return commandValidationError("principal_id", "principal id is required")
	}
	return nil
}

type RevokeMessage struct {
	PrincipalID string
}

func (RevokeMessage) Type() string { return TypeRevoke }

func (m RevokeMessage) Validate() error {
	if strings.TrimSpace(m.PrincipalID) == "" {
		return commandValidationError("principal_id", "principal id is required")
	}
	return nil
}

type SaveCredentialMessage struct {
	Record core.CredentialRecord
}

func (SaveCredentialMessage) Type() string { return TypeSaveCredential }

func (m SaveCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Record.PrincipalID) == "" {
		return commandValidationError("record.principal_id", "principal id is required")
	}
	if strings.TrimSpace(m.Record.AccessToken) == "" {
		return commandValidationError("record.access_token", "access token is required")
	}
	return nil
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Request.PrincipalID) == "" {
		return commandValidationError("request.principal_id", "principal id is required")
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return commandValidationError("request.code", "authorization code is required")
	}
	return nil
}

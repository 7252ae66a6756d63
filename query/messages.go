package query

import (
	"strings"

	"github.com/goliatone/go-token-broker/core"
)

const (
	TypeStartSession       = "broker.query.session.start"
	TypeJoinSession        = "broker.query.session.join"
	TypeBatchJoin          = "broker.query.session.batch_join"
	TypeSetupSession       = "broker.query.session.setup"
	TypeResolveAccessToken = "broker.query.token.resolve"
	TypeCredentialStatus   = "broker.query.credential.status"
)

type StartSessionMessage struct {
	PrincipalID string
}

func (StartSessionMessage) Type() string { return TypeStartSession }

func (m StartSessionMessage) Validate() error {
	if strings.TrimSpace(m.PrincipalID) == "" {
		return queryValidationError("principal_id", "principal id is required")
	}
	return nil
}

type JoinSessionMessage struct {
	PrincipalID string
	ResourceID  string
}

func (JoinSessionMessage) Type() string { return TypeJoinSession }

func (m JoinSessionMessage) Validate() error {
	if strings.TrimSpace(m.PrincipalID) == "" {
		return queryValidationError("principal_id", "principal id is required")
	}
	if strings.TrimSpace(m.ResourceID) == "" {
		return queryValidationError("resource_id", "resource id is required")
	}
	return nil
}

type BatchJoinMessage struct {
	Request core.BatchJoinRequest
}

func (BatchJoinMessage) Type() string { return TypeBatchJoin }

func (m BatchJoinMessage) Validate() error {
	if strings.TrimSpace(m.Request.HostPrincipalID) == "" {
		return queryValidationError("request.host_principal_id", "host principal id is required")
	}
	if strings.TrimSpace(m.Request.ResourceID) == "" {
		return queryValidationError("request.resource_id", "resource id is required")
	}
	return nil
}

type SetupSessionMessage struct {
	Request core.SetupSessionRequest
}

func (SetupSessionMessage) Type() string { return TypeSetupSession }

func (m SetupSessionMessage) Validate() error {
	if strings.TrimSpace(m.Request.HostPrincipalID) == "" {
		return queryValidationError("request.host_principal_id", "host principal id is required")
	}
	if strings.TrimSpace(m.Request.ResourceID) == "" {
		return queryValidationError("request.resource_id", "resource id is required")
	}
	return nil
}

type ResolveAccessTokenMessage struct {
	PrincipalID string
}

func (ResolveAccessTokenMessage) Type() string { return TypeResolveAccessToken }

func (m ResolveAccessTokenMessage) Validate() error {
	if strings.TrimSpace(m.PrincipalID) == "" {
		return queryValidationError("principal_id", "principal id is required")
	}
	return nil
}

type CredentialStatusMessage struct {
	PrincipalID string
}

func (CredentialStatusMessage) Type() string { return TypeCredentialStatus }

func (m CredentialStatusMessage) Validate() error {
	if strings.TrimSpace(m.PrincipalID) == "" {
		return queryValidationError("principal_id", "principal id is required")
	}
	return nil
}

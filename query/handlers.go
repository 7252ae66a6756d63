package query

import (
	"context"

	"github.com/goliatone/go-token-broker/core"
)

type SessionIssuer interface {
	StartSession(ctx context.Context, principalID string) (core.SessionToken, error)
	JoinSession(ctx context.Context, principalID string, resourceID string) (core.SessionToken, error)
	BatchJoin(ctx context.Context, req core.BatchJoinRequest) (core.BatchResult, error)
	SetupSession(ctx context.Context, req core.SetupSessionRequest) (core.SessionSetup, error)
}

type CredentialReader interface {
	ResolveAccessToken(ctx context.Context, principalID string) (string, error)
	CredentialStatus(ctx context.Context, principalID string) (core.CredentialStatusReport, error)
}

type StartSessionQuery struct {
	issuer SessionIssuer
}

func NewStartSessionQuery(issuer SessionIssuer) *StartSessionQuery {
	return &StartSessionQuery{issuer: issuer}
}

func (q *StartSessionQuery) Query(ctx context.Context, msg StartSessionMessage) (core.SessionToken, error) {
	if q == nil || q.issuer == nil {
		return core.SessionToken{}, queryDependencyError("query: session issuer is required")
	}
	return q.issuer.StartSession(ctx, msg.PrincipalID)
}

type JoinSessionQuery struct {
	issuer SessionIssuer
}

func NewJoinSessionQuery(issuer SessionIssuer) *JoinSessionQuery {
	return &JoinSessionQuery{issuer: issuer}
}

func (q *JoinSessionQuery) Query(ctx context.Context, msg JoinSessionMessage) (core.SessionToken, error) {
	if q == nil || q.issuer == nil {
		return core.SessionToken{}, queryDependencyError("query: session issuer is required")
	}
	return q.issuer.JoinSession(ctx, msg.PrincipalID, msg.ResourceID)
}

type BatchJoinQuery struct {
	issuer SessionIssuer
}

func NewBatchJoinQuery(issuer SessionIssuer) *BatchJoinQuery {
	return &BatchJoinQuery{issuer: issuer}
}

func (q *BatchJoinQuery) Query(ctx context.Context, msg BatchJoinMessage) (core.BatchResult, error) {
	if q == nil || q.issuer == nil {
		return core.BatchResult{}, queryDependencyError("query: session issuer is required")
	}
	return q.issuer.BatchJoin(ctx, msg.Request)
}

type SetupSessionQuery struct {
	issuer SessionIssuer
}

func NewSetupSessionQuery(issuer SessionIssuer) *SetupSessionQuery {
	return &SetupSessionQuery{issuer: issuer}
}

func (q *SetupSessionQuery) Query(ctx context.Context, msg SetupSessionMessage) (core.SessionSetup, error) {
	if q == nil || q.issuer == nil {
		return core.SessionSetup{}, queryDependencyError("query: session issuer is required")
	}
	return q.issuer.SetupSession(ctx, msg.Request)
}

type ResolveAccessTokenQuery struct {
	reader CredentialReader
}

func NewResolveAccessTokenQuery(reader CredentialReader) *ResolveAccessTokenQuery {
	return &ResolveAccessTokenQuery{reader: reader}
}

func (q *ResolveAccessTokenQuery) Query(ctx context.Context, msg ResolveAccessTokenMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: credential reader is required")
	}
	return q.reader.ResolveAccessToken(ctx, msg.PrincipalID)
}

type CredentialStatusQuery struct {
	reader CredentialReader
}

func NewCredentialStatusQuery(reader CredentialReader) *CredentialStatusQuery {
	return &CredentialStatusQuery{reader: reader}
}

func (q *CredentialStatusQuery) Query(ctx context.Context, msg CredentialStatusMessage) (core.CredentialStatusReport, error) {
	if q == nil || q.reader == nil {
		return core.CredentialStatusReport{}, queryDependencyError("query: credential reader is required")
	}
	return q.reader.CredentialStatus(ctx, msg.PrincipalID)
}

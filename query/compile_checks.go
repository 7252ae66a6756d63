package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-token-broker/core"
)

var (
	_ gocmd.Querier[StartSessionMessage, core.SessionToken]               = (*StartSessionQuery)(nil)
	_ gocmd.Querier[JoinSessionMessage, core.SessionToken]                = (*JoinSessionQuery)(nil)
	_ gocmd.Querier[BatchJoinMessage, core.BatchResult]                   = (*BatchJoinQuery)(nil)
	_ gocmd.Querier[SetupSessionMessage, core.SessionSetup]               = (*SetupSessionQuery)(nil)
	_ gocmd.Querier[ResolveAccessTokenMessage, string]                    = (*ResolveAccessTokenQuery)(nil)
	_ gocmd.Querier[CredentialStatusMessage, core.CredentialStatusReport] = (*CredentialStatusQuery)(nil)
)

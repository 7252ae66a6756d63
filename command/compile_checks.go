package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RefreshMessage]               = (*RefreshCommand)(nil)
	_ gocmd.Commander[RevokeMessage]                = (*RevokeCommand)(nil)
	_ gocmd.Commander[SaveCredentialMessage]        = (*SaveCredentialCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
)

package sqlstore

import "github.com/goliatone/go-token-broker/core"

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.StoreProvider          = (*Factory)(nil)
	_ core.RepositoryStoreFactory = (*Factory)(nil)
)

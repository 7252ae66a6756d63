package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ BrokerService   = (*Service)(nil)
	_ CredentialStore = (*MemoryCredentialStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

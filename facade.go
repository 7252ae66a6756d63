package tokenbroker

import (
	"fmt"

	brokercommand "github.com/goliatone/go-token-broker/command"
	brokerquery "github.com/goliatone/go-token-broker/query"
)

type CommandQueryService interface {
	brokercommand.MutatingService
	brokerquery.SessionIssuer
	brokerquery.CredentialReader
}

type Commands struct {
	Refresh               *brokercommand.RefreshCommand
	Revoke                *brokercommand.RevokeCommand
	SaveCredential        *brokercommand.SaveCredentialCommand
	CompleteAuthorization *brokercommand.CompleteAuthorizationCommand
}

type Queries struct {
	StartSession       *brokerquery.StartSessionQuery
	JoinSession        *brokerquery.JoinSessionQuery
	BatchJoin          *brokerquery.BatchJoinQuery
	SetupSession       *brokerquery.SetupSessionQuery
	ResolveAccessToken *brokerquery.ResolveAccessTokenQuery
	CredentialStatus   *brokerquery.CredentialStatusQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	credentialReader brokerquery.CredentialReader
}

// WithCredentialReader routes token and status reads through a dedicated
// reader, for hosts that serve read traffic from a replica or cache tier
// while mutations stay on the primary service.
func WithCredentialReader(reader brokerquery.CredentialReader) FacadeOption {
	return func(options *facadeOptions) {
		options.credentialReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tokenbroker: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.credentialReader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Refresh:               brokercommand.NewRefreshCommand(service),
		Revoke:                brokercommand.NewRevokeCommand(service),
		SaveCredential:        brokercommand.NewSaveCredentialCommand(service),
		CompleteAuthorization: brokercommand.NewCompleteAuthorizationCommand(service),
	}
	facade.queries = Queries{
		StartSession:       brokerquery.NewStartSessionQuery(service),
		JoinSession:        brokerquery.NewJoinSessionQuery(service),
		BatchJoin:          brokerquery.NewBatchJoinQuery(service),
		SetupSession:       brokerquery.NewSetupSessionQuery(service),
		ResolveAccessToken: brokerquery.NewResolveAccessTokenQuery(reader),
		CredentialStatus:   brokerquery.NewCredentialStatusQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

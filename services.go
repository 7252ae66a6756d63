package tokenbroker

import "github.com/goliatone/go-token-broker/core"

type Config = core.Config

type AuthorityConfig = core.AuthorityConfig
type ResourceAPIConfig = core.ResourceAPIConfig
type CacheConfig = core.CacheConfig
type BatchConfig = core.BatchConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type CredentialStore = core.CredentialStore
type AuthorityClient = core.AuthorityClient
type ResourceClient = core.ResourceClient
type MetricsRecorder = core.MetricsRecorder

type CredentialRecord = core.CredentialRecord
type SessionToken = core.SessionToken
type TokenGrant = core.TokenGrant
type TokenType = core.TokenType

type BatchJoinRequest = core.BatchJoinRequest
type BatchToken = core.BatchToken
type BatchFailure = core.BatchFailure
type BatchResult = core.BatchResult

type SetupSessionRequest = core.SetupSessionRequest
type SessionSetup = core.SessionSetup

type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest

type CredentialStatusReport = core.CredentialStatusReport

const ServicePrincipalID = core.ServicePrincipalID

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithCredentialStore   = core.WithCredentialStore
	WithAuthorityClient   = core.WithAuthorityClient
	WithResourceClient    = core.WithResourceClient
	WithNowFunc           = core.WithNowFunc
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

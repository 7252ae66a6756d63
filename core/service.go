package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	credentialStore   CredentialStore
	authorityClient   AuthorityClient
	resourceClient    ResourceClient
	nowFn             func() time.Time
	cache             *credentialCache
	refreshFlight     singleflight.Group
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	CredentialStore   CredentialStore
	AuthorityClient   AuthorityClient
	ResourceClient    ResourceClient
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("token-broker", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("token-broker"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.credentialStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.credentialStore = storeProvider.CredentialStore()
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.credentialStore = storeProvider.CredentialStore()
		}
	}
	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		credentialStore:   builder.credentialStore,
		authorityClient:   builder.authorityClient,
		resourceClient:    builder.resourceClient,
		nowFn:             builder.nowFn,
		cache:             newCredentialCache(),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		CredentialStore:   s.credentialStore,
		AuthorityClient:   s.authorityClient,
		ResourceClient:    s.resourceClient,
	}
}

// StartSession mints a host token for the principal so they can open a
// session on the resource API.
func (s *Service) StartSession(ctx context.Context, principalID string) (token SessionToken, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
		"token_type":   string(TokenTypeHost),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "start_session", err, fields)
	}()

	if s == nil {
		return SessionToken{}, fmt.Errorf("core: service is nil")
	}
	token, err = s.issueHostToken(ctx, principalID)
	return token, err
}

// JoinSession mints a token scoped to one resource for the principal.
func (s *Service) JoinSession(ctx context.Context, principalID string, resourceID string) (token SessionToken, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
		"resource_id":  resourceID,
		"token_type":   string(TokenTypeScoped),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "join_session", err, fields)
	}()

	if s == nil {
		return SessionToken{}, fmt.Errorf("core: service is nil")
	}
	token, err = s.issueScopedToken(ctx, principalID, resourceID)
	return token, err
}

// CompleteAuthorization exchanges an authorization code for the principal's
// first credential record and persists it. Subsequent bearers come from the
// refresh path, not from here.
func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (record CredentialRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": req.PrincipalID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	if s == nil {
		return CredentialRecord{}, fmt.Errorf("core: service is nil")
	}
	principalID := strings.TrimSpace(req.PrincipalID)
	if principalID == "" {
		err = s.mapError(ErrEmptyPrincipalID)
		return CredentialRecord{}, err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		err = NewInvalidArgumentError("core: authorization code is required")
		return CredentialRecord{}, err
	}
	if s.authorityClient == nil {
		err = s.mapError(fmt.Errorf("core: authority client is not configured"))
		return CredentialRecord{}, err
	}

	grant, err := s.authorityClient.ExchangeCode(ctx, code, strings.TrimSpace(req.RedirectURI))
	if err != nil {
		err = s.mapError(err)
		return CredentialRecord{}, err
	}

	record = CredentialRecord{
		PrincipalID:  principalID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    ExpiresAtFromGrant(s.now(), grant),
		AccountID:    req.AccountID,
		Metadata:     copyAnyMap(req.Metadata),
	}.Normalize()

	if err = s.credentialStore.Save(ctx, record); err != nil {
		err = s.mapError(err)
		return CredentialRecord{}, err
	}
	s.cache.set(record)
	return record, nil
}

// SaveCredential installs or replaces a record directly, bypassing the
// authority. Used to seed account anchors and migrate existing credentials.
func (s *Service) SaveCredential(ctx context.Context, record CredentialRecord) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": record.PrincipalID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "save_credential", err, fields)
	}()

	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	record = record.Normalize()
	if record.PrincipalID == "" {
		err = s.mapError(ErrEmptyPrincipalID)
		return err
	}
	// A record must carry something resolvable: its own bearer or at least
	// the external account anchor for the shared-bearer flavor.
	if record.AccessToken == "" && record.RefreshToken == "" && record.AccountID == "" {
		err = s.mapError(ErrIncompleteCredential)
		return err
	}
	if record.AccessToken != "" && record.ExpiresAt.IsZero() {
		err = s.mapError(ErrIncompleteCredential)
		return err
	}

	if err = s.credentialStore.Save(ctx, record); err != nil {
		err = s.mapError(err)
		return err
	}
	s.cache.set(record)
	return nil
}

// RevokeCredential deletes the principal's record and evicts the in-process
// mirror entry. Scoped tokens already issued stay valid until they expire.
func (s *Service) RevokeCredential(ctx context.Context, principalID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke_credential", err, fields)
	}()

	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		err = s.mapError(ErrEmptyPrincipalID)
		return err
	}

	if err = s.credentialStore.Delete(ctx, principalID); err != nil {
		err = s.mapError(err)
		return err
	}
	s.cache.delete(principalID)
	return nil
}

// CredentialStatus reports on the durable record without touching the
// authority. A missing record is a regular report, not an error.
func (s *Service) CredentialStatus(ctx context.Context, principalID string) (report CredentialStatusReport, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "credential_status", err, fields)
	}()

	if s == nil {
		return CredentialStatusReport{}, fmt.Errorf("core: service is nil")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		err = s.mapError(ErrEmptyPrincipalID)
		return CredentialStatusReport{}, err
	}

	record, found, lookupErr := s.lookupDurableRecord(ctx, principalID)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return CredentialStatusReport{}, err
	}
	report = CredentialStatusReport{
		PrincipalID: principalID,
		Exists:      found,
	}
	if !found {
		return report, nil
	}

	report.Freshness = ResolveFreshness(s.now(), record, s.refreshLeadWindow(), s.expiringSoonWindow())
	report.ExpiresAt = record.ExpiresAt
	report.Refreshable = record.Refreshable()
	report.AccountID = record.AccountID
	return report, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

var _ BrokerService = (*Service)(nil)

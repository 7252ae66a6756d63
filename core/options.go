package core

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
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
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithAuthorityClient(client AuthorityClient) Option {
	return func(b *serviceBuilder) {
		b.authorityClient = client
	}
}

func WithResourceClient(client ResourceClient) Option {
	return func(b *serviceBuilder) {
		b.resourceClient = client
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.nowFn = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("token-broker", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return brokerErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := maps.Clone(l.Values)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver merges the three configuration scopes with go-options.
// Runtime overrides loaded config, loaded config overrides defaults, and
// only the defaults scope contributes zero values.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	scopes := []struct {
		name     string
		priority int
		values   map[string]any
	}{
		{"defaults", 0, configToLayerMap(defaults, true)},
		{"config", 10, configToLayerMap(loaded, false)},
		{"runtime", 20, configToLayerMap(runtime, false)},
	}

	layers := make([]opts.Layer[map[string]any], 0, len(scopes))
	for _, scope := range scopes {
		layers = append(layers, opts.NewLayer(
			opts.NewScope(scope.name, scope.priority),
			scope.values,
			opts.WithSnapshotID[map[string]any](scope.name),
		))
	}

	stack, err := opts.NewStack(layers...)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// configToLayerMap flattens a Config into the nested key layout the
// resolver stacks merge on. Zero values are skipped unless includeZero is
// set, so sparse override layers only claim the keys they actually carry.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)

	authority := map[string]any{}
	putString(authority, "base_url", cfg.Authority.BaseURL, includeZero)
	putString(authority, "token_path", cfg.Authority.TokenPath, includeZero)
	putString(authority, "client_id", cfg.Authority.ClientID, includeZero)
	putString(authority, "client_secret", cfg.Authority.ClientSecret, includeZero)
	putString(authority, "account_id", cfg.Authority.AccountID, includeZero)
	putDuration(authority, "timeout", cfg.Authority.Timeout, includeZero)
	putSection(layer, "authority", authority)

	resourceAPI := map[string]any{}
	putString(resourceAPI, "base_url", cfg.ResourceAPI.BaseURL, includeZero)
	putDuration(resourceAPI, "timeout", cfg.ResourceAPI.Timeout, includeZero)
	putSection(layer, "resource_api", resourceAPI)

	cache := map[string]any{}
	putDuration(cache, "refresh_lead_window", cfg.Cache.RefreshLeadWindow, includeZero)
	putDuration(cache, "expiring_soon_window", cfg.Cache.ExpiringSoonWindow, includeZero)
	putSection(layer, "cache", cache)

	batch := map[string]any{}
	putCount(batch, "max_concurrency", cfg.Batch.MaxConcurrency, includeZero)
	putSection(layer, "batch", batch)

	return layer
}

func putString(section map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putDuration(section map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value > 0 {
		section[key] = value
	}
}

func putCount(section map[string]any, key string, value int, includeZero bool) {
	if includeZero || value > 0 {
		section[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

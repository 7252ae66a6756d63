package core

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestCfgxConfigProvider_MergesLoadedValuesOverDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"authority": map[string]any{
			"base_url":  "https://authority.example.com",
			"client_id": "client-1",
		},
		"cache": map[string]any{
			"refresh_lead_window": 45 * time.Minute,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Authority.BaseURL != "https://authority.example.com" {
		t.Fatalf("expected loaded authority base url, got %q", cfg.Authority.BaseURL)
	}
	if cfg.Authority.ClientID != "client-1" {
		t.Fatalf("expected loaded client id, got %q", cfg.Authority.ClientID)
	}
	if cfg.Authority.TokenPath != "/oauth/token" {
		t.Fatalf("expected default token path to survive merge, got %q", cfg.Authority.TokenPath)
	}
	if cfg.Cache.RefreshLeadWindow != 45*time.Minute {
		t.Fatalf("expected loaded refresh lead window, got %s", cfg.Cache.RefreshLeadWindow)
	}
	if cfg.Batch.MaxConcurrency != DefaultBatchConcurrency {
		t.Fatalf("expected default batch concurrency to survive merge, got %d", cfg.Batch.MaxConcurrency)
	}
}

func TestGoOptionsResolver_RuntimeWinsOverConfig(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-config",
		Authority:   AuthorityConfig{BaseURL: "https://config.example.com"},
	}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name to win, got %q", resolved.ServiceName)
	}
	if resolved.Authority.BaseURL != "https://config.example.com" {
		t.Fatalf("expected config layer base url, got %q", resolved.Authority.BaseURL)
	}
	if resolved.Authority.TokenPath != "/oauth/token" {
		t.Fatalf("expected default token path, got %q", resolved.Authority.TokenPath)
	}
	if resolved.Cache.RefreshLeadWindow != DefaultRefreshLeadWindow {
		t.Fatalf("expected default refresh lead window, got %s", resolved.Cache.RefreshLeadWindow)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"authority": map[string]any{
			"account_id": "acct-from-config",
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Authority.AccountID != "acct-from-config" {
		t.Fatalf("expected config layer account id, got %q", cfg.Authority.AccountID)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := newLoggerProbe()
	customProvider := stubLoggerProvider{logger: customLogger}
	customMapper := func(err error) *goerrors.Error {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "mapped").WithTextCode("MAPPED")
	}
	persistenceClient := &struct{ Name string }{Name: "persistence"}
	repositoryFactory := &struct{ Name string }{Name: "repo"}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved"}}
	store := NewMemoryCredentialStore()
	authority := &stubAuthorityClient{}
	resource := &stubResourceClient{}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithPersistenceClient(persistenceClient),
		WithRepositoryFactory(repositoryFactory),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithCredentialStore(store),
		WithAuthorityClient(authority),
		WithResourceClient(resource),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != Logger(customLogger) {
		t.Fatalf("expected custom logger override")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected custom logger provider override")
	}
	if resolved := deps.LoggerProvider.GetLogger("token-broker.override"); resolved != Logger(customLogger) {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.PersistenceClient != any(persistenceClient) {
		t.Fatalf("expected custom persistence client override")
	}
	if deps.RepositoryFactory != any(repositoryFactory) {
		t.Fatalf("expected custom repository factory override")
	}
	if deps.ConfigProvider != ConfigProvider(configProvider) {
		t.Fatalf("expected custom config provider override")
	}
	if deps.OptionsResolver != OptionsResolver(optionsResolver) {
		t.Fatalf("expected custom options resolver override")
	}
	if deps.CredentialStore != CredentialStore(store) {
		t.Fatalf("expected custom credential store override")
	}
	if deps.AuthorityClient != AuthorityClient(authority) {
		t.Fatalf("expected custom authority client override")
	}
	if deps.ResourceClient != ResourceClient(resource) {
		t.Fatalf("expected custom resource client override")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}

	_, joinErr := svc.JoinSession(context.Background(), "p1", "")
	if joinErr == nil {
		t.Fatalf("expected join session failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(joinErr, &richErr) || richErr.TextCode != "MAPPED" {
		t.Fatalf("expected custom error mapper to run, got %v", joinErr)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults pass", mutate: func(*Config) {}},
		{name: "blank service name", mutate: func(c *Config) { c.ServiceName = "  " }, wantErr: true},
		{name: "negative lead window", mutate: func(c *Config) { c.Cache.RefreshLeadWindow = -time.Minute }, wantErr: true},
		{name: "negative expiring soon window", mutate: func(c *Config) { c.Cache.ExpiringSoonWindow = -time.Second }, wantErr: true},
		{name: "negative batch concurrency", mutate: func(c *Config) { c.Batch.MaxConcurrency = -1 }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

package core

import (
	"fmt"
	"strings"
	"time"
)

type AuthorityConfig struct {
	BaseURL      string        `koanf:"base_url" mapstructure:"base_url"`
	TokenPath    string        `koanf:"token_path" mapstructure:"token_path"`
	ClientID     string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string        `koanf:"client_secret" mapstructure:"client_secret"`
	AccountID    string        `koanf:"account_id" mapstructure:"account_id"`
	Timeout      time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type ResourceAPIConfig struct {
	BaseURL string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type CacheConfig struct {
	RefreshLeadWindow  time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`
	ExpiringSoonWindow time.Duration `koanf:"expiring_soon_window" mapstructure:"expiring_soon_window"`
}

type BatchConfig struct {
	MaxConcurrency int `koanf:"max_concurrency" mapstructure:"max_concurrency"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Authority   AuthorityConfig   `koanf:"authority" mapstructure:"authority"`
	ResourceAPI ResourceAPIConfig `koanf:"resource_api" mapstructure:"resource_api"`
	Cache       CacheConfig       `koanf:"cache" mapstructure:"cache"`
	Batch       BatchConfig       `koanf:"batch" mapstructure:"batch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "token-broker",
		Authority: AuthorityConfig{
			TokenPath: "/oauth/token",
		},
		Cache: CacheConfig{
			RefreshLeadWindow:  DefaultRefreshLeadWindow,
			ExpiringSoonWindow: DefaultExpiringSoonWindow,
		},
		Batch: BatchConfig{
			MaxConcurrency: DefaultBatchConcurrency,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Cache.RefreshLeadWindow < 0 {
		return fmt.Errorf("core: cache.refresh_lead_window must not be negative")
	}
	if c.Cache.ExpiringSoonWindow < 0 {
		return fmt.Errorf("core: cache.expiring_soon_window must not be negative")
	}
	if c.Batch.MaxConcurrency < 0 {
		return fmt.Errorf("core: batch.max_concurrency must not be negative")
	}
	if c.Authority.Timeout < 0 {
		return fmt.Errorf("core: authority.timeout must not be negative")
	}
	if c.ResourceAPI.Timeout < 0 {
		return fmt.Errorf("core: resource_api.timeout must not be negative")
	}
	return nil
}

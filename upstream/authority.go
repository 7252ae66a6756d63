package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-token-broker/core"
)

// Authority speaks the upstream OAuth token endpoint. Every grant is one
// form-encoded POST with client basic auth; nothing here retries.
//
// A 4xx answer means the authority definitively refused the grant and maps
// to an upstream-rejected error. A 5xx answer, a 429, a transport failure,
// or an undecodable success all map to upstream-unavailable, the only kind
// callers may retry.
type Authority struct {
	config core.AuthorityConfig
	client HTTPDoer
}

func NewAuthority(cfg core.AuthorityConfig, client HTTPDoer) *Authority {
	if client == nil {
		client = defaultHTTPClient(cfg.Timeout)
	}
	return &Authority{config: cfg, client: client}
}

func (a *Authority) ExchangeCode(ctx context.Context, code string, redirectURI string) (core.TokenGrant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenGrant{}, core.NewInvalidArgumentError("upstream: authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	return a.requestGrant(ctx, form)
}

func (a *Authority) RefreshGrant(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, core.NewInvalidArgumentError("upstream: refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return a.requestGrant(ctx, form)
}

func (a *Authority) AccountGrant(ctx context.Context, accountID string) (core.TokenGrant, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return core.TokenGrant{}, core.NewInvalidArgumentError("upstream: account id is required")
	}
	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", accountID)
	return a.requestGrant(ctx, form)
}

type grantPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type oauthErrorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Reason           string `json:"reason"`
}

func (a *Authority) requestGrant(ctx context.Context, form url.Values) (core.TokenGrant, error) {
	if a == nil || a.client == nil {
		return core.TokenGrant{}, core.NewUpstreamUnavailableError(nil, "upstream: authority client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint, err := a.tokenEndpoint()
	if err != nil {
		return core.TokenGrant{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return core.TokenGrant{}, core.NewInvalidArgumentError(fmt.Sprintf("upstream: build token request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(a.config.ClientID, a.config.ClientSecret)

	res, err := a.client.Do(req)
	if err != nil {
		return core.TokenGrant{}, core.NewUpstreamUnavailableError(err, "upstream: authority request failed")
	}
	defer res.Body.Close()

	body, err := readLimitedBody(res.Body, defaultResponseBodyLimit)
	if err != nil {
		return core.TokenGrant{}, core.NewUpstreamUnavailableError(err, "upstream: read authority response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.TokenGrant{}, classifyGrantFailure(res.StatusCode, body, form.Get("grant_type"))
	}

	var payload grantPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.TokenGrant{}, core.NewUpstreamUnavailableError(err, "upstream: decode authority response")
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenGrant{}, core.NewUpstreamUnavailableError(nil, "upstream: authority response carries no access token")
	}
	return core.TokenGrant{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

func (a *Authority) tokenEndpoint() (string, error) {
	base := strings.TrimSpace(a.config.BaseURL)
	if base == "" {
		return "", core.NewInvalidArgumentError("upstream: authority base url is required")
	}
	path := strings.TrimSpace(a.config.TokenPath)
	if path == "" {
		path = "/oauth/token"
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func classifyGrantFailure(statusCode int, body []byte, grantType string) error {
	metadata := map[string]any{
		"status_code": statusCode,
		"grant_type":  grantType,
	}
	var payload oauthErrorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if code := strings.TrimSpace(payload.Error); code != "" {
			metadata["oauth_error"] = code
		}
		reason := strings.TrimSpace(payload.ErrorDescription)
		if reason == "" {
			reason = strings.TrimSpace(payload.Reason)
		}
		if reason != "" {
			metadata["oauth_reason"] = reason
		}
	}
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return core.NewUpstreamUnavailableError(
			nil,
			fmt.Sprintf("upstream: authority answered %d", statusCode),
		).WithMetadata(metadata)
	}
	return core.NewUpstreamRejectedError(
		fmt.Sprintf("upstream: authority rejected the %s grant", grantType),
		metadata,
	)
}

var _ core.AuthorityClient = (*Authority)(nil)

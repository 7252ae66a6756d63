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

// ResourceAPI fetches host and scoped session tokens from the per-account
// token endpoint, presenting a resolved bearer secret. Issued tokens are
// returned to the caller verbatim and never cached here.
type ResourceAPI struct {
	config core.ResourceAPIConfig
	client HTTPDoer
}

func NewResourceAPI(cfg core.ResourceAPIConfig, client HTTPDoer) *ResourceAPI {
	if client == nil {
		client = defaultHTTPClient(cfg.Timeout)
	}
	return &ResourceAPI{config: cfg, client: client}
}

func (r *ResourceAPI) HostToken(ctx context.Context, accessToken string, accountID string) (string, error) {
	query := url.Values{}
	query.Set("type", "host")
	return r.fetchToken(ctx, accessToken, accountID, query, "host")
}

func (r *ResourceAPI) ScopedToken(ctx context.Context, accessToken string, accountID string, resourceID string) (string, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return "", core.NewInvalidArgumentError("upstream: resource id is required")
	}
	query := url.Values{}
	query.Set("type", "scoped")
	query.Set("resource_id", resourceID)
	return r.fetchToken(ctx, accessToken, accountID, query, "scoped")
}

type tokenPayload struct {
	Token string `json:"token"`
}

func (r *ResourceAPI) fetchToken(ctx context.Context, accessToken string, accountID string, query url.Values, tokenType string) (string, error) {
	if r == nil || r.client == nil {
		return "", core.NewUpstreamUnavailableError(nil, "upstream: resource client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", core.NewInvalidArgumentError("upstream: access token is required")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", core.NewInvalidArgumentError("upstream: account id is required")
	}
	base := strings.TrimSpace(r.config.BaseURL)
	if base == "" {
		return "", core.NewInvalidArgumentError("upstream: resource api base url is required")
	}

	endpoint := strings.TrimRight(base, "/") + "/users/" + url.PathEscape(accountID) + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", core.NewInvalidArgumentError(fmt.Sprintf("upstream: build token request: %v", err))
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := r.client.Do(req)
	if err != nil {
		return "", core.NewUpstreamUnavailableError(err, "upstream: resource api request failed")
	}
	defer res.Body.Close()

	body, err := readLimitedBody(res.Body, defaultResponseBodyLimit)
	if err != nil {
		return "", core.NewUpstreamUnavailableError(err, "upstream: read resource api response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", classifyTokenFailure(res.StatusCode, accountID, tokenType)
	}

	var payload tokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", core.NewUpstreamUnavailableError(err, "upstream: decode resource api response")
	}
	token := strings.TrimSpace(payload.Token)
	if token == "" {
		return "", core.NewUpstreamUnavailableError(nil, "upstream: resource api response carries no token")
	}
	return token, nil
}

func classifyTokenFailure(statusCode int, accountID string, tokenType string) error {
	metadata := map[string]any{
		"status_code": statusCode,
		"account_id":  accountID,
		"token_type":  tokenType,
	}
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return core.NewUpstreamUnavailableError(
			nil,
			fmt.Sprintf("upstream: resource api answered %d", statusCode),
		).WithMetadata(metadata)
	}
	return core.NewUpstreamRejectedError(
		fmt.Sprintf("upstream: resource api refused the %s token request", tokenType),
		metadata,
	)
}

var _ core.ResourceClient = (*ResourceAPI)(nil)

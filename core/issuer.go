package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IssueHostToken exchanges the principal's bearer for a short-lived host
// session token. The external account id always comes off the stored record.
func (s *Service) IssueHostToken(ctx context.Context, principalID string) (token SessionToken, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
		"token_type":   string(TokenTypeHost),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "issue_host_token", err, fields)
	}()

	if s == nil {
		return SessionToken{}, fmt.Errorf("core: service is nil")
	}
	token, err = s.issueHostToken(ctx, principalID)
	return token, err
}

// IssueScopedToken exchanges the principal's bearer for a session token bound
// to one resource. Scoped tokens are never cached, every call reaches the
// resource API.
func (s *Service) IssueScopedToken(ctx context.Context, principalID string, resourceID string) (token SessionToken, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"principal_id": principalID,
		"resource_id":  resourceID,
		"token_type":   string(TokenTypeScoped),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "issue_scoped_token", err, fields)
	}()

	if s == nil {
		return SessionToken{}, fmt.Errorf("core: service is nil")
	}
	token, err = s.issueScopedToken(ctx, principalID, resourceID)
	return token, err
}

func (s *Service) issueHostToken(ctx context.Context, principalID string) (SessionToken, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return SessionToken{}, s.mapError(ErrEmptyPrincipalID)
	}
	if s.resourceClient == nil {
		return SessionToken{}, s.mapError(fmt.Errorf("core: resource client is not configured"))
	}

	resolved, err := s.resolveCredential(ctx, principalID)
	if err != nil {
		s.emitIssuanceFailure(ctx, principalID, "", TokenTypeHost, err)
		return SessionToken{}, err
	}
	accountID := strings.TrimSpace(resolved.Record.AccountID)
	if accountID == "" {
		err = NewUnauthenticatedError(principalID)
		s.emitIssuanceFailure(ctx, principalID, "", TokenTypeHost, err)
		return SessionToken{}, err
	}

	value, err := s.resourceClient.HostToken(ctx, resolved.AccessToken, accountID)
	if err != nil {
		mapped := s.mapError(err)
		s.emitIssuanceFailure(ctx, principalID, "", TokenTypeHost, mapped)
		return SessionToken{}, mapped
	}
	token, err := NewHostToken(principalID, value)
	if err != nil {
		return SessionToken{}, s.mapError(err)
	}
	return token, nil
}

func (s *Service) issueScopedToken(ctx context.Context, principalID string, resourceID string) (SessionToken, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return SessionToken{}, s.mapError(ErrEmptyPrincipalID)
	}
	// Validated before any store or upstream traffic.
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return SessionToken{}, s.mapError(ErrEmptyResourceID)
	}
	if s.resourceClient == nil {
		return SessionToken{}, s.mapError(fmt.Errorf("core: resource client is not configured"))
	}

	resolved, err := s.resolveCredential(ctx, principalID)
	if err != nil {
		s.emitIssuanceFailure(ctx, principalID, resourceID, TokenTypeScoped, err)
		return SessionToken{}, err
	}
	accountID := strings.TrimSpace(resolved.Record.AccountID)
	if accountID == "" {
		err = NewUnauthenticatedError(principalID)
		s.emitIssuanceFailure(ctx, principalID, resourceID, TokenTypeScoped, err)
		return SessionToken{}, err
	}

	value, err := s.resourceClient.ScopedToken(ctx, resolved.AccessToken, accountID, resourceID)
	if err != nil {
		mapped := s.mapError(err)
		s.emitIssuanceFailure(ctx, principalID, resourceID, TokenTypeScoped, mapped)
		return SessionToken{}, mapped
	}
	token, err := NewScopedToken(principalID, resourceID, value)
	if err != nil {
		return SessionToken{}, s.mapError(err)
	}
	return token, nil
}

func (s *Service) emitIssuanceFailure(ctx context.Context, principalID string, resourceID string, tokenType TokenType, err error) {
	fields := map[string]any{
		"principal_id": principalID,
		"token_type":   string(tokenType),
	}
	if resourceID != "" {
		fields["resource_id"] = resourceID
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["kind"] = FailureKind(err)
	}
	s.emitEvent(ctx, "issuance_failed", fields)
}

package core

import (
	"context"
	"sync"
	"time"
)

type stubAuthorityClient struct {
	mu            sync.Mutex
	exchangeCalls []string
	refreshCalls  []string
	accountCalls  []string
	exchangeGrant TokenGrant
	refreshGrant  TokenGrant
	accountGrant  TokenGrant
	exchangeErr   error
	refreshErr    error
	accountErr    error
	refreshDelay  time.Duration
}

func (c *stubAuthorityClient) ExchangeCode(_ context.Context, code string, _ string) (TokenGrant, error) {
	c.mu.Lock()
	c.exchangeCalls = append(c.exchangeCalls, code)
	c.mu.Unlock()
	if c.exchangeErr != nil {
		return TokenGrant{}, c.exchangeErr
	}
	return c.exchangeGrant, nil
}

func (c *stubAuthorityClient) RefreshGrant(_ context.Context, refreshToken string) (TokenGrant, error) {
	c.mu.Lock()
	c.refreshCalls = append(c.refreshCalls, refreshToken)
	delay := c.refreshDelay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if c.refreshErr != nil {
		return TokenGrant{}, c.refreshErr
	}
	return c.refreshGrant, nil
}

func (c *stubAuthorityClient) AccountGrant(_ context.Context, accountID string) (TokenGrant, error) {
	c.mu.Lock()
	c.accountCalls = append(c.accountCalls, accountID)
	c.mu.Unlock()
	if c.accountErr != nil {
		return TokenGrant{}, c.accountErr
	}
	return c.accountGrant, nil
}

func (c *stubAuthorityClient) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refreshCalls)
}

func (c *stubAuthorityClient) accountCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.accountCalls)
}

func (c *stubAuthorityClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchangeCalls) + len(c.refreshCalls) + len(c.accountCalls)
}

type resourceCall struct {
	accessToken string
	accountID   string
	resourceID  string
}

type stubResourceClient struct {
	mu          sync.Mutex
	hostCalls   []resourceCall
	scopedCalls []resourceCall
	hostErr     error
	scopedErrs  map[string]error
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func (c *stubResourceClient) HostToken(_ context.Context, accessToken string, accountID string) (string, error) {
	c.enter()
	defer c.exit()
	c.mu.Lock()
	c.hostCalls = append(c.hostCalls, resourceCall{accessToken: accessToken, accountID: accountID})
	err := c.hostErr
	delay := c.delay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return "host-" + accountID, nil
}

func (c *stubResourceClient) ScopedToken(_ context.Context, accessToken string, accountID string, resourceID string) (string, error) {
	c.enter()
	defer c.exit()
	c.mu.Lock()
	c.scopedCalls = append(c.scopedCalls, resourceCall{accessToken: accessToken, accountID: accountID, resourceID: resourceID})
	err := c.scopedErrs[accountID]
	delay := c.delay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return "scoped-" + accountID + "-" + resourceID, nil
}

func (c *stubResourceClient) enter() {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()
}

func (c *stubResourceClient) exit() {
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

func (c *stubResourceClient) hostCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hostCalls)
}

func (c *stubResourceClient) scopedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopedCalls)
}

func (c *stubResourceClient) peakConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

type countingCredentialStore struct {
	inner   CredentialStore
	mu      sync.Mutex
	gets    int
	saves   int
	deletes int
}

func newCountingCredentialStore(inner CredentialStore) *countingCredentialStore {
	return &countingCredentialStore{inner: inner}
}

func (s *countingCredentialStore) Save(ctx context.Context, record CredentialRecord) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.inner.Save(ctx, record)
}

func (s *countingCredentialStore) GetByPrincipal(ctx context.Context, principalID string) (CredentialRecord, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.inner.GetByPrincipal(ctx, principalID)
}

func (s *countingCredentialStore) Delete(ctx context.Context, principalID string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.inner.Delete(ctx, principalID)
}

func (s *countingCredentialStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *countingCredentialStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testRecord(principalID string, expiresAt time.Time) CredentialRecord {
	return CredentialRecord{
		PrincipalID:  principalID,
		AccessToken:  "bearer-" + principalID,
		RefreshToken: "refresh-" + principalID,
		ExpiresAt:    expiresAt,
		AccountID:    "acct-" + principalID,
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

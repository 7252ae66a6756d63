package tokenbroker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tokenbroker "github.com/goliatone/go-token-broker"
	brokercommand "github.com/goliatone/go-token-broker/command"
	"github.com/goliatone/go-token-broker/core"
	brokerquery "github.com/goliatone/go-token-broker/query"
)

func TestDownstreamComposition_FullSessionLifecycleOverRootSurface(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	store := tokenbroker.NewMemoryCredentialStore()
	authority := &compositionAuthority{grant: core.TokenGrant{
		AccessToken:  "renewed-bearer",
		RefreshToken: "rotated-refresh",
		ExpiresIn:    3600,
	}}
	resources := newCompositionResourceAPI("acct-gamma")

	svc, err := tokenbroker.NewService(tokenbroker.DefaultConfig(),
		tokenbroker.WithCredentialStore(store),
		tokenbroker.WithAuthorityClient(authority),
		tokenbroker.WithResourceClient(resources),
		tokenbroker.WithNowFunc(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := tokenbroker.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	ctx := context.Background()
	seed := func(principalID, accountID, bearer string, expiresAt time.Time, refreshToken string) {
		t.Helper()
		if err := facade.Commands().SaveCredential.Execute(ctx, brokercommand.SaveCredentialMessage{
			Record: core.CredentialRecord{
				PrincipalID:  principalID,
				AccessToken:  bearer,
				RefreshToken: refreshToken,
				ExpiresAt:    expiresAt,
				AccountID:    accountID,
			},
		}); err != nil {
			t.Fatalf("seed %s: %v", principalID, err)
		}
	}
	seed("User/alpha", "acct-alpha", "alpha-bearer", now.Add(time.Hour), "")
	seed("User/beta", "acct-beta", "beta-bearer", now.Add(time.Minute), "beta-refresh")
	seed("User/gamma", "acct-gamma", "gamma-bearer", now.Add(time.Hour), "")

	// The stale credential sits inside the read buffer, so resolving it
	// refreshes through the authority before a bearer is handed out.
	token, err := facade.Queries().ResolveAccessToken.Query(ctx, brokerquery.ResolveAccessTokenMessage{
		PrincipalID: "User/beta",
	})
	if err != nil {
		t.Fatalf("resolve access token: %v", err)
	}
	if token != "renewed-bearer" {
		t.Fatalf("expected renewed bearer, got %q", token)
	}
	if authority.refreshCalls() != 1 || authority.refreshedWith() != "beta-refresh" {
		t.Fatalf("expected one refresh with the stored refresh token")
	}

	record, err := store.GetByPrincipal(ctx, "User/beta")
	if err != nil {
		t.Fatalf("load refreshed record: %v", err)
	}
	if record.RefreshToken != "rotated-refresh" {
		t.Fatalf("expected rotated refresh token persisted, got %q", record.RefreshToken)
	}
	if !record.ExpiresAt.Equal(now.Add(3600 * time.Second)) {
		t.Fatalf("unexpected refreshed expiry: %s", record.ExpiresAt)
	}

	setup, err := facade.Queries().SetupSession.Query(ctx, brokerquery.SetupSessionMessage{
		Request: core.SetupSessionRequest{
			HostPrincipalID: "User/alpha",
			ResourceID:      "node-7",
			Participants:    []string{"User/beta", "User/gamma"},
		},
	})
	if err != nil {
		t.Fatalf("setup session: %v", err)
	}
	if setup.Host.Type != core.TokenTypeHost || setup.Host.Value != "host(acct-alpha)" {
		t.Fatalf("unexpected host token: %#v", setup.Host)
	}

	batch := setup.Batch
	if batch.BatchID == "" {
		t.Fatalf("expected batch id")
	}
	if len(batch.Succeeded) != 1 || batch.Succeeded[0].PrincipalID != "User/beta" {
		t.Fatalf("unexpected batch successes: %#v", batch.Succeeded)
	}
	scoped := batch.Succeeded[0].Token
	if scoped.Type != core.TokenTypeScoped || scoped.ResourceID != "node-7" ||
		scoped.Value != "scoped(acct-beta:node-7)" {
		t.Fatalf("unexpected scoped token: %#v", scoped)
	}
	if len(batch.Failed) != 1 || batch.Failed[0].PrincipalID != "User/gamma" || batch.Failed[0].Kind == "" {
		t.Fatalf("unexpected batch failures: %#v", batch.Failed)
	}

	// The fresh host and the already-renewed participant never touch the
	// authority again.
	if authority.refreshCalls() != 1 {
		t.Fatalf("expected a single refresh overall, got %d", authority.refreshCalls())
	}

	// Scoped issuance is never cached: joining again reaches the resource
	// API again.
	before := resources.scopedCallsFor("acct-beta")
	if _, err := facade.Queries().JoinSession.Query(ctx, brokerquery.JoinSessionMessage{
		PrincipalID: "User/beta",
		ResourceID:  "node-7",
	}); err != nil {
		t.Fatalf("join session: %v", err)
	}
	if resources.scopedCallsFor("acct-beta") != before+1 {
		t.Fatalf("expected scoped issuance per join, got %d calls", resources.scopedCallsFor("acct-beta"))
	}

	// Host gate: an unknown host fails the whole setup before any
	// participant issuance starts.
	resources.resetScopedCalls()
	if _, err := facade.Queries().SetupSession.Query(ctx, brokerquery.SetupSessionMessage{
		Request: core.SetupSessionRequest{
			HostPrincipalID: "User/ghost",
			ResourceID:      "node-7",
			Participants:    []string{"User/beta"},
		},
	}); !core.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated host gate failure, got %v", err)
	}
	if resources.totalScopedCalls() != 0 {
		t.Fatalf("expected no participant issuance after host gate failure")
	}

	if err := facade.Commands().Revoke.Execute(ctx, brokercommand.RevokeMessage{
		PrincipalID: "User/beta",
	}); err != nil {
		t.Fatalf("revoke credential: %v", err)
	}
	report, err := facade.Queries().CredentialStatus.Query(ctx, brokerquery.CredentialStatusMessage{
		PrincipalID: "User/beta",
	})
	if err != nil {
		t.Fatalf("credential status after revoke: %v", err)
	}
	if report.Exists {
		t.Fatalf("expected no credential after revoke, got %#v", report)
	}
}

type compositionAuthority struct {
	mu               sync.Mutex
	grant            core.TokenGrant
	refreshed        int
	lastRefreshToken string
}

func (a *compositionAuthority) ExchangeCode(context.Context, string, string) (core.TokenGrant, error) {
	return core.TokenGrant{}, fmt.Errorf("code exchange is not part of this flow")
}

func (a *compositionAuthority) RefreshGrant(_ context.Context, refreshToken string) (core.TokenGrant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshed++
	a.lastRefreshToken = refreshToken
	return a.grant, nil
}

func (a *compositionAuthority) AccountGrant(context.Context, string) (core.TokenGrant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grant, nil
}

func (a *compositionAuthority) refreshCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshed
}

func (a *compositionAuthority) refreshedWith() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRefreshToken
}

type compositionResourceAPI struct {
	mu          sync.Mutex
	failAccount string
	scopedCalls map[string]int
}

func newCompositionResourceAPI(failAccount string) *compositionResourceAPI {
	return &compositionResourceAPI{failAccount: failAccount, scopedCalls: map[string]int{}}
}

func (r *compositionResourceAPI) HostToken(_ context.Context, _ string, accountID string) (string, error) {
	return "host(" + accountID + ")", nil
}

func (r *compositionResourceAPI) ScopedToken(_ context.Context, _ string, accountID string, resourceID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopedCalls[accountID]++
	if accountID == r.failAccount {
		return "", fmt.Errorf("scoped exchange denied for %s", accountID)
	}
	return "scoped(" + accountID + ":" + resourceID + ")", nil
}

func (r *compositionResourceAPI) scopedCallsFor(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scopedCalls[accountID]
}

func (r *compositionResourceAPI) totalScopedCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, count := range r.scopedCalls {
		total += count
	}
	return total
}

func (r *compositionResourceAPI) resetScopedCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopedCalls = map[string]int{}
}

package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const ServicePrincipalID = "@service"

type TokenType string

const (
	TokenTypeHost   TokenType = "host"
	TokenTypeScoped TokenType = "scoped"
)

type CredentialRecord struct {
	PrincipalID  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
	Metadata     map[string]any
}

type SessionToken struct {
	Type        TokenType
	Value       string
	PrincipalID string
	ResourceID  string
}

type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type BatchToken struct {
	PrincipalID string
	Token       SessionToken
}

type BatchFailure struct {
	PrincipalID string
	Kind        string
}

type BatchResult struct {
	BatchID   string
	Succeeded []BatchToken
	Failed    []BatchFailure
}

type BatchJoinRequest struct {
	HostPrincipalID string
	ResourceID      string
	Participants    []string
}

type SetupSessionRequest struct {
	HostPrincipalID string
	ResourceID      string
	Participants    []string
}

type CompleteAuthorizationRequest struct {
	PrincipalID string
	Code        string
	RedirectURI string
	AccountID   string
	Metadata    map[string]any
}

type SessionSetup struct {
	Host  SessionToken
	Batch BatchResult
}

type CredentialStatusReport struct {
	PrincipalID string
	Exists      bool
	Freshness   FreshnessState
	ExpiresAt   time.Time
	Refreshable bool
	AccountID   string
}

type CredentialStore interface {
	Save(ctx context.Context, record CredentialRecord) error
	GetByPrincipal(ctx context.Context, principalID string) (CredentialRecord, error)
	Delete(ctx context.Context, principalID string) error
}

type AuthorityClient interface {
	ExchangeCode(ctx context.Context, code string, redirectURI string) (TokenGrant, error)
	RefreshGrant(ctx context.Context, refreshToken string) (TokenGrant, error)
	AccountGrant(ctx context.Context, accountID string) (TokenGrant, error)
}

type ResourceClient interface {
	HostToken(ctx context.Context, accessToken string, accountID string) (string, error)
	ScopedToken(ctx context.Context, accessToken string, accountID string, resourceID string) (string, error)
}

type StoreProvider interface {
	CredentialStore() CredentialStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type BrokerService interface {
	StartSession(ctx context.Context, principalID string) (SessionToken, error)
	JoinSession(ctx context.Context, principalID string, resourceID string) (SessionToken, error)
	BatchJoin(ctx context.Context, req BatchJoinRequest) (BatchResult, error)
	SetupSession(ctx context.Context, req SetupSessionRequest) (SessionSetup, error)
	ResolveAccessToken(ctx context.Context, principalID string) (string, error)
	RefreshCredential(ctx context.Context, principalID string) (CredentialRecord, error)
	CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (CredentialRecord, error)
	SaveCredential(ctx context.Context, record CredentialRecord) error
	RevokeCredential(ctx context.Context, principalID string) error
	CredentialStatus(ctx context.Context, principalID string) (CredentialStatusReport, error)
}

package tokenbroker

import (
	"github.com/goliatone/go-token-broker/adapters/gojob"
	"github.com/goliatone/go-token-broker/core"
	"github.com/goliatone/go-token-broker/maintenance"
	sqlstore "github.com/goliatone/go-token-broker/store/sql"
	"github.com/goliatone/go-token-broker/upstream"

	"github.com/goliatone/go-job/queue"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// NewAuthorityClient builds the OAuth authority client over the default
// HTTP transport.
func NewAuthorityClient(cfg AuthorityConfig) core.AuthorityClient {
	return upstream.NewAuthority(cfg, nil)
}

// NewResourceClient builds the resource-server API client over the default
// HTTP transport.
func NewResourceClient(cfg ResourceAPIConfig) core.ResourceClient {
	return upstream.NewResourceAPI(cfg, nil)
}

// NewMemoryCredentialStore builds the in-process durable store used by
// tests and single-node embeddings.
func NewMemoryCredentialStore() *core.MemoryCredentialStore {
	return core.NewMemoryCredentialStore()
}

// NewSQLCredentialStore builds the versioned bun-backed store from a
// persistence client that has already run the broker migrations.
func NewSQLCredentialStore(client *persistence.Client) (core.CredentialStore, error) {
	factory, err := sqlstore.NewFactoryFromPersistence(client)
	if err != nil {
		return nil, err
	}
	return factory.CredentialStore(), nil
}

// NewSQLCredentialStoreFromDB is NewSQLCredentialStore for hosts that
// manage their own bun handle.
func NewSQLCredentialStoreFromDB(db *bun.DB) (core.CredentialStore, error) {
	factory, err := sqlstore.NewFactoryFromDB(db)
	if err != nil {
		return nil, err
	}
	return factory.CredentialStore(), nil
}

// NewCachedCredentialStore fronts a durable store with a read-through
// cache that writes invalidate.
func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (core.CredentialStore, error) {
	store, err := sqlstore.NewCachedCredentialStore(base, cacheService)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewRefreshPlanner wires the proactive refresh planner to a go-job queue.
func NewRefreshPlanner(
	source maintenance.ExpiringCredentialSource,
	enqueuer queue.Enqueuer,
	opts ...maintenance.PlannerOption,
) (*maintenance.RefreshPlanner, error) {
	return maintenance.NewRefreshPlanner(source, gojob.NewEnqueuer(enqueuer), opts...)
}

// NewRefreshWorker wires the refresh worker to a go-job queue. The retry
// policy bounds nacks issued back to the queue.
func NewRefreshWorker(
	dequeuer queue.Dequeuer,
	refresher maintenance.CredentialRefresher,
	retry gojob.RetryPolicy,
	opts ...maintenance.WorkerOption,
) (*maintenance.RefreshWorker, error) {
	return maintenance.NewRefreshWorker(gojob.NewDequeuer(dequeuer, retry), refresher, opts...)
}

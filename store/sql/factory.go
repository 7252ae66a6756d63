package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-token-broker/core"
	"github.com/uptrace/bun"
)

// Factory assembles the broker's bun-backed credential store from whichever
// handle the host owns. A zero factory builds lazily through BuildStores;
// the From constructors build eagerly and fail fast on bad wiring.
type Factory struct {
	db          *bun.DB
	credentials *CredentialStore
}

func NewFactory() *Factory {
	return &Factory{}
}

func NewFactoryFromPersistence(client *persistence.Client) (*Factory, error) {
	factory := NewFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewFactoryFromDB(db *bun.DB) (*Factory, error) {
	factory := NewFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores resolves the bun handle on first use and assembles the
// credential store once. Later calls return the same provider, so a
// pre-built factory can be handed to the service builder as is.
func (f *Factory) BuildStores(handle any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: factory is nil")
	}
	if f.credentials != nil {
		return f, nil
	}
	if f.db == nil {
		db, err := resolveBunDB(handle)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	credentials, err := buildCredentialStore(f.db)
	if err != nil {
		return nil, err
	}
	f.credentials = credentials
	return f, nil
}

func (f *Factory) CredentialStore() core.CredentialStore {
	if f == nil || f.credentials == nil {
		return nil
	}
	return f.credentials
}

// Credentials returns the typed store for callers that need the maintenance
// scan surface on top of the core interface.
func (f *Factory) Credentials() *CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentials
}

func (f *Factory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func buildCredentialStore(db *bun.DB) (*CredentialStore, error) {
	repo := repository.NewRepository[*credentialRow](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func resolveBunDB(handle any) (*bun.DB, error) {
	switch typed := handle.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence handle is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence handle returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence handle type %T", handle)
	}
}

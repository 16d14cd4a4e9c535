package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-tram/adapters"
	"github.com/AshkanYarmoradi/go-tram/adapters/memory"
	"github.com/AshkanYarmoradi/go-tram/adapters/postgres"
	"github.com/AshkanYarmoradi/go-tram/cli/config"
)

// errNoConfig is returned when no tram.yaml is found from the working directory up.
var errNoConfig = errors.New("no tram.yaml found (run 'tram init')")

// SagaStore is the repository surface the CLI needs.
type SagaStore interface {
	adapters.SagaInstanceRepository
	adapters.HealthChecker

	// List returns the instances of sagaType, at most limit of them.
	List(ctx context.Context, sagaType string, activeOnly bool, limit int) ([]*adapters.SagaInstance, error)

	Close() error
}

type postgresStore struct {
	*postgres.SagaInstanceRepository
}

func (s postgresStore) List(ctx context.Context, sagaType string, activeOnly bool, limit int) ([]*adapters.SagaInstance, error) {
	return s.FindByType(ctx, sagaType, activeOnly, limit)
}

func (s postgresStore) Close() error {
	return s.DB().Close()
}

type memoryStore struct {
	*memory.SagaInstanceRepository
}

func (s memoryStore) List(ctx context.Context, sagaType string, activeOnly bool, limit int) ([]*adapters.SagaInstance, error) {
	all, err := s.FindByType(ctx, sagaType)
	if err != nil {
		return nil, err
	}

	// newest first, like the postgres store
	result := make([]*adapters.SagaInstance, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if activeOnly && all[i].EndState {
			continue
		}
		result = append(result, all[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// newPostgresRepository builds the postgres repository named by cfg without connecting.
func newPostgresRepository(cfg *config.Config) (*postgres.SagaInstanceRepository, error) {
	dbURL := cfg.DatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is empty (is %s set?)", cfg.Repository.URL)
	}

	db, err := postgres.Open(dbURL, postgres.WithMaxConnections(2))
	if err != nil {
		return nil, err
	}

	var opts []postgres.Option
	if cfg.Repository.Schema != "" {
		opts = append(opts, postgres.WithSchema(cfg.Repository.Schema))
	}
	if cfg.Repository.Table != "" {
		opts = append(opts, postgres.WithTable(cfg.Repository.Table))
	}
	return postgres.NewSagaInstanceRepository(db, opts...), nil
}

// postgresTable is a table tram can create and inspect.
type postgresTable interface {
	adapters.SchemaProvider
	Initialize(ctx context.Context) error
	TableExists(ctx context.Context) (bool, error)
}

// namedTable pairs a table with its qualified name.
type namedTable struct {
	Name  string
	Table postgresTable
}

// postgresTables lists the tables cfg asks for: always the saga table, plus
// the outbox and received message tables when they are named. db may be nil
// when only the DDL is needed.
func postgresTables(cfg *config.Config, db *sql.DB) []namedTable {
	schema := cfg.Repository.Schema
	if schema == "" {
		schema = postgres.DefaultSchema
	}
	table := cfg.Repository.Table
	if table == "" {
		table = postgres.DefaultTable
	}

	tables := []namedTable{{
		Name:  schema + "." + table,
		Table: postgres.NewSagaInstanceRepository(db, postgres.WithSchema(schema), postgres.WithTable(table)),
	}}
	if name := cfg.Repository.OutboxTable; name != "" {
		tables = append(tables, namedTable{
			Name:  schema + "." + name,
			Table: postgres.NewOutboxStore(db, postgres.WithOutboxSchema(schema), postgres.WithOutboxTable(name)),
		})
	}
	if name := cfg.Repository.ReceivedTable; name != "" {
		tables = append(tables, namedTable{
			Name:  schema + "." + name,
			Table: postgres.NewReceivedMessageStore(db, postgres.WithReceivedSchema(schema), postgres.WithReceivedTable(name)),
		})
	}
	return tables
}

// schemaSQL renders the postgres DDL for every configured table.
func schemaSQL(cfg *config.Config) string {
	var parts []string
	for _, t := range postgresTables(cfg, nil) {
		parts = append(parts, t.Table.SchemaSQL())
	}
	return strings.Join(parts, "\n")
}

// OpenStore opens the saga store configured by cfg. A postgres store is
// pinged with a short timeout so that bad URLs fail fast.
func OpenStore(ctx context.Context, cfg *config.Config) (SagaStore, error) {
	switch cfg.Repository.Driver {
	case config.DriverMemory:
		return memoryStore{memory.NewSagaInstanceRepository()}, nil

	case config.DriverPostgres:
		repo, err := newPostgresRepository(cfg)
		if err != nil {
			return nil, err
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := repo.Ping(pingCtx); err != nil {
			_ = repo.DB().Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return postgresStore{repo}, nil

	default:
		return nil, fmt.Errorf("unsupported repository driver: %q", cfg.Repository.Driver)
	}
}

// openStore is replaced in tests.
var openStore = OpenStore

// loadConfig finds tram.yaml from the working directory upwards.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	_, cfg, err := config.FindConfig(cwd)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoConfig
	}
	return cfg, err
}

// loadConfigOrDefault is like loadConfig but falls back to the defaults.
func loadConfigOrDefault() (*config.Config, error) {
	cfg, err := loadConfig()
	if errors.Is(err, errNoConfig) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

// withStore loads the config, opens its store and passes both to fn.
func withStore(ctx context.Context, fn func(*config.Config, SagaStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cfg, store)
}

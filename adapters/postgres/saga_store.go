package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// Ensure interface compliance at compile time
var (
	_ adapters.SagaInstanceRepository = (*SagaInstanceRepository)(nil)
	_ adapters.HealthChecker          = (*SagaInstanceRepository)(nil)
	_ adapters.SchemaProvider         = (*SagaInstanceRepository)(nil)
)

// SagaInstanceRepository provides a PostgreSQL implementation of adapters.SagaInstanceRepository.
type SagaInstanceRepository struct {
	db     *sql.DB
	schema string
	table  string
	ids    adapters.IDGenerator
}

// Option configures a SagaInstanceRepository.
type Option func(*SagaInstanceRepository)

// WithSchema sets the PostgreSQL schema for the saga table.
func WithSchema(schema string) Option {
	return func(r *SagaInstanceRepository) {
		r.schema = schema
	}
}

// WithTable sets the table name for saga instances.
func WithTable(table string) Option {
	return func(r *SagaInstanceRepository) {
		r.table = table
	}
}

// WithIDGenerator sets the generator used to assign saga IDs on Save.
func WithIDGenerator(ids adapters.IDGenerator) Option {
	return func(r *SagaInstanceRepository) {
		r.ids = ids
	}
}

type uuidGenerator struct{}

func (uuidGenerator) GenerateID() string {
	return uuid.NewString()
}

// NewSagaInstanceRepository creates a new PostgreSQL SagaInstanceRepository.
func NewSagaInstanceRepository(db *sql.DB, opts ...Option) *SagaInstanceRepository {
	r := &SagaInstanceRepository{
		db:     db,
		schema: DefaultSchema,
		table:  DefaultTable,
		ids:    uuidGenerator{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// fullTableName returns the fully qualified and quoted table name.
func (r *SagaInstanceRepository) fullTableName() string {
	return quoteQualifiedTable(r.schema, r.table)
}

func (r *SagaInstanceRepository) validate() error {
	if err := validateIdentifier(r.schema, "schema"); err != nil {
		return err
	}
	return validateIdentifier(r.table, "table")
}

// SchemaSQL returns the DDL for the saga instance table.
func (r *SagaInstanceRepository) SchemaSQL() string {
	tableQ := r.fullTableName()
	return `CREATE SCHEMA IF NOT EXISTS ` + quoteIdentifier(r.schema) + `;

CREATE TABLE IF NOT EXISTS ` + tableQ + ` (
	saga_type VARCHAR(255) NOT NULL,
	saga_id VARCHAR(255) NOT NULL,
	state_name TEXT NOT NULL,
	last_request_id VARCHAR(255),
	saga_data_type VARCHAR(1000) NOT NULL,
	saga_data BYTEA,
	end_state BOOLEAN NOT NULL DEFAULT FALSE,
	compensating BOOLEAN NOT NULL DEFAULT FALSE,
	failed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (saga_type, saga_id)
);

CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+r.table+"_active") + ` ON ` + tableQ + ` (saga_type) WHERE end_state = FALSE;
`
}

// Initialize creates the saga table if it doesn't exist.
func (r *SagaInstanceRepository) Initialize(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, r.SchemaSQL()); err != nil {
		return fmt.Errorf("tram/postgres: failed to create table: %w", err)
	}
	return nil
}

// Save inserts a new saga instance, assigning an ID when it has none.
func (r *SagaInstanceRepository) Save(ctx context.Context, instance *adapters.SagaInstance) error {
	if instance == nil {
		return adapters.ErrNilInstance
	}
	if instance.SagaType == "" {
		return adapters.ErrEmptySagaType
	}
	if err := r.validate(); err != nil {
		return err
	}

	if instance.ID == "" {
		instance.ID = r.ids.GenerateID()
	}
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now

	query := `
		INSERT INTO ` + r.fullTableName() + ` (
			saga_type, saga_id, state_name, last_request_id,
			saga_data_type, saga_data, end_state, compensating, failed,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		ON CONFLICT (saga_type, saga_id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		instance.SagaType,
		instance.ID,
		instance.StateName,
		nullString(instance.LastRequestID),
		instance.SerializedData.Type,
		instance.SerializedData.Data,
		instance.EndState,
		instance.Compensating,
		instance.Failed,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("tram/postgres: failed to save saga: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tram/postgres: failed to save saga: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tram/postgres: saga %s/%s already exists: %w",
			instance.SagaType, instance.ID, adapters.ErrConcurrencyConflict)
	}

	instance.Version = 1
	return nil
}

// Find retrieves a saga instance by type and ID.
func (r *SagaInstanceRepository) Find(ctx context.Context, sagaType, sagaID string) (*adapters.SagaInstance, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT saga_type, saga_id, state_name, last_request_id,
			saga_data_type, saga_data, end_state, compensating, failed,
			created_at, updated_at, version
		FROM ` + r.fullTableName() + `
		WHERE saga_type = $1 AND saga_id = $2
	`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, sagaType, sagaID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &adapters.SagaInstanceNotFoundError{SagaType: sagaType, SagaID: sagaID}
		}
		return nil, fmt.Errorf("tram/postgres: failed to load saga: %w", err)
	}
	return instance, nil
}

// Update replaces a saga instance. The stored version must equal instance.Version;
// after a successful update instance.Version is incremented.
func (r *SagaInstanceRepository) Update(ctx context.Context, instance *adapters.SagaInstance) error {
	if err := adapters.ValidateForUpdate(instance); err != nil {
		return err
	}
	if err := r.validate(); err != nil {
		return err
	}

	instance.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE ` + r.fullTableName() + ` SET
			state_name = $3,
			last_request_id = $4,
			saga_data_type = $5,
			saga_data = $6,
			end_state = $7,
			compensating = $8,
			failed = $9,
			updated_at = $10,
			version = version + 1
		WHERE saga_type = $1 AND saga_id = $2 AND version = $11
		RETURNING version
	`

	var newVersion int64
	err := r.db.QueryRowContext(ctx, query,
		instance.SagaType,
		instance.ID,
		instance.StateName,
		nullString(instance.LastRequestID),
		instance.SerializedData.Type,
		instance.SerializedData.Data,
		instance.EndState,
		instance.Compensating,
		instance.Failed,
		instance.UpdatedAt,
		instance.Version,
	).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.conflictOrMissing(ctx, instance)
		}
		return fmt.Errorf("tram/postgres: failed to update saga: %w", err)
	}

	instance.Version = newVersion
	return nil
}

// conflictOrMissing tells a stale version apart from a missing row.
func (r *SagaInstanceRepository) conflictOrMissing(ctx context.Context, instance *adapters.SagaInstance) error {
	var actual int64
	err := r.db.QueryRowContext(ctx,
		`SELECT version FROM `+r.fullTableName()+` WHERE saga_type = $1 AND saga_id = $2`,
		instance.SagaType, instance.ID,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return &adapters.SagaInstanceNotFoundError{SagaType: instance.SagaType, SagaID: instance.ID}
	}
	if err != nil {
		return fmt.Errorf("tram/postgres: failed to update saga: %w", err)
	}
	return adapters.NewConcurrencyError(instance.ID, instance.Version, actual)
}

// FindByType returns the instances of sagaType, newest first. When activeOnly is
// true, ended instances are skipped.
func (r *SagaInstanceRepository) FindByType(ctx context.Context, sagaType string, activeOnly bool, limit int) ([]*adapters.SagaInstance, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT saga_type, saga_id, state_name, last_request_id,
			saga_data_type, saga_data, end_state, compensating, failed,
			created_at, updated_at, version
		FROM ` + r.fullTableName() + `
		WHERE saga_type = $1 AND ($2 = FALSE OR end_state = FALSE)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, sagaType, activeOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("tram/postgres: failed to query sagas: %w", err)
	}
	defer rows.Close()

	var result []*adapters.SagaInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("tram/postgres: failed to scan saga: %w", err)
		}
		result = append(result, instance)
	}
	return result, rows.Err()
}

// TableExists reports whether the saga table has been created.
func (r *SagaInstanceRepository) TableExists(ctx context.Context) (bool, error) {
	if err := r.validate(); err != nil {
		return false, err
	}
	return tableExists(ctx, r.db, r.schema, r.table)
}

// Ping checks database connectivity.
func (r *SagaInstanceRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (r *SagaInstanceRepository) DB() *sql.DB {
	return r.db
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*adapters.SagaInstance, error) {
	var (
		instance      adapters.SagaInstance
		lastRequestID sql.NullString
	)
	err := row.Scan(
		&instance.SagaType,
		&instance.ID,
		&instance.StateName,
		&lastRequestID,
		&instance.SerializedData.Type,
		&instance.SerializedData.Data,
		&instance.EndState,
		&instance.Compensating,
		&instance.Failed,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&instance.Version,
	)
	if err != nil {
		return nil, err
	}
	instance.LastRequestID = lastRequestID.String
	return &instance, nil
}

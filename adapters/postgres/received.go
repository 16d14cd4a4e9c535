package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

var (
	_ adapters.ReceivedMessageStore = (*ReceivedMessageStore)(nil)
	_ adapters.SchemaProvider       = (*ReceivedMessageStore)(nil)
)

// DefaultReceivedTable is the received message table name.
const DefaultReceivedTable = "received_messages"

// ReceivedMessageStore is a PostgreSQL adapters.ReceivedMessageStore keyed by
// (consumer_id, message_id).
type ReceivedMessageStore struct {
	db     *sql.DB
	schema string
	table  string
}

// ReceivedOption configures a ReceivedMessageStore.
type ReceivedOption func(*ReceivedMessageStore)

// WithReceivedSchema sets the schema of the received message table.
func WithReceivedSchema(schema string) ReceivedOption {
	return func(s *ReceivedMessageStore) {
		s.schema = schema
	}
}

// WithReceivedTable sets the received message table name.
func WithReceivedTable(table string) ReceivedOption {
	return func(s *ReceivedMessageStore) {
		s.table = table
	}
}

// NewReceivedMessageStore creates a PostgreSQL ReceivedMessageStore.
func NewReceivedMessageStore(db *sql.DB, opts ...ReceivedOption) *ReceivedMessageStore {
	s := &ReceivedMessageStore{
		db:     db,
		schema: DefaultSchema,
		table:  DefaultReceivedTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReceivedMessageStore) fullTableName() string {
	return quoteQualifiedTable(s.schema, s.table)
}

func (s *ReceivedMessageStore) validate() error {
	if err := validateIdentifier(s.schema, "schema"); err != nil {
		return err
	}
	return validateIdentifier(s.table, "table")
}

// SchemaSQL returns the DDL for the received message table.
func (s *ReceivedMessageStore) SchemaSQL() string {
	tableQ := s.fullTableName()
	return `CREATE SCHEMA IF NOT EXISTS ` + quoteIdentifier(s.schema) + `;

CREATE TABLE IF NOT EXISTS ` + tableQ + ` (
	consumer_id VARCHAR(255) NOT NULL,
	message_id VARCHAR(255) NOT NULL,
	creation_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (consumer_id, message_id)
);

CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+s.table+"_created") + ` ON ` + tableQ + ` (creation_time);
`
}

// Initialize creates the table if it doesn't exist.
func (s *ReceivedMessageStore) Initialize(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.SchemaSQL()); err != nil {
		return fmt.Errorf("tram/postgres/received: failed to create table: %w", err)
	}
	return nil
}

// TableExists reports whether the table has been created.
func (s *ReceivedMessageStore) TableExists(ctx context.Context) (bool, error) {
	if err := s.validate(); err != nil {
		return false, err
	}
	return tableExists(ctx, s.db, s.schema, s.table)
}

// MarkReceived inserts the pair; a conflicting row means a duplicate.
func (s *ReceivedMessageStore) MarkReceived(ctx context.Context, subscriberID, messageID string) (bool, error) {
	if messageID == "" {
		return false, adapters.ErrEmptyMessageID
	}
	if err := s.validate(); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.fullTableName()+` (consumer_id, message_id, creation_time)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer_id, message_id) DO NOTHING`,
		subscriberID, messageID)
	if err != nil {
		return false, fmt.Errorf("tram/postgres/received: failed to record message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("tram/postgres/received: failed to record message: %w", err)
	}
	return n == 1, nil
}

// Forget deletes the pair.
func (s *ReceivedMessageStore) Forget(ctx context.Context, subscriberID, messageID string) error {
	if err := s.validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.fullTableName()+` WHERE consumer_id = $1 AND message_id = $2`,
		subscriberID, messageID); err != nil {
		return fmt.Errorf("tram/postgres/received: failed to forget message: %w", err)
	}
	return nil
}

// Cleanup deletes records older than olderThan.
func (s *ReceivedMessageStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.fullTableName()+` WHERE creation_time < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("tram/postgres/received: failed to cleanup: %w", err)
	}
	return result.RowsAffected()
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

var (
	_ adapters.OutboxStore    = (*OutboxStore)(nil)
	_ adapters.SchemaProvider = (*OutboxStore)(nil)
)

// DefaultOutboxTable is the outbox table name.
const DefaultOutboxTable = "message"

// ErrNoTransaction is returned by ScheduleInTx when tx is nil.
var ErrNoTransaction = errors.New("tram/postgres/outbox: transaction is required")

// OutboxStore is a PostgreSQL adapters.OutboxStore. Messages scheduled with
// ScheduleInTx commit or roll back together with the caller's own writes.
type OutboxStore struct {
	db     *sql.DB
	schema string
	table  string
	ids    adapters.IDGenerator
}

// OutboxOption configures an OutboxStore.
type OutboxOption func(*OutboxStore)

// WithOutboxSchema sets the PostgreSQL schema for the outbox table.
func WithOutboxSchema(schema string) OutboxOption {
	return func(s *OutboxStore) {
		s.schema = schema
	}
}

// WithOutboxTable sets the outbox table name.
func WithOutboxTable(table string) OutboxOption {
	return func(s *OutboxStore) {
		s.table = table
	}
}

// NewOutboxStore creates a PostgreSQL OutboxStore.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	s := &OutboxStore{
		db:     db,
		schema: DefaultSchema,
		table:  DefaultOutboxTable,
		ids:    uuidGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OutboxStore) fullTableName() string {
	return quoteQualifiedTable(s.schema, s.table)
}

func (s *OutboxStore) validate() error {
	if err := validateIdentifier(s.schema, "schema"); err != nil {
		return err
	}
	return validateIdentifier(s.table, "table")
}

// SchemaSQL returns the DDL for the outbox table.
func (s *OutboxStore) SchemaSQL() string {
	tableQ := s.fullTableName()
	return `CREATE SCHEMA IF NOT EXISTS ` + quoteIdentifier(s.schema) + `;

CREATE TABLE IF NOT EXISTS ` + tableQ + ` (
	id VARCHAR(255) PRIMARY KEY,
	destination VARCHAR(1000) NOT NULL,
	headers JSONB NOT NULL DEFAULT '{}',
	payload BYTEA,
	status INT NOT NULL DEFAULT 0,
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 5,
	last_error TEXT,
	scheduled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_attempt_at TIMESTAMPTZ,
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+s.table+"_pending") + ` ON ` + tableQ + ` (scheduled_at) WHERE status = 0;
CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+s.table+"_dead_letter") + ` ON ` + tableQ + ` (created_at) WHERE status = 4;
`
}

// Initialize creates the outbox table if it doesn't exist.
func (s *OutboxStore) Initialize(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.SchemaSQL()); err != nil {
		return fmt.Errorf("tram/postgres/outbox: failed to create table: %w", err)
	}
	return nil
}

// TableExists reports whether the outbox table has been created.
func (s *OutboxStore) TableExists(ctx context.Context) (bool, error) {
	if err := s.validate(); err != nil {
		return false, err
	}
	return tableExists(ctx, s.db, s.schema, s.table)
}

// Schedule stores messages in their own transaction.
func (s *OutboxStore) Schedule(ctx context.Context, messages []*adapters.OutboxMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tram/postgres/outbox: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ScheduleInTx(ctx, tx, messages); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tram/postgres/outbox: failed to commit: %w", err)
	}
	return nil
}

// ScheduleInTx stores messages inside the caller's transaction.
func (s *OutboxStore) ScheduleInTx(ctx context.Context, tx *sql.Tx, messages []*adapters.OutboxMessage) error {
	if tx == nil {
		return ErrNoTransaction
	}
	if err := s.validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO ` + s.fullTableName() + ` (
			id, destination, headers, payload,
			status, attempts, max_attempts, scheduled_at, created_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
	`

	now := time.Now().UTC()
	for _, msg := range messages {
		headersJSON, err := json.Marshal(msg.Headers)
		if err != nil {
			return fmt.Errorf("tram/postgres/outbox: failed to marshal headers: %w", err)
		}
		if msg.ID == "" {
			msg.ID = s.ids.GenerateID()
		}
		if msg.ScheduledAt.IsZero() {
			msg.ScheduledAt = now
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.MaxAttempts == 0 {
			msg.MaxAttempts = 5
		}
		msg.Status = adapters.OutboxPending

		if _, err := tx.ExecContext(ctx, query,
			msg.ID,
			msg.Destination,
			headersJSON,
			msg.Payload,
			int(adapters.OutboxPending),
			msg.MaxAttempts,
			msg.ScheduledAt,
			msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("tram/postgres/outbox: failed to insert message %s: %w", msg.ID, err)
		}
	}
	return nil
}

const outboxColumns = `id, destination, headers, payload,
	status, attempts, max_attempts, last_error, scheduled_at,
	last_attempt_at, processed_at, created_at`

// FetchPending claims up to limit due messages. SKIP LOCKED lets several
// relays share one table without claiming the same row.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]*adapters.OutboxMessage, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	tableQ := s.fullTableName()
	query := `
		UPDATE ` + tableQ + ` SET
			status = $1,
			last_attempt_at = NOW(),
			attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM ` + tableQ + `
			WHERE status = $2 AND scheduled_at <= NOW()
			ORDER BY scheduled_at, created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := s.db.QueryContext(ctx, query, int(adapters.OutboxProcessing), int(adapters.OutboxPending), limit)
	if err != nil {
		return nil, fmt.Errorf("tram/postgres/outbox: failed to fetch pending messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sortByScheduledAt(messages)
	return messages, nil
}

// MarkCompleted marks messages as delivered.
func (s *OutboxStore) MarkCompleted(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.validate(); err != nil {
		return err
	}

	args := make([]interface{}, len(ids)+1)
	args[0] = int(adapters.OutboxCompleted)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i+1] = id
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}

	query := `UPDATE ` + s.fullTableName() + ` SET status = $1, processed_at = NOW()
		WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("tram/postgres/outbox: failed to mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. A nil lastErr keeps the previous error text.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, lastErr error) error {
	if err := s.validate(); err != nil {
		return err
	}

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE `+s.fullTableName()+` SET status = $1, last_error = COALESCE($2, last_error) WHERE id = $3`,
		int(adapters.OutboxFailed), errText, id)
	if err != nil {
		return fmt.Errorf("tram/postgres/outbox: failed to mark failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("tram/postgres/outbox: failed to mark failed: %w", err)
	}
	if n == 0 {
		return adapters.ErrOutboxMessageNotFound
	}
	return nil
}

// RetryFailed returns failed messages with attempts left to pending.
func (s *OutboxStore) RetryFailed(ctx context.Context, maxAttempts int) (int64, error) {
	return s.transition(ctx, "attempts < LEAST(max_attempts, $3)", adapters.OutboxPending, maxAttempts)
}

// MoveToDeadLetter parks failed messages without attempts left.
func (s *OutboxStore) MoveToDeadLetter(ctx context.Context, maxAttempts int) (int64, error) {
	return s.transition(ctx, "attempts >= LEAST(max_attempts, $3)", adapters.OutboxDeadLetter, maxAttempts)
}

func (s *OutboxStore) transition(ctx context.Context, cond string, to adapters.OutboxStatus, maxAttempts int) (int64, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE `+s.fullTableName()+` SET status = $1 WHERE status = $2 AND `+cond,
		int(to), int(adapters.OutboxFailed), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("tram/postgres/outbox: failed to move messages to %s: %w", to, err)
	}
	return result.RowsAffected()
}

// DeadLetters returns up to limit dead-lettered messages, oldest first.
func (s *OutboxStore) DeadLetters(ctx context.Context, limit int) ([]*adapters.OutboxMessage, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM `+s.fullTableName()+` WHERE status = $1 ORDER BY created_at LIMIT $2`,
		int(adapters.OutboxDeadLetter), limit)
	if err != nil {
		return nil, fmt.Errorf("tram/postgres/outbox: failed to query dead letters: %w", err)
	}
	defer rows.Close()

	return scanOutboxMessages(rows)
}

// Get loads a single message.
func (s *OutboxStore) Get(ctx context.Context, id string) (*adapters.OutboxMessage, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM `+s.fullTableName()+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("tram/postgres/outbox: failed to get message: %w", err)
	}
	defer rows.Close()

	messages, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, adapters.ErrOutboxMessageNotFound
	}
	return messages[0], nil
}

// Cleanup removes completed messages processed before now minus olderThan.
func (s *OutboxStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.fullTableName()+` WHERE status = $1 AND processed_at IS NOT NULL AND processed_at < $2`,
		int(adapters.OutboxCompleted), time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("tram/postgres/outbox: failed to cleanup: %w", err)
	}
	return result.RowsAffected()
}

func scanOutboxMessages(rows *sql.Rows) ([]*adapters.OutboxMessage, error) {
	var messages []*adapters.OutboxMessage
	for rows.Next() {
		var (
			msg           adapters.OutboxMessage
			headersJSON   []byte
			status        int
			lastError     sql.NullString
			lastAttemptAt sql.NullTime
			processedAt   sql.NullTime
		)
		if err := rows.Scan(
			&msg.ID, &msg.Destination, &headersJSON, &msg.Payload,
			&status, &msg.Attempts, &msg.MaxAttempts, &lastError, &msg.ScheduledAt,
			&lastAttemptAt, &processedAt, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("tram/postgres/outbox: failed to scan message: %w", err)
		}

		msg.Status = adapters.OutboxStatus(status)
		msg.LastError = lastError.String
		if lastAttemptAt.Valid {
			msg.LastAttemptAt = &lastAttemptAt.Time
		}
		if processedAt.Valid {
			msg.ProcessedAt = &processedAt.Time
		}
		if err := json.Unmarshal(headersJSON, &msg.Headers); err != nil {
			return nil, fmt.Errorf("tram/postgres/outbox: failed to unmarshal headers: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tram/postgres/outbox: error iterating rows: %w", err)
	}
	return messages, nil
}

func sortByScheduledAt(messages []*adapters.OutboxMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ScheduledAt.Before(messages[j].ScheduledAt)
	})
}

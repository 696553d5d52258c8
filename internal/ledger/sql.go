package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Dialect selects placeholder syntax and driver name.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS token_usage (
	id TEXT PRIMARY KEY,
	created_at BIGINT NOT NULL,
	operation_type TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	estimated INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	conversation_id TEXT,
	agent_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_token_usage_created ON token_usage(created_at);
CREATE INDEX IF NOT EXISTS idx_token_usage_agent ON token_usage(agent_id, created_at);
`

const insertRecord = `INSERT INTO token_usage
	(id, created_at, operation_type, model, prompt_tokens, completion_tokens, total_tokens,
	 estimated, failed, conversation_id, agent_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING`

const selectRecords = `SELECT id, created_at, operation_type, model, prompt_tokens,
	completion_tokens, total_tokens, estimated, failed, conversation_id, agent_id
	FROM token_usage`

// SQLStore persists records in Postgres or SQLite. Timestamps are stored as
// unix milliseconds.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens a database for dialect and applies the schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	var driver string
	switch dialect {
	case DialectPostgres:
		driver = "postgres"
	case DialectSQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite has a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	s := NewSQLStore(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the ledger table if needed.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Append implements Store.
func (s *SQLStore) Append(ctx context.Context, rec model.TokenUsageRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(insertRecord),
		rec.ID,
		rec.CreatedAt.UnixMilli(),
		string(rec.OperationType),
		rec.Model,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		boolToInt(rec.Estimated),
		boolToInt(rec.Failed),
		nullString(rec.ConversationID),
		nullString(rec.AgentID),
	)
	if err != nil {
		return false, fmt.Errorf("insert token usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert token usage: %w", err)
	}
	return n == 1, nil
}

// Scan implements Store.
func (s *SQLStore) Scan(ctx context.Context, f Filter, fn func(model.TokenUsageRecord) error) error {
	query, args := buildSelect(f)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("query token usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec            model.TokenUsageRecord
			createdAt      int64
			op             string
			estimated      int64
			failed         int64
			conversationID sql.NullString
			agentID        sql.NullString
		)
		if err := rows.Scan(&rec.ID, &createdAt, &op, &rec.Model, &rec.PromptTokens,
			&rec.CompletionTokens, &rec.TotalTokens, &estimated, &failed,
			&conversationID, &agentID); err != nil {
			return fmt.Errorf("scan token usage: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		rec.OperationType = model.OperationType(op)
		rec.Estimated = estimated != 0
		rec.Failed = failed != 0
		rec.ConversationID = conversationID.String
		rec.AgentID = agentID.String

		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func buildSelect(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.To.UnixMilli())
	}
	if len(f.Operations) > 0 {
		ops := make([]any, len(f.Operations))
		for i, op := range f.Operations {
			ops[i] = string(op)
		}
		where = append(where, "operation_type IN ("+placeholders(len(ops))+")")
		args = append(args, ops...)
	}
	if len(f.Models) > 0 {
		where = append(where, "model IN ("+placeholders(len(f.Models))+")")
		for _, m := range f.Models {
			args = append(args, m)
		}
	}
	if len(f.AgentIDs) > 0 {
		where = append(where, "agent_id IN ("+placeholders(len(f.AgentIDs))+")")
		for _, a := range f.AgentIDs {
			args = append(args, a)
		}
	}
	if f.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, f.ConversationID)
	}

	query := selectRecords
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	return query, args
}

// rebind rewrites ? placeholders to $N for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

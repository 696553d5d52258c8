package agentconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/metrics"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS agent_scoring_configs (
	agent_id        TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL DEFAULT '',
	config          JSONB NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	selectConfig = `SELECT config FROM agent_scoring_configs WHERE agent_id = $1`
	selectOrg    = `SELECT organization_id FROM agent_scoring_configs WHERE agent_id = $1`
	upsertConfig = `INSERT INTO agent_scoring_configs (agent_id, organization_id, config, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (agent_id) DO UPDATE SET organization_id = EXCLUDED.organization_id, config = EXCLUDED.config, updated_at = NOW()`
)

// PostgresSource reads configs from the agent_scoring_configs table.
type PostgresSource struct {
	db *sql.DB
}

// OpenPostgres connects and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open agent config db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping agent config db: %w", err)
	}
	s := NewPostgresSource(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSource wraps an open database.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate creates the table.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("migrate agent config table: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// ScoringConfig implements Source. Rows that no longer validate are reported
// as ErrConfigInvalid.
func (s *PostgresSource) ScoringConfig(ctx context.Context, agentID string) (*model.ScoringConfig, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, selectConfig, agentID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load scoring config: %w", err)
	}

	var cfg model.ScoringConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		metrics.ConfigRejectedTotal.WithLabelValues("postgres").Inc()
		return nil, fmt.Errorf("%w: decode: %v", scoring.ErrConfigInvalid, err)
	}
	if cfg.AgentID == "" {
		cfg.AgentID = agentID
	}
	if err := scoring.Validate(&cfg); err != nil {
		metrics.ConfigRejectedTotal.WithLabelValues("postgres").Inc()
		return nil, err
	}
	return &cfg, nil
}

// OrganizationOf implements Source.
func (s *PostgresSource) OrganizationOf(ctx context.Context, agentID string) (string, error) {
	var org string
	err := s.db.QueryRowContext(ctx, selectOrg, agentID).Scan(&org)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAgentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

// Put validates cfg and upserts it. Invalid configs never reach the table.
func (s *PostgresSource) Put(ctx context.Context, cfg *model.ScoringConfig) error {
	if err := scoring.Validate(cfg); err != nil {
		metrics.ConfigRejectedTotal.WithLabelValues("postgres").Inc()
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode scoring config: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertConfig, cfg.AgentID, cfg.OrganizationID, raw); err != nil {
		return fmt.Errorf("store scoring config: %w", err)
	}
	return nil
}

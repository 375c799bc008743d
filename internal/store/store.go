package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides a PostgreSQL implementation of the schemas.Store interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// schemaStatements holds the DDL for the tables the store writes to. Plain
// statements so a scan can bootstrap an empty database without separate
// migration tooling.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scans (
        id TEXT PRIMARY KEY,
        started_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS findings (
        id TEXT PRIMARY KEY,
        scan_id TEXT NOT NULL REFERENCES scans (id),
        target TEXT NOT NULL,
        module TEXT NOT NULL,
        vulnerability_name TEXT NOT NULL,
        severity TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        evidence JSONB NOT NULL DEFAULT '{}'::jsonb,
        recommendation TEXT NOT NULL DEFAULT '',
        cwe TEXT[] NOT NULL DEFAULT '{}',
        observed_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS findings_scan_id_idx ON findings (scan_id);`,
}

// EnsureSchema creates the scans and findings tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	s.log.Debug("Database schema verified")
	return nil
}

const sqlUpsertScan = `
        INSERT INTO scans (id, started_at)
        VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET started_at = EXCLUDED.started_at;
    `

// PersistData handles the database transaction for inserting all data from a result envelope.
func (s *Store) PersistData(ctx context.Context, envelope *schemas.ResultEnvelope) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback on an already committed transaction reports pgx.ErrTxClosed,
		// which is not a failure.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistScan(ctx, tx, envelope); err != nil {
		return err
	}

	if len(envelope.Findings) > 0 {
		if err := s.persistFindings(ctx, tx, envelope.ScanID, envelope.Findings); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistScan records the scan row findings hang off of. Re-running a scan ID
// refreshes its start time instead of failing.
func (s *Store) persistScan(ctx context.Context, tx pgx.Tx, envelope *schemas.ResultEnvelope) error {
	startedAt := envelope.Timestamp
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	if _, err := tx.Exec(ctx, sqlUpsertScan, envelope.ScanID, startedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert scan %s: %w", envelope.ScanID, err)
	}
	return nil
}

func (s *Store) persistFindings(ctx context.Context, tx pgx.Tx, scanID string, findings []schemas.Finding) error {
	rows := make([][]interface{}, len(findings))
	for i, f := range findings {
		// Evidence is json.RawMessage; never insert a SQL-null or empty payload.
		evidence := f.Evidence
		if len(evidence) == 0 || string(evidence) == "null" {
			evidence = json.RawMessage("{}")
		}

		// Normalize timestamps to UTC before insertion to prevent ambiguity.
		observedAtUTC := f.ObservedAt.UTC()

		rows[i] = []interface{}{
			f.ID, scanID,
			f.Target, f.Module, f.VulnerabilityName,
			string(f.Severity), f.Description,
			evidence,
			f.Recommendation, f.CWE,
			observedAtUTC,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"findings"},
		[]string{"id", "scan_id", "target", "module", "vulnerability_name", "severity", "description", "evidence", "recommendation", "cwe", "observed_at"},
		pgx.CopyFromRows(rows),
	)

	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(findings) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(findings), copyCount)
	}

	return nil
}

func (s *Store) GetFindingsByScanID(ctx context.Context, scanID string) ([]schemas.Finding, error) {
	query := `
        SELECT id, observed_at, target, module, vulnerability_name, severity, description, evidence, recommendation, cwe
        FROM findings
        WHERE scan_id = $1
        ORDER BY observed_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []schemas.Finding
	for rows.Next() {
		var f schemas.Finding
		var severityStr string

		err := rows.Scan(
			&f.ID, &f.ObservedAt, &f.Target, &f.Module,
			&f.VulnerabilityName,
			&severityStr,
			&f.Description, &f.Evidence, &f.Recommendation,
			&f.CWE,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}

		f.Severity = schemas.Severity(severityStr)
		f.ScanID = scanID
		findings = append(findings, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return findings, nil
}

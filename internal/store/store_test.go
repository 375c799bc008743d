package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// utcTime matches any time.Time that is expressed in UTC.
var utcTime = ArgumentMatcherFunc(func(v interface{}) bool {
	ts, ok := v.(time.Time)
	return ok && ts.Location() == time.UTC
})

var findingColumns = []string{"id", "scan_id", "target", "module", "vulnerability_name", "severity", "description", "evidence", "recommendation", "cwe", "observed_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool := newMockPool(t)

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err := New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should succeed when the database responds", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()

		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, s)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("should apply every schema statement", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectExec(flexibleSQLMatcher(`CREATE TABLE IF NOT EXISTS scans`)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(`CREATE TABLE IF NOT EXISTS findings`)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(`CREATE INDEX IF NOT EXISTS findings_scan_id_idx`)).
			WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

		require.NoError(t, s.EnsureSchema(ctx))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should stop at the first failing statement", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		ddlErr := errors.New("permission denied")
		mockPool.ExpectExec(flexibleSQLMatcher(`CREATE TABLE IF NOT EXISTS scans`)).
			WillReturnError(ddlErr)

		err = s.EnsureSchema(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ddlErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPersistData(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a full envelope successfully without rollback errors", func(t *testing.T) {
		mockPool := newMockPool(t)

		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		observedLogger := zap.New(observedZapCore)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, observedLogger)
		require.NoError(t, err)

		scanID := uuid.NewString()
		finding := schemas.Finding{
			ID:                "finding-1",
			VulnerabilityName: "SQL Injection",
			Evidence:          json.RawMessage("{}"),
			ObservedAt:        time.Now(),
		}

		envelope := &schemas.ResultEnvelope{
			ScanID:    scanID,
			Timestamp: time.Now(),
			Findings:  []schemas.Finding{finding},
		}

		mockPool.ExpectBegin()

		// -- Scan row (Exec) --
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertScan)).
			WithArgs(scanID, utcTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		// -- Findings (CopyFrom) --
		mockPool.ExpectCopyFrom(pgx.Identifier{"findings"}, findingColumns).
			WillReturnResult(1)

		// Expect Commit AND the subsequent Rollback (which returns ErrTxClosed)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		if err := s.PersistData(ctx, envelope); err != nil {
			t.Fatalf("PersistData failed: %v", err)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should record a scan row even when there are no findings", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		scanID := uuid.NewString()
		envelope := &schemas.ResultEnvelope{ScanID: scanID}

		mockPool.ExpectBegin()
		// A zero envelope timestamp falls back to the current time, still UTC.
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertScan)).
			WithArgs(scanID, utcTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistData(ctx, envelope))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err = s.PersistData(ctx, &schemas.ResultEnvelope{})
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if the scan upsert fails", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		scanID := uuid.NewString()
		upsertErr := errors.New("relation scans does not exist")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertScan)).
			WithArgs(scanID, utcTime).
			WillReturnError(upsertErr)
		mockPool.ExpectRollback()

		err = s.PersistData(ctx, &schemas.ResultEnvelope{ScanID: scanID})
		require.Error(t, err)
		assert.ErrorIs(t, err, upsertErr)
		assert.Contains(t, err.Error(), "failed to upsert scan")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if persisting findings fails", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		copyErr := errors.New("copy from failed")
		scanID := uuid.NewString()
		envelope := &schemas.ResultEnvelope{
			ScanID: scanID,
			Findings: []schemas.Finding{
				{
					ID:                "f-1",
					VulnerabilityName: "Test",
					Evidence:          json.RawMessage("{}"),
					ObservedAt:        time.Now(),
				},
			},
		}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertScan)).
			WithArgs(scanID, utcTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"findings"}, findingColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err = s.PersistData(ctx, envelope)
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetFindingsByScanID(t *testing.T) {
	ctx := context.Background()

	sqlGetFindings := `
        SELECT id, observed_at, target, module, vulnerability_name, severity, description, evidence, recommendation, cwe
        FROM findings
        WHERE scan_id = $1
        ORDER BY observed_at ASC;
    `
	columns := []string{"id", "observed_at", "target", "module", "vulnerability_name", "severity", "description", "evidence", "recommendation", "cwe"}

	t.Run("should retrieve findings successfully", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		scanID := uuid.NewString()
		now := time.Now().UTC()
		evidenceJSON := `{"scope": "com.example.App.handle"}`

		rows := pgxmock.NewRows(columns).
			AddRow("finding-123", now, "src/main/java/App.java", "taint", "SQL Injection", "high", "desc", []byte(evidenceJSON), "reco", []string{"CWE-89"})

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlGetFindings)).
			WithArgs(scanID).
			WillReturnRows(rows)

		findings, err := s.GetFindingsByScanID(ctx, scanID)
		require.NoError(t, err)
		require.Len(t, findings, 1)

		assert.Equal(t, "finding-123", findings[0].ID)
		assert.Equal(t, scanID, findings[0].ScanID)
		assert.Equal(t, "SQL Injection", findings[0].VulnerabilityName)
		assert.Equal(t, schemas.SeverityHigh, findings[0].Severity)
		assert.JSONEq(t, evidenceJSON, string(findings[0].Evidence))
		assert.True(t, findings[0].ObservedAt.Equal(now))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		mockPool := newMockPool(t)

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		queryErr := errors.New("connection reset")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlGetFindings)).
			WithArgs("scan-x").
			WillReturnError(queryErr)

		_, err = s.GetFindingsByScanID(ctx, "scan-x")
		require.Error(t, err)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

package results

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/results/providers"
)

// Test Helpers and Fixtures

// stubStore is a minimal schemas.Store for pipeline tests.
type stubStore struct {
	findings  []schemas.Finding
	err       error
	persisted *schemas.ResultEnvelope
}

func (s *stubStore) PersistData(_ context.Context, data *schemas.ResultEnvelope) error {
	s.persisted = data
	return s.err
}

func (s *stubStore) GetFindingsByScanID(_ context.Context, _ string) ([]schemas.Finding, error) {
	return s.findings, s.err
}

// newRawFinding creates a sample schemas.Finding for testing input.
func newRawFinding(id string, severity schemas.Severity, cwe []string, description string) schemas.Finding {
	return schemas.Finding{
		ID:          id,
		Severity:    severity,
		CWE:         cwe,
		Description: description,
		ObservedAt:  time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC),
	}
}

// evidenceWithSinks builds an encoded taint payload with the given number of
// sink hits.
func evidenceWithSinks(t *testing.T, sinks int) json.RawMessage {
	t.Helper()
	ev := &schemas.TaintEvidence{
		Scope:  "Demo.test",
		Marked: []schemas.MarkedExpr{{Snippet: "source()", Line: 3, Column: 20}},
	}
	for i := 0; i < sinks; i++ {
		ev.Sinks = append(ev.Sinks, schemas.SinkHit{
			Sink: schemas.MarkedExpr{Snippet: "sink(n)", Line: 4 + i, Column: 9},
		})
	}
	raw, err := ev.Encode()
	require.NoError(t, err)
	return raw
}

// Prioritization

func TestNormalizeLowersSeverity(t *testing.T) {
	t.Parallel()

	findings := []schemas.Finding{{ID: "a", Severity: schemas.Severity("HIGH")}}
	normalized := Normalize(findings)
	require.Len(t, normalized, 1)
	assert.Equal(t, "high", normalized[0].NormalizedSeverity)
	assert.Equal(t, "a", normalized[0].ID)
}

func TestPrioritizeOrdersBySeverityWeight(t *testing.T) {
	t.Parallel()

	findings := Normalize([]schemas.Finding{
		newRawFinding("low", schemas.SeverityLow, nil, "low severity"),
		newRawFinding("crit", schemas.SeverityCritical, nil, "critical severity"),
		newRawFinding("med", schemas.SeverityMedium, nil, "medium severity"),
	})

	sorted, err := Prioritize(findings, DefaultScoreConfig())
	require.NoError(t, err)

	ids := []string{sorted[0].ID, sorted[1].ID, sorted[2].ID}
	assert.Equal(t, []string{"crit", "med", "low"}, ids)
	assert.Greater(t, sorted[0].Score, sorted[1].Score)
}

func TestPrioritizeBoostsSinkHits(t *testing.T) {
	t.Parallel()

	plain := newRawFinding("plain", schemas.SeverityHigh, nil, "propagation only")
	withSinks := newRawFinding("sinks", schemas.SeverityHigh, nil, "reaches two sinks")
	withSinks.Evidence = evidenceWithSinks(t, 2)

	sorted, err := Prioritize(Normalize([]schemas.Finding{plain, withSinks}), DefaultScoreConfig())
	require.NoError(t, err)

	assert.Equal(t, "sinks", sorted[0].ID, "sink hits must outrank equal severity")
	assert.Equal(t, sorted[1].Score+2*DefaultScoreConfig().SinkHitWeight, sorted[0].Score)
}

func TestPrioritizeUnknownSeverityScoresZero(t *testing.T) {
	t.Parallel()

	findings := Normalize([]schemas.Finding{
		newRawFinding("odd", schemas.Severity("bizarre"), nil, "unknown severity"),
		newRawFinding("info", schemas.SeverityInfo, nil, "known severity"),
	})

	sorted, err := Prioritize(findings, DefaultScoreConfig())
	require.NoError(t, err)

	assert.Equal(t, "info", sorted[0].ID)
	assert.Zero(t, sorted[1].Score)
}

// Enrichment

func TestEnricherFillsGenericFindings(t *testing.T) {
	t.Parallel()

	enricher := NewEnricher(nil, zaptest.NewLogger(t))
	// A nil provider must leave the finding untouched.
	f := newRawFinding("f1", schemas.SeverityHigh, []string{"CWE-89"}, "short")
	enricher.EnrichFinding(&f)
	assert.Empty(t, f.VulnerabilityName)

	enricher = NewEnricher(providers.NewInMemoryCWEProvider(), zaptest.NewLogger(t))

	generic := newRawFinding("f2", schemas.SeverityHigh, []string{"CWE-89"}, "short")
	enricher.EnrichFinding(&generic)
	assert.Contains(t, generic.VulnerabilityName, "SQL Injection")
	assert.NotEmpty(t, generic.Description)
	assert.NotEmpty(t, generic.Recommendation)

	specific := newRawFinding("f3", schemas.SeverityHigh, []string{"CWE-89"}, "short")
	specific.VulnerabilityName = "Tainted Data Reaches Sink"
	specific.Recommendation = "Review the flow."
	enricher.EnrichFinding(&specific)
	assert.Equal(t, "Tainted Data Reaches Sink", specific.VulnerabilityName, "specific names are preserved")
	assert.Equal(t, "Review the flow.", specific.Recommendation, "existing recommendations are preserved")

	noCWE := newRawFinding("f4", schemas.SeverityHigh, nil, "short")
	enricher.EnrichFinding(&noCWE)
	assert.Empty(t, noCWE.VulnerabilityName, "findings without CWE stay untouched")
}

// Pipeline

func TestPipelineProcessFindings(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(nil, zaptest.NewLogger(t))

	high := newRawFinding("high", schemas.SeverityHigh, []string{"CWE-89"}, "short")
	high.Evidence = evidenceWithSinks(t, 1)
	info := newRawFinding("info", schemas.SeverityInfo, []string{"CWE-20"}, "short")

	report, err := pipeline.ProcessFindings(context.Background(), "scan-1", []schemas.Finding{info, high})
	require.NoError(t, err)

	require.Len(t, report.Findings, 2)
	assert.Equal(t, "high", report.Findings[0].ID, "sink-backed high severity sorts first")
	assert.NotEmpty(t, report.Findings[0].VulnerabilityName, "enrichment ran")

	assert.Equal(t, 2, report.Summary["total"])
	assert.Equal(t, 1, report.Summary["high"])
	assert.Equal(t, 1, report.Summary["info"])
}

func TestPipelineProcessFindingsHonorsCancellation(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(nil, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.ProcessFindings(ctx, "scan-1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineProcessScanResults(t *testing.T) {
	t.Parallel()

	stored := []schemas.Finding{
		newRawFinding("low", schemas.SeverityLow, nil, "stored low"),
		newRawFinding("crit", schemas.SeverityCritical, nil, "stored critical"),
	}
	pipeline := NewPipeline(&stubStore{findings: stored}, zaptest.NewLogger(t))

	report, err := pipeline.ProcessScanResults(context.Background(), "scan-9")
	require.NoError(t, err)
	assert.Equal(t, "scan-9", report.ScanID)
	require.Len(t, report.Findings, 2)
	assert.Equal(t, "crit", report.Findings[0].ID)
}

func TestPipelineProcessScanResultsErrors(t *testing.T) {
	t.Parallel()

	// No store configured.
	pipeline := NewPipeline(nil, zaptest.NewLogger(t))
	_, err := pipeline.ProcessScanResults(context.Background(), "scan-1")
	require.Error(t, err)

	// Store failure propagates.
	storeErr := errors.New("connection refused")
	pipeline = NewPipeline(&stubStore{err: storeErr}, zaptest.NewLogger(t))
	_, err = pipeline.ProcessScanResults(context.Background(), "scan-1")
	assert.ErrorIs(t, err, storeErr)
}

// Report

func TestReportEnvelopeAndJSON(t *testing.T) {
	t.Parallel()

	findings := []schemas.Finding{newRawFinding("a", schemas.SeverityMedium, nil, "one finding")}
	report := NewReport("scan-3", findings)

	ts := time.Date(2025, 11, 4, 15, 30, 0, 0, time.UTC)
	envelope := report.Envelope(ts)
	assert.Equal(t, "scan-3", envelope.ScanID)
	assert.Equal(t, ts, envelope.Timestamp)
	assert.Len(t, envelope.Findings, 1)

	raw, err := report.ToJSON()
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, report.ScanID, decoded.ScanID)
	assert.Equal(t, report.Summary, decoded.Summary)
}
